// Package report renders the convergence report: one line per subject and
// assertion, indented by nesting depth, with colored diff details for every
// change made or pretended.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette: muted, dark-terminal friendly, matching the rest of the CLI.
var (
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	cyan   = lipgloss.Color("45")
	dim    = lipgloss.Color("243")
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(green)
	failStyle   = lipgloss.NewStyle().Foreground(red)
	driftStyle  = lipgloss.NewStyle().Foreground(yellow)
	headerStyle = lipgloss.NewStyle().Foreground(cyan)
	mutedStyle  = lipgloss.NewStyle().Foreground(dim)
)

// DetectColors aligns lipgloss rendering with the terminal's actual color
// support. Called once from main; tests skip it and get plain text.
func DetectColors() {
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

// Log writes report lines at a fixed nesting depth. Derive deeper or
// stricter logs with Indent and Strict; a Log itself is immutable.
type Log struct {
	w      io.Writer
	depth  int
	strict bool
}

// New returns a Log writing to stderr at depth zero.
func New() *Log {
	return &Log{w: os.Stderr}
}

// NewWriter returns a Log writing to w, used by tests.
func NewWriter(w io.Writer) *Log {
	return &Log{w: w}
}

// Indent returns a Log one nesting level deeper.
func (l *Log) Indent() *Log {
	return &Log{w: l.w, depth: l.depth + 1, strict: l.strict}
}

// Strict returns a Log on which drift renders as failure. Used by Ensure,
// where any would-be change violates a precondition.
func (l *Log) Strict() *Log {
	return &Log{w: l.w, depth: l.depth, strict: true}
}

// Info writes a subject-level status line for an unchanged subject.
func (l *Log) Info(format string, a ...any) {
	fmt.Fprintf(l.w, "[%s] %s%s\n", passStyle.Render("*"), l.indent(), fmt.Sprintf(format, a...))
}

// Change writes a subject-level status line announcing changes underneath.
func (l *Log) Change(format string, a ...any) {
	marker := driftStyle.Render("≈")
	if l.strict {
		marker = failStyle.Render("≈")
	}
	fmt.Fprintf(l.w, "[%s] %s%s\n", marker, l.indent(), fmt.Sprintf(format, a...))
}

// Pass writes an assertion line for a satisfied assertion.
func (l *Log) Pass(msg string) {
	fmt.Fprintf(l.w, "%s  %s %s\n", l.indent(), passStyle.Render("✓"), msg)
}

// Drift writes an assertion line for an assertion that recorded changes.
// Under Strict it renders as a failure instead.
func (l *Log) Drift(msg string) {
	if l.strict {
		l.Fail(msg)
		return
	}
	fmt.Fprintf(l.w, "%s  %s %s\n", l.indent(), driftStyle.Render("⟳"), msg)
}

// Fail writes an assertion line for an assertion that could not be evaluated.
func (l *Log) Fail(msg string) {
	fmt.Fprintf(l.w, "%s  %s %s\n", l.indent(), failStyle.Render("×"), msg)
}

// Detail lines describe one change under an assertion. They carry four
// extra columns of indent so they sit under their assertion marker.
// Strict logs suppress details: the failure line is the message.

func (l *Log) Detail(msg string) {
	if l.strict {
		return
	}
	fmt.Fprintf(l.w, "    %s%s\n", l.indent(), msg)
}

func (l *Log) DetailAdd(msg string) {
	if l.strict {
		return
	}
	fmt.Fprintf(l.w, "    %s%s\n", l.indent(), passStyle.Render(msg))
}

func (l *Log) DetailRemove(msg string) {
	if l.strict {
		return
	}
	fmt.Fprintf(l.w, "    %s%s\n", l.indent(), failStyle.Render(msg))
}

func (l *Log) DetailHeader(msg string) {
	if l.strict {
		return
	}
	fmt.Fprintf(l.w, "    %s%s\n", l.indent(), headerStyle.Render(msg))
}

// Muted renders s in the palette's dim tone, for secondary annotations.
func Muted(s string) string { return mutedStyle.Render(s) }

func (l *Log) indent() string {
	return strings.Repeat("  ", l.depth)
}
