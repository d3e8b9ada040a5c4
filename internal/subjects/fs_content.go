package subjects

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"caerbannog/internal/diff"
	"caerbannog/internal/op"
	"caerbannog/internal/report"
)

// maxDiffLines caps the rendered content diff. Longer diffs collapse into a
// line-count summary plus a sample of the first and last lines.
const maxDiffLines = 250

const sampleLines = 10

// HasContent asserts the exact text content of a file.
type HasContent struct {
	op.Record
	path    string
	content string
}

func (a *HasContent) Kind() op.Kind { return KindHasContent }

func (a *HasContent) Prepare(*op.Context) error { return nil }

func (a *HasContent) Apply(ctx *op.Context, log *report.Log) error {
	existing := ""
	different := false

	data, err := os.ReadFile(a.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		different = true
	case err != nil:
		return err
	default:
		existing = string(data)
		different = existing != a.content
	}

	if different {
		if ctx.Modify {
			if err := os.WriteFile(a.path, []byte(a.content), 0o644); err != nil {
				return err
			}
		}
		a.Register(contentChanged(existing, a.content))
	}

	a.Display(log)
	return nil
}

// HasBinaryContent asserts the exact byte content of a file. Drift is
// reported as a byte-count delta only.
type HasBinaryContent struct {
	op.Record
	path    string
	content []byte
}

func (a *HasBinaryContent) Kind() op.Kind { return KindHasBinaryContent }

func (a *HasBinaryContent) Prepare(*op.Context) error { return nil }

func (a *HasBinaryContent) Apply(ctx *op.Context, log *report.Log) error {
	var existing []byte
	different := false

	data, err := os.ReadFile(a.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		different = true
	case err != nil:
		return err
	default:
		existing = data
		different = string(existing) != string(a.content)
	}

	if different {
		if ctx.Modify {
			if err := os.WriteFile(a.path, a.content, 0o644); err != nil {
				return err
			}
		}
		delta := len(a.content) - len(existing)
		a.Register(op.NewChange("content changed", op.DetailLine(fmt.Sprintf("%+d", delta))))
	}

	a.Display(log)
	return nil
}

// contentChanged builds the change describing a text rewrite, rendering a
// unified diff capped at maxDiffLines.
func contentChanged(from, to string) *op.Change {
	raw := diff.Unified(from, to)

	var details []op.DiffLine
	if len(raw) > maxDiffLines {
		added, removed := 0, 0
		for _, line := range raw {
			switch {
			case strings.HasPrefix(line, "+"):
				added++
			case strings.HasPrefix(line, "-"):
				removed++
			}
		}
		details = append(details, op.NeutralLine("Diff too long to be shown. Summary:"),
			op.AddLine(fmt.Sprintf("%d lines", added)),
			op.RemoveLine(fmt.Sprintf("%d lines", removed)),
			op.NeutralLine("Sample:"))
		details = append(details, formatDiff(raw[:sampleLines])...)
		details = append(details, op.DetailLine("8< -------------------------------"))
		details = append(details, formatDiff(raw[len(raw)-sampleLines:])...)
	} else {
		details = formatDiff(raw)
	}

	if len(details) == 0 {
		details = append(details, op.DetailLine("<only whitespace changes>"))
	}

	return op.NewChange("content changed", details...)
}

// formatDiff converts raw unified-diff lines into typed diff lines. A line
// missing its final newline is marked with a trailing "^m".
func formatDiff(raw []string) []op.DiffLine {
	var formatted []op.DiffLine
	for _, line := range raw {
		if strings.HasPrefix(line, "@") {
			formatted = append(formatted, op.HeaderLine(strings.TrimRight(line, "\r\n")))
			continue
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if line == trimmed {
			trimmed += "^m"
		}
		if len(trimmed) == 0 {
			continue
		}

		body := trimmed[1:]
		switch trimmed[0] {
		case '-':
			formatted = append(formatted, op.RemoveLine(body))
		case '+':
			formatted = append(formatted, op.AddLine(body))
		case ' ':
			formatted = append(formatted, op.NeutralLine(body))
		}
	}
	return formatted
}
