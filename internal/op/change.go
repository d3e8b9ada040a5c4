package op

import "caerbannog/internal/report"

// DiffType classifies one line of change detail.
type DiffType int

const (
	Neutral DiffType = iota
	Add
	Remove
	Header
)

// DiffLine is one rendered line of change detail.
type DiffLine struct {
	Type DiffType
	Text string
}

// NeutralLine renders content as unchanged context, two columns in.
func NeutralLine(content string) DiffLine {
	return DiffLine{Type: Neutral, Text: "  " + content}
}

// AddLine renders content as added.
func AddLine(content string) DiffLine {
	return DiffLine{Type: Add, Text: "+ " + content}
}

// RemoveLine renders content as removed.
func RemoveLine(content string) DiffLine {
	return DiffLine{Type: Remove, Text: "- " + content}
}

// HeaderLine renders content as a diff hunk header.
func HeaderLine(content string) DiffLine {
	return DiffLine{Type: Header, Text: content}
}

// DetailLine renders content verbatim, without diff markers.
func DetailLine(content string) DiffLine {
	return DiffLine{Type: Neutral, Text: content}
}

// Change records one state transition an assertion detected: a name, the
// diff lines describing it, and optionally the side-effecting action that
// realizes it. A Change is created only when drift is found; in pretend mode
// the record exists but the action never runs.
type Change struct {
	name    string
	details []DiffLine
	action  func(*Context) error
}

// NewChange creates a change with the given detail lines.
func NewChange(name string, details ...DiffLine) *Change {
	return &Change{name: name, details: details}
}

// WithAction attaches the side effect that realizes the change and returns
// the change for chaining.
func (c *Change) WithAction(action func(*Context) error) *Change {
	c.action = action
	return c
}

// Name returns the change's short name, e.g. "file created".
func (c *Change) Name() string { return c.name }

// Run performs the change's action, if any. Callers invoke it only in
// modify mode.
func (c *Change) Run(ctx *Context) error {
	if c.action == nil {
		return nil
	}
	return c.action(ctx)
}

// Display writes the change name and its detail lines one level below the
// owning assertion.
func (c *Change) Display(log *report.Log) {
	sub := log.Indent()
	sub.Detail(c.name)
	for _, line := range c.details {
		switch line.Type {
		case Add:
			sub.DetailAdd(line.Text)
		case Remove:
			sub.DetailRemove(line.Text)
		case Header:
			sub.DetailHeader(line.Text)
		default:
			sub.Detail(line.Text)
		}
	}
}
