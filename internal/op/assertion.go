package op

import "caerbannog/internal/report"

// Kind identifies a concrete assertion type. A subject keeps at most one
// live assertion per kind; adding another replaces the previous one.
type Kind string

// Assertion is a single testable, idempotent property of a subject.
//
// Apply inspects the actual system state. When it matches the desired state
// the assertion reports a pass and records nothing; re-applying a satisfied
// assertion therefore records zero changes. On drift the assertion registers
// a Change, and performs the corrective action only when ctx.Modify is set.
type Assertion interface {
	Kind() Kind
	Name() string

	// Prepare runs before any assertion applies and is the only point where
	// an assertion may attach new prerequisite subjects to its owner.
	Prepare(ctx *Context) error

	Apply(ctx *Context, log *report.Log) error

	Changed() bool
	Changes() []*Change
}

// Record supplies the bookkeeping half of the Assertion interface for
// embedding: the display name and the changes registered by the most recent
// evaluation.
type Record struct {
	name    string
	changes []*Change
}

// NewRecord returns a Record with the assertion's display name.
func NewRecord(name string) Record {
	return Record{name: name}
}

// Name returns the assertion's display name.
func (r *Record) Name() string { return r.name }

// Register appends a detected change.
func (r *Record) Register(c *Change) {
	r.changes = append(r.changes, c)
}

// Changed reports whether the last evaluation registered any change.
func (r *Record) Changed() bool { return len(r.changes) > 0 }

// Changes returns the registered changes in order.
func (r *Record) Changes() []*Change { return r.changes }

// Display writes the assertion's outcome line: drift with details when
// changes were registered, a pass otherwise.
func (r *Record) Display(log *report.Log) {
	if r.Changed() {
		r.DisplayChanged(log)
		return
	}
	r.DisplayPassed(log)
}

// DisplayPassed writes a pass line.
func (r *Record) DisplayPassed(log *report.Log) {
	log.Indent().Pass(r.name)
}

// DisplayChanged writes a drift line followed by every change.
func (r *Record) DisplayChanged(log *report.Log) {
	sub := log.Indent()
	sub.Drift(r.name)
	for _, c := range r.changes {
		c.Display(sub)
	}
}

// DisplayFailed writes a failure line followed by any registered changes.
// Used when the assertion could not be evaluated, e.g. the object it checks
// is missing during a pretend pass.
func (r *Record) DisplayFailed(log *report.Log) {
	sub := log.Indent()
	sub.Fail(r.name)
	for _, c := range r.changes {
		c.Display(sub)
	}
}
