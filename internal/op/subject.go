// Package op provides the convergence primitives: subjects describing
// manageable resources, assertions describing desired properties, changes
// recording detected drift, and the role-scoped machinery (Do, Ensure,
// handlers) that applies them in order.
//
// All execution is single-threaded and synchronous. Ordering (prerequisite
// before dependent, parent before child) is a correctness invariant here,
// not an optimization target.
package op

import (
	"fmt"

	"caerbannog/internal/report"
)

// Subject is one manageable resource: a path, a package set, a service.
// Concrete subjects embed SubjectState and add fluent assertion builders.
type Subject interface {
	// State exposes the shared assertion and prerequisite bookkeeping.
	State() *SubjectState
	// Describe returns the default human-readable description.
	Describe() string
	// Clone returns a fresh identity-equal subject with no assertions,
	// used to build derived subjects for handlers.
	Clone() Subject
}

// SubjectState holds the per-subject bookkeeping shared by every concrete
// subject type.
type SubjectState struct {
	assertions  []Assertion
	children    []Subject
	description string
}

// AddAssertion appends an assertion, first removing any live assertion of
// the same kind.
func (s *SubjectState) AddAssertion(a Assertion) {
	s.RemoveAssertions(a.Kind())
	s.assertions = append(s.assertions, a)
}

// HasAssertion reports whether an assertion of the given kind is live.
func (s *SubjectState) HasAssertion(kind Kind) bool {
	_, ok := s.AssertionOf(kind)
	return ok
}

// AssertionOf returns the first live assertion of the given kind.
func (s *SubjectState) AssertionOf(kind Kind) (Assertion, bool) {
	for _, a := range s.assertions {
		if a.Kind() == kind {
			return a, true
		}
	}
	return nil, false
}

// LastAssertionOf returns the last live assertion of the given kind.
func (s *SubjectState) LastAssertionOf(kind Kind) (Assertion, bool) {
	for i := len(s.assertions) - 1; i >= 0; i-- {
		if s.assertions[i].Kind() == kind {
			return s.assertions[i], true
		}
	}
	return nil, false
}

// RemoveAssertions removes every live assertion of the given kind.
func (s *SubjectState) RemoveAssertions(kind Kind) {
	kept := s.assertions[:0]
	for _, a := range s.assertions {
		if a.Kind() != kind {
			kept = append(kept, a)
		}
	}
	s.assertions = kept
}

// Assertions returns the subject's own assertions in declaration order.
func (s *SubjectState) Assertions() []Assertion { return s.assertions }

// AddPrerequisite appends a subject that must be fully converged before this
// subject's own assertions are evaluated.
func (s *SubjectState) AddPrerequisite(child Subject) {
	s.children = append(s.children, child)
}

// Prerequisites returns the prerequisite subjects in insertion order.
func (s *SubjectState) Prerequisites() []Subject { return s.children }

// SetDescription overrides the subject's default description.
func (s *SubjectState) SetDescription(description string) {
	s.description = description
}

// Describe returns the subject's description, honoring any override.
func Describe(s Subject) string {
	if d := s.State().description; d != "" {
		return d
	}
	return s.Describe()
}

// Changed reports whether any of the subject's own assertions, or any
// prerequisite subject transitively, recorded a change.
func Changed(s Subject) bool {
	st := s.State()
	for _, a := range st.assertions {
		if a.Changed() {
			return true
		}
	}
	for _, child := range st.children {
		if Changed(child) {
			return true
		}
	}
	return false
}

// Apply converges one subject:
//
//  1. log the subject's description one level in,
//  2. run every assertion's Prepare, which may attach prerequisites,
//  3. apply every prerequisite depth-first in insertion order,
//  4. apply every assertion in declaration order.
func Apply(ctx *Context, s Subject, log *report.Log) error {
	sub := log.Indent()
	sub.Info("%s", Describe(s))

	st := s.State()
	for _, a := range st.assertions {
		if err := a.Prepare(ctx); err != nil {
			return fmt.Errorf("prepare %s of %s: %w", a.Name(), Describe(s), err)
		}
	}
	for _, child := range st.children {
		if err := Apply(ctx, child, sub); err != nil {
			return err
		}
	}
	for _, a := range st.assertions {
		if err := a.Apply(ctx, sub); err != nil {
			return fmt.Errorf("%s: %s: %w", Describe(s), a.Name(), err)
		}
	}
	return nil
}

// CollectChanges walks the subject tree and returns one event per change
// registered by its assertions, prerequisites first.
func CollectChanges(s Subject) []ChangeEvent {
	var events []ChangeEvent
	st := s.State()
	for _, child := range st.children {
		events = append(events, CollectChanges(child)...)
	}
	for _, a := range st.assertions {
		for _, c := range a.Changes() {
			events = append(events, ChangeEvent{
				Subject:   Describe(s),
				Assertion: a.Name(),
				Change:    c.Name(),
				change:    c,
			})
		}
	}
	return events
}

// ChangeEvent is one recorded change, flattened for journaling.
type ChangeEvent struct {
	Subject   string
	Assertion string
	Change    string

	change *Change
}

// Recorder receives every change made or pretended during a run.
type Recorder interface {
	Record(event ChangeEvent)
}
