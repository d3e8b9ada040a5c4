package op

import (
	"fmt"

	"caerbannog/internal/report"
)

// RoleContext scopes one role execution: it applies subject batches, keeps
// the handlers declared during the run, and feeds every recorded change to
// the journal recorder. Created by the engine on role entry; its handlers
// fire on role exit.
type RoleContext struct {
	ctx      *Context
	log      *report.Log
	recorder Recorder
	handlers []*Handler
	seen     map[*Change]bool
}

// NewRoleContext returns a role context applying subjects under ctx and
// reporting to log. recorder may be nil.
func NewRoleContext(ctx *Context, log *report.Log, recorder Recorder) *RoleContext {
	return &RoleContext{ctx: ctx, log: log, recorder: recorder, seen: make(map[*Change]bool)}
}

// Context returns the run context.
func (rc *RoleContext) Context() *Context { return rc.ctx }

// Log returns the report log for this role.
func (rc *RoleContext) Log() *report.Log { return rc.log }

// Do converges the given subjects in order, honoring the context's modify
// flag. The first failing subject aborts the batch.
func (rc *RoleContext) Do(subjects ...Subject) error {
	for _, s := range subjects {
		if err := Apply(rc.ctx, s, rc.log); err != nil {
			return err
		}
		rc.record(s)
	}
	return nil
}

// Ensure verifies that every assertion on the given subjects already holds,
// without modifying anything. Drift is a precondition failure: the report
// renders it as an error and Ensure returns a non-nil error.
func (rc *RoleContext) Ensure(subjects ...Subject) error {
	pretend := rc.ctx.Pretend()
	strict := rc.log.Strict().Indent()
	strict.Info("assert that")

	for _, s := range subjects {
		if err := Apply(pretend, s, strict); err != nil {
			return err
		}
		if Changed(s) {
			return fmt.Errorf("precondition failed: %s would change", Describe(s))
		}
	}
	return nil
}

// AddHandler registers a handler to run at role teardown.
func (rc *RoleContext) AddHandler(h *Handler) {
	rc.handlers = append(rc.handlers, h)
}

// RemoveHandler deregisters a handler.
func (rc *RoleContext) RemoveHandler(h *Handler) {
	for i, existing := range rc.handlers {
		if existing == h {
			rc.handlers = append(rc.handlers[:i], rc.handlers[i+1:]...)
			return
		}
	}
}

// RunHandlers fires every registered handler in registration order. Called
// by the engine after the role's configuration logic returns successfully.
func (rc *RoleContext) RunHandlers() error {
	for _, h := range rc.handlers {
		if err := h.apply(rc); err != nil {
			return err
		}
	}
	return nil
}

// record journals every change not yet seen in this role execution. A
// handler re-applying a subject produces fresh Change values, so re-applied
// drift is journaled again by design.
func (rc *RoleContext) record(s Subject) {
	if rc.recorder == nil {
		return
	}
	for _, event := range CollectChanges(s) {
		if rc.seen[event.change] {
			continue
		}
		rc.seen[event.change] = true
		rc.recorder.Record(event)
	}
}

// Handler defers derived work until role teardown: when any of the subjects
// it listens to changed during the role, it applies its call subjects
// exactly once, however many listened subjects changed. A handler that does
// not fire logs a skip summary unless it was generated internally by a
// composite subject, in which case it stays silent.
type Handler struct {
	listen    []Subject
	call      []Subject
	generated bool
}

// NewHandler declares a user-facing handler calling the given subjects and
// registers it with the role context.
func NewHandler(rc *RoleContext, call ...Subject) *Handler {
	h := &Handler{call: call}
	rc.AddHandler(h)
	return h
}

// NewGeneratedHandler declares an internally generated handler. It behaves
// like NewHandler but skips silently when it does not fire.
func NewGeneratedHandler(rc *RoleContext, call ...Subject) *Handler {
	h := NewHandler(rc, call...)
	h.generated = true
	return h
}

// Watch subscribes the handler to a subject's changes and returns the
// handler for chaining.
func (h *Handler) Watch(subjects ...Subject) *Handler {
	h.listen = append(h.listen, subjects...)
	return h
}

func (h *Handler) apply(rc *RoleContext) error {
	fired := false
	for _, s := range h.listen {
		if Changed(s) {
			fired = true
			break
		}
	}

	if !fired {
		if !h.generated {
			rc.log.Info("skipped handler for:")
			h.displaySummary(rc.log)
		}
		return nil
	}

	rc.log.Change("executing handler for:")
	h.displaySummary(rc.log.Indent())
	for _, s := range h.call {
		if err := Apply(rc.ctx, s, rc.log); err != nil {
			return fmt.Errorf("handler: %w", err)
		}
		rc.record(s)
	}
	return nil
}

func (h *Handler) displaySummary(log *report.Log) {
	sub := log.Indent()
	for _, s := range h.listen {
		if Changed(s) {
			sub.Change("%s", Describe(s))
		} else {
			sub.Info("%s", Describe(s))
		}
	}
}
