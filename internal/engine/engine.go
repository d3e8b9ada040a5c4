// Package engine drives a run: it walks the selected target's dependency
// graph and applies each target's roles in order, building a role context
// per role and firing its handlers on exit.
package engine

import (
	"fmt"
	"log/slog"

	"caerbannog/internal/op"
	"caerbannog/internal/report"
	"caerbannog/internal/target"
)

// Role is one named unit of configuration logic. Configure declares the
// role's subjects against the role context; it runs once per target that
// lists the role.
type Role interface {
	Configure(rc *op.RoleContext) error
}

// RoleFunc adapts a plain function to the Role interface.
type RoleFunc func(rc *op.RoleContext) error

func (f RoleFunc) Configure(rc *op.RoleContext) error { return f(rc) }

// Engine executes targets. Roles failing to configure are isolated: the run
// continues with the next role, and only subject application errors inside
// Do/Ensure batches surface through the role's returned error.
type Engine struct {
	Targets  *target.Registry
	Roles    map[string]Role
	Ctx      *op.Context
	Log      *report.Log
	Recorder op.Recorder
}

// Execute applies the named target: its required targets first, depth-first
// in declaration order, then the target itself. Shared dependencies are
// applied once per requiring target; role logic is idempotent, so repeated
// application converges to the same state. roleLimit, when non-empty,
// restricts execution to the named roles; skipRoles excludes roles.
func (e *Engine) Execute(name string, roleLimit, skipRoles []string) error {
	t, ok := e.Targets.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown target %q", name)
	}
	return e.execute(t, roleLimit, skipRoles)
}

func (e *Engine) execute(t *target.Target, roleLimit, skipRoles []string) error {
	for _, dep := range t.Dependencies() {
		slog.Debug("descending into required target", "target", dep.Name(), "required_by", t.Name())
		if err := e.execute(dep, roleLimit, skipRoles); err != nil {
			return err
		}
	}

	slog.Info("applying target", "target", t.Name())
	e.Log.Info("Target %s", t.Name())
	for _, role := range t.Roles() {
		if len(roleLimit) > 0 && !contains(roleLimit, role) {
			slog.Debug("role not selected", "role", role)
			continue
		}
		if contains(skipRoles, role) {
			slog.Debug("role skipped", "role", role)
			continue
		}
		e.applyRole(role)
	}
	return nil
}

// applyRole runs one role under its own role context. Errors are reported
// and swallowed so one broken role does not keep the rest of the target
// from converging.
func (e *Engine) applyRole(name string) {
	log := e.Log.Indent()
	log.Info("Role %s", name)

	role, ok := e.Roles[name]
	if !ok {
		slog.Error("unknown role", "role", name)
		log.Fail(fmt.Sprintf("unknown role %s", name))
		return
	}

	e.Ctx.EnterRole(name)
	defer e.Ctx.LeaveRole()

	rc := op.NewRoleContext(e.Ctx, log.Indent(), e.Recorder)
	if err := role.Configure(rc); err != nil {
		slog.Error("role failed", "role", name, "error", err)
		log.Fail(err.Error())
		return
	}
	if err := rc.RunHandlers(); err != nil {
		slog.Error("handler failed", "role", name, "error", err)
		log.Fail(err.Error())
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
