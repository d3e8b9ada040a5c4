package subjects

import (
	"fmt"
	"os/user"

	"caerbannog/internal/op"
	"caerbannog/internal/report"
)

const KindGroupPresent op.Kind = "group-present"

// Group manages a local system group.
type Group struct {
	state op.SubjectState
	ctx   *op.Context
	name  string
}

// NewGroup returns a group subject for the named group.
func NewGroup(ctx *op.Context, name string) *Group {
	return &Group{ctx: ctx, name: name}
}

func (g *Group) State() *op.SubjectState { return &g.state }

func (g *Group) Describe() string { return fmt.Sprintf("group %s", g.name) }

func (g *Group) Clone() op.Subject { return NewGroup(g.ctx, g.name) }

// IsPresent asserts that the group exists, creating it with groupadd on
// drift.
func (g *Group) IsPresent() *Group {
	g.state.AddAssertion(&GroupPresent{Record: op.NewRecord("is present"), group: g})
	return g
}

// GroupPresent asserts that a system group exists.
type GroupPresent struct {
	op.Record
	group *Group
}

func (a *GroupPresent) Kind() op.Kind { return KindGroupPresent }

func (a *GroupPresent) Prepare(*op.Context) error { return nil }

func (a *GroupPresent) Apply(ctx *op.Context, log *report.Log) error {
	if !ctx.Host.IsLinux() {
		return fmt.Errorf("no group backend for this host")
	}

	if _, err := user.LookupGroup(a.group.name); err == nil {
		a.DisplayPassed(log)
		return nil
	} else if _, ok := err.(user.UnknownGroupError); !ok {
		return fmt.Errorf("look up group %q: %w", a.group.name, err)
	}

	name := a.group.name
	change := op.NewChange("created", op.AddLine(name)).WithAction(func(ctx *op.Context) error {
		cmd, err := elevatedCommand(ctx, "groupadd", name)
		if err != nil {
			return err
		}
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("groupadd %s failed: %w\n%s", name, err, out)
		}
		return nil
	})
	a.Register(change)
	if ctx.Modify {
		if err := change.Run(ctx); err != nil {
			return err
		}
	}

	a.Display(log)
	return nil
}
