package engine

import (
	"bytes"
	"fmt"
	"testing"

	"caerbannog/internal/op"
	"caerbannog/internal/report"
	"caerbannog/internal/target"
)

func testEngine(reg *target.Registry, roles map[string]Role) *Engine {
	return &Engine{
		Targets: reg,
		Roles:   roles,
		Ctx:     &op.Context{},
		Log:     report.NewWriter(&bytes.Buffer{}),
	}
}

func TestExecuteUnknownTarget(t *testing.T) {
	e := testEngine(target.NewRegistry(), nil)
	if err := e.Execute("nope", nil, nil); err == nil {
		t.Error("Execute() = nil error, want unknown target")
	}
}

func TestExecuteOrder(t *testing.T) {
	reg := target.NewRegistry()
	reg.Target("app").DependsOn("base").HasRoles("app-role")
	reg.Target("base").HasRoles("base-role")

	var order []string
	roles := map[string]Role{
		"base-role": RoleFunc(func(*op.RoleContext) error {
			order = append(order, "base-role")
			return nil
		}),
		"app-role": RoleFunc(func(*op.RoleContext) error {
			order = append(order, "app-role")
			return nil
		}),
	}

	if err := testEngine(reg, roles).Execute("app", nil, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := []string{"base-role", "app-role"}
	if len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Errorf("order = %v, want %v", order, want)
	}
}

// A target reachable over two paths is executed once per path. Role logic is
// idempotent, so the repeat converges without extra changes; deduplication is
// deliberately not performed.
func TestDiamondReexecution(t *testing.T) {
	reg := target.NewRegistry()
	reg.Target("top").DependsOn("left", "right")
	reg.Target("left").DependsOn("shared")
	reg.Target("right").DependsOn("shared")
	reg.Target("shared").HasRoles("shared-role")

	count := 0
	roles := map[string]Role{
		"shared-role": RoleFunc(func(*op.RoleContext) error {
			count++
			return nil
		}),
	}

	if err := testEngine(reg, roles).Execute("top", nil, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if count != 2 {
		t.Errorf("shared role executed %d times, want 2", count)
	}
}

func TestRoleFilters(t *testing.T) {
	reg := target.NewRegistry()
	reg.Target("t").HasRoles("a", "b", "c")

	run := func(roleLimit, skipRoles []string) []string {
		var applied []string
		roles := map[string]Role{}
		for _, name := range []string{"a", "b", "c"} {
			name := name
			roles[name] = RoleFunc(func(*op.RoleContext) error {
				applied = append(applied, name)
				return nil
			})
		}
		if err := testEngine(reg, roles).Execute("t", roleLimit, skipRoles); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		return applied
	}

	t.Run("limit", func(t *testing.T) {
		got := run([]string{"b"}, nil)
		if len(got) != 1 || got[0] != "b" {
			t.Errorf("applied = %v, want [b]", got)
		}
	})

	t.Run("skip", func(t *testing.T) {
		got := run(nil, []string{"b"})
		if len(got) != 2 || got[0] != "a" || got[1] != "c" {
			t.Errorf("applied = %v, want [a c]", got)
		}
	})
}

func TestRoleFailureIsolation(t *testing.T) {
	reg := target.NewRegistry()
	reg.Target("t").HasRoles("broken", "healthy")

	var applied []string
	roles := map[string]Role{
		"broken": RoleFunc(func(*op.RoleContext) error {
			return fmt.Errorf("boom")
		}),
		"healthy": RoleFunc(func(*op.RoleContext) error {
			applied = append(applied, "healthy")
			return nil
		}),
	}

	if err := testEngine(reg, roles).Execute("t", nil, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(applied) != 1 || applied[0] != "healthy" {
		t.Errorf("applied = %v, want [healthy]", applied)
	}
}

func TestUnknownRoleContinues(t *testing.T) {
	reg := target.NewRegistry()
	reg.Target("t").HasRoles("missing", "known")

	var applied []string
	roles := map[string]Role{
		"known": RoleFunc(func(*op.RoleContext) error {
			applied = append(applied, "known")
			return nil
		}),
	}

	if err := testEngine(reg, roles).Execute("t", nil, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(applied) != 1 || applied[0] != "known" {
		t.Errorf("applied = %v, want [known]", applied)
	}
}

func TestRoleScopedOnContext(t *testing.T) {
	reg := target.NewRegistry()
	reg.Target("t").HasRoles("scoped")

	ctx := &op.Context{Root: "/repo"}
	var dir string
	roles := map[string]Role{
		"scoped": RoleFunc(func(rc *op.RoleContext) error {
			dir = rc.Context().ResolvePath("files", "config.yml")
			return nil
		}),
	}

	e := testEngine(reg, roles)
	e.Ctx = ctx
	if err := e.Execute("t", nil, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := "/repo/roles/scoped/files/config.yml"
	if dir != want {
		t.Errorf("ResolvePath() = %q, want %q", dir, want)
	}
	if got := ctx.Role(); got != "" {
		t.Errorf("Role() = %q after run, want empty", got)
	}
}
