package caerbannog

import (
	"strings"
	"testing"

	"caerbannog/internal/op"
)

func TestAppDeclaration(t *testing.T) {
	app := NewApp()

	// Forward reference: depends on a target declared later.
	laptop := app.Target("laptop").DependsOn("base")
	app.Target("base").HasRoles("shell")
	app.RoleFunc("shell", func(*op.RoleContext) error { return nil })

	deps := laptop.Dependencies()
	if len(deps) != 1 || deps[0].Name() != "base" {
		t.Fatalf("Dependencies() = %v, want [base]", deps)
	}
	if _, ok := app.roles["shell"]; !ok {
		t.Error("roles missing shell")
	}
}

func TestCommandSurface(t *testing.T) {
	root := NewApp().Command()

	want := map[string]bool{"apply": false, "target": false, "encrypt": false, "decrypt": false, "view": false}
	for _, cmd := range root.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s missing", name)
		}
	}
}

func TestApplyRejectsConfirmedDryRun(t *testing.T) {
	root := NewApp().Command()
	root.SetArgs([]string{"apply", "anything", "--confirm", "--dry-run"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "--confirm and --dry-run") {
		t.Errorf("Execute() error = %v, want mutual exclusion", err)
	}
}

func TestApplyUnknownTarget(t *testing.T) {
	root := NewApp().Command()
	root.SetArgs([]string{"apply", "nope"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown target") {
		t.Errorf("Execute() error = %v, want unknown target", err)
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
	got := splitList("a,b")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitList(a,b) = %v", got)
	}
}
