package target

import "testing"

func names(targets []*Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Name()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegistryInternsLazily(t *testing.T) {
	reg := NewRegistry()

	a := reg.Target("a")
	if got := reg.Target("a"); got != a {
		t.Errorf("Target(a) = %p, want interned %p", got, a)
	}

	if _, ok := reg.Lookup("b"); ok {
		t.Error("Lookup(b) = ok before any reference")
	}
}

func TestForwardReferences(t *testing.T) {
	reg := NewRegistry()

	// "base" is required before it is declared.
	laptop := reg.Target("laptop").DependsOn("base")
	base := reg.Target("base").HasRoles("shell")

	deps := laptop.Dependencies()
	if len(deps) != 1 || deps[0] != base {
		t.Fatalf("Dependencies() = %v, want [base]", names(deps))
	}
	if got := deps[0].Roles(); len(got) != 1 || got[0] != "shell" {
		t.Errorf("Roles() = %v, want [shell]", got)
	}
}

func TestIncludes(t *testing.T) {
	reg := NewRegistry()
	reg.Target("a").DependsOn("b")
	reg.Target("b").DependsOn("c")

	a := reg.Target("a")
	for _, name := range []string{"a", "b", "c"} {
		if !a.Includes(name) {
			t.Errorf("Includes(%s) = false, want true", name)
		}
	}
	if a.Includes("d") {
		t.Error("Includes(d) = true, want false")
	}

	// Cycles terminate.
	reg.Target("c").DependsOn("a")
	if !reg.Target("c").Includes("b") {
		t.Error("Includes(b) via cycle = false, want true")
	}
}

func TestResolveOrder(t *testing.T) {
	t.Run("deepest first, minimum depth wins", func(t *testing.T) {
		reg := NewRegistry()
		reg.Target("a0").DependsOn("b0", "b1")
		reg.Target("b0").DependsOn("c0", "c1")
		reg.Target("b1").DependsOn("c0", "c2")

		got := names(ResolveOrder(reg.Target("a0")))
		want := []string{"c0", "c1", "c2", "b0", "b1", "a0"}
		if !equal(got, want) {
			t.Errorf("ResolveOrder() = %v, want %v", got, want)
		}
	})

	t.Run("direct dependency keeps its shallow depth", func(t *testing.T) {
		reg := NewRegistry()
		reg.Target("a0").DependsOn("b0", "c0")
		reg.Target("b0").DependsOn("c0")

		got := names(ResolveOrder(reg.Target("a0")))
		want := []string{"b0", "c0", "a0"}
		if !equal(got, want) {
			t.Errorf("ResolveOrder() = %v, want %v", got, want)
		}
	})
}
