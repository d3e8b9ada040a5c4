// Package target models the graph of named configuration profiles. A target
// lists the targets it requires and the roles it applies; the registry
// interns targets by name on first reference, so a target may be required
// before it is declared.
package target

import "sort"

// Registry holds every declared target. It is populated during the
// declaration phase at startup and read-only afterwards; the currently
// selected target lives on the engine, not here.
type Registry struct {
	targets map[string]*Target
	names   []string // declaration order
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]*Target)}
}

// Target returns the named target, creating it if this is the first
// reference. Forward references in DependsOn are therefore legal.
func (r *Registry) Target(name string) *Target {
	if t, ok := r.targets[name]; ok {
		return t
	}
	t := &Target{name: name, reg: r}
	r.targets[name] = t
	r.names = append(r.names, name)
	return t
}

// Lookup returns the named target without creating it.
func (r *Registry) Lookup(name string) (*Target, bool) {
	t, ok := r.targets[name]
	return t, ok
}

// All returns every known target in declaration order.
func (r *Registry) All() []*Target {
	out := make([]*Target, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.targets[name])
	}
	return out
}

// Target is one named configuration profile.
type Target struct {
	name     string
	requires []string
	roles    []string
	reg      *Registry
}

// DependsOn appends required target names and returns t for chaining.
func (t *Target) DependsOn(names ...string) *Target {
	t.requires = append(t.requires, names...)
	return t
}

// HasRoles appends role names and returns t for chaining.
func (t *Target) HasRoles(roles ...string) *Target {
	t.roles = append(t.roles, roles...)
	return t
}

// Name returns the target's unique name.
func (t *Target) Name() string { return t.name }

// Roles returns the target's own roles in declaration order.
func (t *Target) Roles() []string { return t.roles }

// Requires returns the names of the directly required targets.
func (t *Target) Requires() []string { return t.requires }

// Dependencies resolves the required names against the registry.
func (t *Target) Dependencies() []*Target {
	deps := make([]*Target, 0, len(t.requires))
	for _, name := range t.requires {
		deps = append(deps, t.reg.Target(name))
	}
	return deps
}

// Includes reports whether name is reachable from t over requires edges.
// A target includes itself.
func (t *Target) Includes(name string) bool {
	return t.includes(name, make(map[string]bool))
}

func (t *Target) includes(name string, seen map[string]bool) bool {
	if t.name == name {
		return true
	}
	seen[t.name] = true
	for _, dep := range t.Dependencies() {
		if !seen[dep.name] && dep.includes(name, seen) {
			return true
		}
	}
	return false
}

// ResolveOrder returns every target reachable from t, sorted most-indirect
// first: descending by the minimum depth at which the target is reachable,
// then ascending by name. Variables merged in this order let closer, more
// specific targets override farther, more generic ones; t itself comes
// last.
func ResolveOrder(t *Target) []*Target {
	depths := make(map[*Target]int)

	var walk func(t *Target, depth int)
	walk = func(t *Target, depth int) {
		if existing, ok := depths[t]; ok && depth >= existing {
			// Already reached at least this shallow; the subtree was walked
			// then with depths no larger than it would get now.
			return
		}
		depths[t] = depth
		for _, dep := range t.Dependencies() {
			walk(dep, depth+1)
		}
	}
	walk(t, 0)

	out := make([]*Target, 0, len(depths))
	for tgt := range depths {
		out = append(out, tgt)
	}
	sort.Slice(out, func(i, j int) bool {
		if depths[out[i]] != depths[out[j]] {
			return depths[out[i]] > depths[out[j]]
		}
		return out[i].name < out[j].name
	})
	return out
}
