package op

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"caerbannog/internal/host"
	"caerbannog/internal/vars"
)

// Elevation describes how the process acquires privileges for changes that
// need them.
type Elevation string

const (
	// ElevationNone runs every command as the invoking user.
	ElevationNone Elevation = "none"
	// ElevationJustInTime prefixes privileged commands with sudo as needed.
	ElevationJustInTime Elevation = "just-in-time"
	// ElevationElevated marks a process already running elevated after the
	// --elevate re-exec; privileged commands run directly.
	ElevationElevated Elevation = "elevated"
)

// Context carries the run-scoped state every assertion consults: the
// repository root, the selected target, the dry-run flag, variables and host
// facts. It replaces the original process-wide globals with one explicit
// object owned by the engine.
type Context struct {
	Root      string     `json:"root"`
	Target    string     `json:"target"`
	Modify    bool       `json:"modify"`
	Confirm   bool       `json:"confirm"`
	Elevation Elevation  `json:"elevation"`
	Vars      vars.Tree  `json:"vars"`
	Host      host.Facts `json:"host"`

	role string
	memo map[string]any
}

// Serialize encodes the context for the --elevate re-exec handshake.
func (c *Context) Serialize() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("serialize context: %w", err)
	}
	return string(data), nil
}

// Deserialize decodes a context produced by Serialize.
func Deserialize(data string) (*Context, error) {
	var c Context
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("parse serialized context: %w", err)
	}
	return &c, nil
}

// Pretend returns a copy of the context with modification disabled. Caches
// and variables are shared with the original.
func (c *Context) Pretend() *Context {
	pretend := *c
	pretend.Modify = false
	return &pretend
}

// EnterRole records the currently executing role. Called by the engine.
func (c *Context) EnterRole(role string) { c.role = role }

// LeaveRole clears the current role. Called by the engine.
func (c *Context) LeaveRole() { c.role = "" }

// Role returns the currently executing role name.
func (c *Context) Role() string { return c.role }

// RoleDir returns the directory of the named role under the repository root.
func (c *Context) RoleDir(role string) string {
	return filepath.Join(c.Root, "roles", role)
}

// ResolvePath joins parts onto the current role's directory. Role code uses
// it to reference files shipped alongside the role.
func (c *Context) ResolvePath(parts ...string) string {
	return filepath.Join(append([]string{c.RoleDir(c.role)}, parts...)...)
}

// Memo returns the cached value for key, computing and caching it on first
// use. Backends use it for expensive system queries (e.g. the installed-
// package listing); the cache dies with the context and needs no locking in
// the single-threaded execution model.
func (c *Context) Memo(key string, fill func() (any, error)) (any, error) {
	if v, ok := c.memo[key]; ok {
		return v, nil
	}
	v, err := fill()
	if err != nil {
		return nil, err
	}
	if c.memo == nil {
		c.memo = make(map[string]any)
	}
	c.memo[key] = v
	return v, nil
}
