// Package caerbannog is a configuration-management framework for a single
// machine. A configuration repository is a Go program: it declares targets
// and roles against an App and hands control to App.Main, which provides
// the command line (apply, target, encrypt, decrypt, view).
//
//	app := caerbannog.NewApp()
//	app.Target("laptop").DependsOn("base").HasRoles("desktop")
//	app.Target("base").HasRoles("shell")
//	app.RoleFunc("shell", shell.Configure)
//	app.Main()
package caerbannog

import (
	"fmt"
	"os"

	"caerbannog/internal/engine"
	"caerbannog/internal/op"
	"caerbannog/internal/target"
)

// App collects the targets and roles of one configuration repository.
type App struct {
	targets  *target.Registry
	roles    map[string]engine.Role
	password func() (string, error)
}

// NewApp returns an empty App. The secrets password is prompted for on the
// terminal unless PasswordSource overrides it.
func NewApp() *App {
	a := &App{
		targets: target.NewRegistry(),
		roles:   make(map[string]engine.Role),
	}
	a.password = promptPassword
	return a
}

// Target declares (or references) a target by name.
func (a *App) Target(name string) *target.Target {
	return a.targets.Target(name)
}

// Role registers a role under the given name, replacing any previous
// registration.
func (a *App) Role(name string, role engine.Role) {
	a.roles[name] = role
}

// RoleFunc registers a plain function as a role.
func (a *App) RoleFunc(name string, configure func(*op.RoleContext) error) {
	a.Role(name, engine.RoleFunc(configure))
}

// PasswordSource overrides how the secrets password is obtained, e.g. from
// a password manager command instead of an interactive prompt.
func (a *App) PasswordSource(f func() (string, error)) {
	a.password = f
}

// Main runs the command line and exits the process.
func (a *App) Main() {
	if err := a.Command().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
