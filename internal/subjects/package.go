package subjects

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"caerbannog/internal/op"
	"caerbannog/internal/report"
)

// KindPackagesInstalled is the assertion kind of PackagesInstalled.
const KindPackagesInstalled op.Kind = "packages-installed"

// Package manages one or more packages through the host's package manager.
// Only the pacman backend exists; other hosts fail the assertion.
type Package struct {
	state op.SubjectState
	ctx   *op.Context
	names []string
}

// NewPackage returns a package subject for the given package or group names.
func NewPackage(ctx *op.Context, names ...string) *Package {
	return &Package{ctx: ctx, names: names}
}

func (p *Package) State() *op.SubjectState { return &p.state }

func (p *Package) Describe() string {
	noun := "package"
	if len(p.names) > 1 {
		noun = "packages"
	}
	return fmt.Sprintf("%s %s", noun, strings.Join(p.names, ", "))
}

func (p *Package) Clone() op.Subject { return NewPackage(p.ctx, p.names...) }

// IsInstalled asserts that every named package is installed.
func (p *Package) IsInstalled() *Package {
	name := "is installed"
	if len(p.names) > 1 {
		name = "are installed"
	}
	p.state.AddAssertion(&PackagesInstalled{Record: op.NewRecord(name), names: p.names})
	return p
}

// Annotate overrides the subject's description.
func (p *Package) Annotate(description string) *Package {
	p.state.SetDescription(description)
	return p
}

// PackagesInstalled asserts package presence against the pacman database.
// The installed-package listing is queried once per run and memoized on the
// context.
type PackagesInstalled struct {
	op.Record
	names []string
}

func (a *PackagesInstalled) Kind() op.Kind { return KindPackagesInstalled }

func (a *PackagesInstalled) Prepare(*op.Context) error { return nil }

func (a *PackagesInstalled) Apply(ctx *op.Context, log *report.Log) error {
	if !ctx.Host.IsArchLinux() {
		return fmt.Errorf("no package backend for this host")
	}

	installed, err := installedPackages(ctx)
	if err != nil {
		return err
	}

	var missing []string
	for _, name := range a.names {
		if !installed.packages[name] && !installed.groups[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		a.DisplayPassed(log)
		return nil
	}
	sort.Strings(missing)

	details := make([]op.DiffLine, 0, len(missing))
	for _, name := range missing {
		details = append(details, op.AddLine(name))
	}
	change := op.NewChange("installed", details...).WithAction(func(ctx *op.Context) error {
		return installPackages(ctx, missing)
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

type pacmanState struct {
	packages map[string]bool
	groups   map[string]bool
}

func installedPackages(ctx *op.Context) (pacmanState, error) {
	v, err := ctx.Memo("pacman.installed", func() (any, error) {
		return queryPacman()
	})
	if err != nil {
		return pacmanState{}, err
	}
	return v.(pacmanState), nil
}

func queryPacman() (pacmanState, error) {
	packagesOut, err := exec.Command("pacman", "--query", "--quiet").Output()
	if err != nil {
		return pacmanState{}, fmt.Errorf("query installed packages: %w", err)
	}
	groupsOut, err := exec.Command("pacman", "--query", "--groups").Output()
	if err != nil {
		return pacmanState{}, fmt.Errorf("query installed package groups: %w", err)
	}

	state := pacmanState{packages: make(map[string]bool), groups: make(map[string]bool)}
	for _, line := range strings.Split(strings.TrimSpace(string(packagesOut)), "\n") {
		if line != "" {
			state.packages[line] = true
		}
	}
	for _, line := range strings.Split(strings.TrimSpace(string(groupsOut)), "\n") {
		if group, _, ok := strings.Cut(line, " "); ok {
			state.groups[group] = true
		}
	}
	return state, nil
}

func installPackages(ctx *op.Context, names []string) error {
	cmd, err := elevatedCommand(ctx, "pacman", append([]string{"--sync", "--noconfirm"}, names...)...)
	if err != nil {
		return err
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("installation failed: %w\n%s", err, out)
	}
	return nil
}
