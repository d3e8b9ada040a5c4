package subjects

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"caerbannog/internal/op"
	"caerbannog/internal/report"
)

// Assertion kinds of the systemd family.
const (
	KindServiceStarted   op.Kind = "service-started"
	KindServiceEnabled   op.Kind = "service-enabled"
	KindServiceRestarted op.Kind = "service-restarted"
	KindDaemonReloaded   op.Kind = "daemon-reloaded"
)

// Scope selects which systemd instance manages a unit.
type Scope string

const (
	ScopeSystem Scope = "system"
	ScopeUser   Scope = "user"
)

// SystemdService manages one systemd unit.
type SystemdService struct {
	state op.SubjectState
	rc    *op.RoleContext
	name  string
	scope Scope
}

// NewSystemdService returns a service subject for the named unit.
func NewSystemdService(rc *op.RoleContext, name string, scope Scope) *SystemdService {
	return &SystemdService{rc: rc, name: name, scope: scope}
}

func (s *SystemdService) State() *op.SubjectState { return &s.state }

func (s *SystemdService) Describe() string { return fmt.Sprintf("service %s", s.name) }

func (s *SystemdService) Clone() op.Subject { return NewSystemdService(s.rc, s.name, s.scope) }

// IsStarted asserts ActiveState=active, starting the unit on drift.
func (s *SystemdService) IsStarted() *SystemdService {
	s.state.AddAssertion(&ServiceStarted{Record: op.NewRecord("is started"), service: s})
	return s
}

// IsEnabled asserts UnitFileState=enabled, enabling the unit on drift.
func (s *SystemdService) IsEnabled() *SystemdService {
	s.state.AddAssertion(&ServiceEnabled{Record: op.NewRecord("is enabled"), service: s})
	return s
}

// IsRestarted restarts the unit unconditionally. Meant for derived handler
// subjects, not steady-state configuration.
func (s *SystemdService) IsRestarted() *SystemdService {
	s.state.AddAssertion(&ServiceRestarted{Record: op.NewRecord("is restarted"), service: s})
	return s
}

// IsReloaded reloads the systemd daemon for this scope.
func (s *SystemdService) IsReloaded() *SystemdService {
	s.state.AddAssertion(&DaemonReloaded{
		Record: op.NewRecord(fmt.Sprintf("systemd %s daemon is reloaded", s.scope)),
		scope:  s.scope,
	})
	return s
}

// File attaches the unit file as a prerequisite subject and lets configure
// fill in its assertions. By default the service file reloads the systemd
// daemon when it changes.
func (s *SystemdService) File(configure func(*ServiceFile)) *SystemdService {
	sf := newServiceFile(s)
	sf.IsPresent(true)
	if s.scope == ScopeSystem {
		sf.IsSystemFile()
	}
	configure(sf)
	s.state.AddPrerequisite(sf)
	return s
}

// property queries one systemd unit property, failing when the unit does
// not exist in this scope.
func (s *SystemdService) property(ctx *op.Context, property string) (string, error) {
	status := s.scopedCommand(ctx, "status", s.name)
	status.Env = hostEnv(ctx)
	if err := status.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) && exit.ExitCode() == 4 {
			return "", fmt.Errorf("systemd unit %q does not exist in %s scope", s.name, s.scope)
		}
	}

	show := s.scopedCommand(ctx, "show", "--value", "--property", property, s.name)
	show.Env = hostEnv(ctx)
	out, err := show.Output()
	if err != nil {
		return "", fmt.Errorf("query %s of %q: %w", property, s.name, err)
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}

func (s *SystemdService) scopedCommand(ctx *op.Context, args ...string) *exec.Cmd {
	return scopedCommand(ctx, s.scope, args...)
}

func scopedCommand(ctx *op.Context, scope Scope, args ...string) *exec.Cmd {
	if scope == ScopeSystem {
		return exec.Command("systemctl", args...)
	}
	return userCommand(ctx, "systemctl", append([]string{"--user"}, args...)...)
}

// ServiceFile is the unit file belonging to a SystemdService. Changing it
// fires a generated handler that reloads the daemon and/or restarts the
// service, depending on the toggles.
type ServiceFile struct {
	File
	service *SystemdService
	handler *op.Handler
	reload  bool
	restart bool
}

func newServiceFile(s *SystemdService) *ServiceFile {
	ctx := s.rc.Context()
	var path string
	if s.scope == ScopeSystem {
		path = filepath.Join("/etc/systemd/system", s.name)
	} else {
		path = ctx.Host.XDGConfigHome("systemd", "user", s.name)
	}

	sf := &ServiceFile{File: File{fsEntry{ctx: ctx, path: path}}, service: s}
	sf.Annotate(fmt.Sprintf("%s service file", s.scope))
	sf.ReloadsDaemon()
	return sf
}

// ReloadsDaemon reloads the systemd daemon when the file changed. On by
// default.
func (sf *ServiceFile) ReloadsDaemon() *ServiceFile {
	sf.reload = true
	sf.updateHandler()
	return sf
}

// DoesNotReloadDaemon disables the daemon reload.
func (sf *ServiceFile) DoesNotReloadDaemon() *ServiceFile {
	sf.reload = false
	sf.updateHandler()
	return sf
}

// RestartsService restarts the service when the file changed.
func (sf *ServiceFile) RestartsService() *ServiceFile {
	sf.restart = true
	sf.updateHandler()
	return sf
}

// DoesNotRestartService disables the service restart.
func (sf *ServiceFile) DoesNotRestartService() *ServiceFile {
	sf.restart = false
	sf.updateHandler()
	return sf
}

// updateHandler rebuilds the generated handler to match the current
// toggles. The derived subject is constructed explicitly from a fresh
// clone: reload first, then restart.
func (sf *ServiceFile) updateHandler() {
	if sf.handler != nil {
		sf.service.rc.RemoveHandler(sf.handler)
		sf.handler = nil
	}
	if !sf.reload && !sf.restart {
		return
	}

	derived := NewSystemdService(sf.service.rc, sf.service.name, sf.service.scope)
	if sf.reload {
		derived.IsReloaded()
	}
	if sf.restart {
		derived.IsRestarted()
	}
	sf.handler = op.NewGeneratedHandler(sf.service.rc, derived).Watch(sf)
}

// ServiceStarted asserts that the unit is active.
type ServiceStarted struct {
	op.Record
	service *SystemdService
}

func (a *ServiceStarted) Kind() op.Kind { return KindServiceStarted }

func (a *ServiceStarted) Prepare(*op.Context) error { return nil }

func (a *ServiceStarted) Apply(ctx *op.Context, log *report.Log) error {
	state, err := a.service.property(ctx, "ActiveState")
	if err != nil {
		return err
	}
	switch state {
	case "active":
		a.DisplayPassed(log)
		return nil
	case "inactive":
		change := op.NewChange("started").WithAction(func(ctx *op.Context) error {
			return runScoped(ctx, a.service, "start", a.service.name)
		})
		a.Register(change)
		if ctx.Modify {
			if err := change.Run(ctx); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown state for service %q: ActiveState=%s", a.service.name, state)
	}

	a.Display(log)
	return nil
}

// ServiceEnabled asserts that the unit is enabled.
type ServiceEnabled struct {
	op.Record
	service *SystemdService
}

func (a *ServiceEnabled) Kind() op.Kind { return KindServiceEnabled }

func (a *ServiceEnabled) Prepare(*op.Context) error { return nil }

func (a *ServiceEnabled) Apply(ctx *op.Context, log *report.Log) error {
	state, err := a.service.property(ctx, "UnitFileState")
	if err != nil {
		return err
	}
	switch state {
	case "enabled":
		a.DisplayPassed(log)
		return nil
	case "disabled":
		change := op.NewChange("enabled").WithAction(func(ctx *op.Context) error {
			return runScoped(ctx, a.service, "enable", a.service.name)
		})
		a.Register(change)
		if ctx.Modify {
			if err := change.Run(ctx); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown state for service %q: UnitFileState=%s", a.service.name, state)
	}

	a.Display(log)
	return nil
}

// ServiceRestarted restarts the unit on every application.
type ServiceRestarted struct {
	op.Record
	service *SystemdService
}

func (a *ServiceRestarted) Kind() op.Kind { return KindServiceRestarted }

func (a *ServiceRestarted) Prepare(*op.Context) error { return nil }

func (a *ServiceRestarted) Apply(ctx *op.Context, log *report.Log) error {
	change := op.NewChange("restarted").WithAction(func(ctx *op.Context) error {
		return runScoped(ctx, a.service, "restart", a.service.name)
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

// DaemonReloaded reloads the scope's systemd daemon on every application.
type DaemonReloaded struct {
	op.Record
	scope Scope
}

func (a *DaemonReloaded) Kind() op.Kind { return KindDaemonReloaded }

func (a *DaemonReloaded) Prepare(*op.Context) error { return nil }

func (a *DaemonReloaded) Apply(ctx *op.Context, log *report.Log) error {
	scope := a.scope
	change := op.NewChange("reloaded").WithAction(func(ctx *op.Context) error {
		cmd := scopedCommand(ctx, scope, "daemon-reload")
		cmd.Env = hostEnv(ctx)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("daemon-reload failed: %w\n%s", err, out)
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

func runScoped(ctx *op.Context, s *SystemdService, args ...string) error {
	cmd := s.scopedCommand(ctx, args...)
	cmd.Env = hostEnv(ctx)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl %s failed: %w\n%s", strings.Join(args, " "), err, out)
	}
	return nil
}
