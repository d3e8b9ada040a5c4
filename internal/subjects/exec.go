package subjects

import (
	"fmt"
	"os/exec"

	"caerbannog/internal/op"
)

// elevatedCommand builds a command running with elevated privileges,
// prefixing sudo when elevation happens just in time.
func elevatedCommand(ctx *op.Context, name string, args ...string) (*exec.Cmd, error) {
	switch ctx.Elevation {
	case op.ElevationNone:
		return nil, fmt.Errorf("cannot run %s: elevation is not allowed", name)
	case op.ElevationElevated:
		return exec.Command(name, args...), nil
	case op.ElevationJustInTime:
		return exec.Command("sudo", append([]string{name}, args...)...), nil
	}
	return nil, fmt.Errorf("unknown elevation mode %q", ctx.Elevation)
}

// userCommand builds a command running as the invoking user, dropping
// privileges first when the process itself is elevated.
func userCommand(ctx *op.Context, name string, args ...string) *exec.Cmd {
	if ctx.Elevation == op.ElevationElevated {
		sudoArgs := append([]string{"--preserve-env", "--user", ctx.Host.User.Username, name}, args...)
		return exec.Command("sudo", sudoArgs...)
	}
	return exec.Command(name, args...)
}

// hostEnv renders the context's environment snapshot for exec.Cmd.Env.
func hostEnv(ctx *op.Context) []string {
	env := make([]string, 0, len(ctx.Host.Env))
	for k, v := range ctx.Host.Env {
		env = append(env, k+"="+v)
	}
	return env
}
