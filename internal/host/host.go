// Package host collects facts about the machine being converged: the
// invoking user, the kernel, and well-known directories. Facts are gathered
// once at startup and carried on the run context, so role code and templates
// see a consistent snapshot.
package host

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// User identifies the invoking user. When the process is elevated the facts
// still describe the original user, because they are serialized before the
// re-exec (see the --context handshake in cmd/caerbannog).
type User struct {
	Username  string `json:"username"`
	Groupname string `json:"groupname"`
	UID       int    `json:"uid"`
	GID       int    `json:"gid"`
	HomeDir   string `json:"home_dir"`
}

// Facts is the host snapshot visible to roles as the "host" variable tree.
type Facts struct {
	System string            `json:"system"` // runtime.GOOS
	Kernel string            `json:"kernel"` // uname release, empty off Linux
	Arch   string            `json:"arch"`
	Distro string            `json:"distro"` // os-release NAME, empty off Linux
	User   User              `json:"user"`
	Env    map[string]string `json:"env"`
}

// Detect gathers facts for the current process.
func Detect() (Facts, error) {
	u, err := user.Current()
	if err != nil {
		return Facts{}, fmt.Errorf("look up current user: %w", err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Facts{}, fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Facts{}, fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}

	groupname := u.Gid
	if g, err := user.LookupGroupId(u.Gid); err == nil {
		groupname = g.Name
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	f := Facts{
		System: runtime.GOOS,
		Kernel: kernelRelease(),
		Arch:   runtime.GOARCH,
		Distro: distroName(),
		User: User{
			Username:  u.Username,
			Groupname: groupname,
			UID:       uid,
			GID:       gid,
			HomeDir:   u.HomeDir,
		},
		Env: env,
	}
	return f, nil
}

// IsLinux reports whether the host runs Linux.
func (f Facts) IsLinux() bool { return f.System == "linux" }

// IsArchLinux reports whether the host runs Arch Linux, the distribution the
// pacman package backend targets.
func (f Facts) IsArchLinux() bool { return f.IsLinux() && f.Distro == "Arch Linux" }

// Home joins subpath onto the user's home directory.
func (f Facts) Home(subpath ...string) string {
	return join(f.User.HomeDir, subpath)
}

// XDGConfigHome resolves $XDG_CONFIG_HOME, defaulting to ~/.config.
func (f Facts) XDGConfigHome(subpath ...string) string {
	dir := f.Env["XDG_CONFIG_HOME"]
	if dir == "" {
		dir = f.Home(".config")
	}
	return join(dir, subpath)
}

// XDGDataHome resolves $XDG_DATA_HOME, defaulting to ~/.local/share.
func (f Facts) XDGDataHome(subpath ...string) string {
	dir := f.Env["XDG_DATA_HOME"]
	if dir == "" {
		dir = f.Home(".local", "share")
	}
	return join(dir, subpath)
}

// Tree renders the facts as a variable tree for merging into the run
// context, mirroring the shape roles address as host.user.username etc.
func (f Facts) Tree() map[string]any {
	return map[string]any{
		"system": f.System,
		"kernel": f.Kernel,
		"arch":   f.Arch,
		"distro": f.Distro,
		"user": map[string]any{
			"username":  f.User.Username,
			"groupname": f.User.Groupname,
			"uid":       f.User.UID,
			"gid":       f.User.GID,
			"home_dir":  f.User.HomeDir,
		},
	}
}

func join(base string, subpath []string) string {
	if len(subpath) == 0 {
		return base
	}
	return filepath.Join(append([]string{base}, subpath...)...)
}

func distroName() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if name, ok := strings.CutPrefix(line, "NAME="); ok {
			return strings.Trim(name, `"`)
		}
	}
	return ""
}
