package subjects

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"strconv"

	"caerbannog/internal/op"
	"caerbannog/internal/report"
)

// HasOwner asserts user and/or group ownership of a path. An empty user or
// group leaves that half unmanaged.
type HasOwner struct {
	op.Record
	path  string
	user  string
	group string
}

func (a *HasOwner) Kind() op.Kind { return KindHasOwner }

func (a *HasOwner) Prepare(*op.Context) error { return nil }

func (a *HasOwner) Apply(ctx *op.Context, log *report.Log) error {
	oldUser, oldGroup, err := ownerNames(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		// The prerequisite that creates the path has not run in this
		// pretend pass. Under real execution the same condition is an
		// ordering bug.
		if !ctx.Modify {
			a.DisplayFailed(log)
			return nil
		}
		return fmt.Errorf("stat %s: %w", a.path, err)
	}
	if err != nil {
		return err
	}

	newUser := ""
	if a.user != "" && oldUser != a.user {
		newUser = a.user
	}
	newGroup := ""
	if a.group != "" && oldGroup != a.group {
		newGroup = a.group
	}

	if newUser == "" && newGroup == "" {
		a.DisplayPassed(log)
		return nil
	}

	if ctx.Modify {
		uid, gid := -1, -1
		if newUser != "" {
			u, err := user.Lookup(newUser)
			if err != nil {
				return fmt.Errorf("look up user %q: %w", newUser, err)
			}
			if uid, err = strconv.Atoi(u.Uid); err != nil {
				return err
			}
		}
		if newGroup != "" {
			g, err := user.LookupGroup(newGroup)
			if err != nil {
				return fmt.Errorf("look up group %q: %w", newGroup, err)
			}
			if gid, err = strconv.Atoi(g.Gid); err != nil {
				return err
			}
		}
		if err := os.Chown(a.path, uid, gid); err != nil {
			return err
		}
	}

	if newUser != "" {
		a.Register(op.NewChange("user changed", op.RemoveLine(oldUser), op.AddLine(newUser)))
	}
	if newGroup != "" {
		a.Register(op.NewChange("group changed", op.RemoveLine(oldGroup), op.AddLine(newGroup)))
	}

	a.Display(log)
	return nil
}

// HasMode asserts the permission bits of a path.
type HasMode struct {
	op.Record
	path string
	mode fs.FileMode
}

func (a *HasMode) Kind() op.Kind { return KindHasMode }

func (a *HasMode) Prepare(*op.Context) error { return nil }

func (a *HasMode) Apply(ctx *op.Context, log *report.Log) error {
	info, err := os.Lstat(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		if !ctx.Modify {
			a.DisplayFailed(log)
			return nil
		}
		return fmt.Errorf("stat %s: %w", a.path, err)
	}
	if err != nil {
		return err
	}

	current := info.Mode().Perm()
	if current != a.mode {
		if ctx.Modify {
			if err := os.Chmod(a.path, a.mode); err != nil {
				return err
			}
		}
		a.Register(op.NewChange("mode changed",
			op.RemoveLine(fmt.Sprintf("%03o", current)),
			op.AddLine(fmt.Sprintf("%03o", a.mode))))
	}

	a.Display(log)
	return nil
}
