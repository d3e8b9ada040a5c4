// Package subjects provides the built-in subject types: the filesystem
// family (files, directories, symlinks) that every other resource type is
// modeled after, plus packages, services and groups backed by external
// commands.
package subjects

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"caerbannog/internal/op"
	"caerbannog/internal/report"
)

// Assertion kinds of the filesystem family.
const (
	KindIsFile           op.Kind = "is-file"
	KindIsDirectory      op.Kind = "is-directory"
	KindIsSymlink        op.Kind = "is-symlink"
	KindIsAbsent         op.Kind = "is-absent"
	KindHasOwner         op.Kind = "has-owner"
	KindHasMode          op.Kind = "has-mode"
	KindHasContent       op.Kind = "has-content"
	KindHasBinaryContent op.Kind = "has-binary-content"
)

// fsEntry carries the state shared by File, Directory and Symlink.
type fsEntry struct {
	state op.SubjectState
	ctx   *op.Context
	path  string
}

func (e *fsEntry) State() *op.SubjectState { return &e.state }

func (e *fsEntry) Describe() string { return fmt.Sprintf("path %s", e.path) }

// Path returns the filesystem path this entry manages.
func (e *fsEntry) Path() string { return e.path }

func (e *fsEntry) isFile(createParents bool) {
	e.state.AddAssertion(&IsFile{Record: op.NewRecord("is file"), entry: e, createParents: createParents})
	e.defaultOwner()
}

func (e *fsEntry) isDirectory(createParents bool) {
	e.state.AddAssertion(&IsDirectory{Record: op.NewRecord("is directory"), entry: e, createParents: createParents})
	e.defaultOwner()
}

func (e *fsEntry) isSymlink(target string, createParents bool) {
	e.state.AddAssertion(&IsSymlink{
		Record:        op.NewRecord(fmt.Sprintf("is symlink to %s", target)),
		entry:         e,
		target:        target,
		createParents: createParents,
	})
	e.defaultOwner()
}

// defaultOwner pins presence assertions to the invoking user on Linux,
// unless ownership has been set explicitly.
func (e *fsEntry) defaultOwner() {
	if e.ctx.Host.IsLinux() && !e.state.HasAssertion(KindHasOwner) {
		e.hasOwner(e.ctx.Host.User.Username, e.ctx.Host.User.Groupname)
	}
}

func (e *fsEntry) hasOwner(user, group string) {
	name := ownershipName(user, group)
	e.state.AddAssertion(&HasOwner{Record: op.NewRecord(name), path: e.path, user: user, group: group})
}

func (e *fsEntry) hasMode(mode fs.FileMode) {
	e.state.AddAssertion(&HasMode{Record: op.NewRecord(fmt.Sprintf("has mode: %03o", mode)), path: e.path, mode: mode})
}

func (e *fsEntry) isAbsent() {
	e.state.AddAssertion(&IsAbsent{Record: op.NewRecord("is absent"), path: e.path})
}

func ownershipName(user, group string) string {
	name := "has owner:"
	if user != "" {
		name += " user=" + user
	}
	if group != "" {
		name += " group=" + group
	}
	return name
}

// File manages a regular file.
type File struct{ fsEntry }

// NewFile returns a file subject for path.
func NewFile(ctx *op.Context, path string) *File {
	return &File{fsEntry{ctx: ctx, path: path}}
}

func (f *File) Clone() op.Subject { return NewFile(f.ctx, f.path) }

// IsPresent asserts that the file exists as a regular file. With
// createParents, missing parent directories are created first.
func (f *File) IsPresent(createParents bool) *File {
	f.isFile(createParents)
	return f
}

// HasContent asserts that the file holds exactly content. An IsFile
// assertion is added first if none is live yet.
func (f *File) HasContent(content string, createParents bool) *File {
	if !f.state.HasAssertion(KindIsFile) {
		f.isFile(createParents)
	}
	f.state.AddAssertion(&HasContent{Record: op.NewRecord("has content"), path: f.path, content: content})
	return f
}

// HasBinaryContent is HasContent for binary payloads; drift is reported as a
// byte-count delta instead of a text diff.
func (f *File) HasBinaryContent(content []byte, createParents bool) *File {
	if !f.state.HasAssertion(KindIsFile) {
		f.isFile(createParents)
	}
	f.state.AddAssertion(&HasBinaryContent{Record: op.NewRecord("has content"), path: f.path, content: content})
	return f
}

// HasContentFrom asserts content equal to a file shipped with the current
// role, addressed relative to the role directory.
func (f *File) HasContentFrom(rolePath string, createParents bool) (*File, error) {
	full := f.ctx.ResolvePath(rolePath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read role file: %w", err)
	}
	return f.HasContent(string(data), createParents), nil
}

// HasLines asserts content equal to the given lines joined with newlines,
// with a trailing final newline.
func (f *File) HasLines(createParents bool, lines ...string) *File {
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	return f.HasContent(content, createParents)
}

// HasOwner asserts ownership. Empty user or group leaves that half
// unmanaged.
func (f *File) HasOwner(user, group string) *File {
	f.hasOwner(user, group)
	return f
}

// HasMode asserts the permission bits.
func (f *File) HasMode(mode fs.FileMode) *File {
	f.hasMode(mode)
	return f
}

// IsSystemFile asserts root:root ownership.
func (f *File) IsSystemFile() *File {
	return f.HasOwner("root", "root")
}

// IsAbsent asserts that nothing exists at the path.
func (f *File) IsAbsent() *File {
	f.isAbsent()
	return f
}

// Annotate overrides the subject's description.
func (f *File) Annotate(description string) *File {
	f.state.SetDescription(description)
	return f
}

// Directory manages a directory.
type Directory struct{ fsEntry }

// NewDirectory returns a directory subject for path.
func NewDirectory(ctx *op.Context, path string) *Directory {
	return &Directory{fsEntry{ctx: ctx, path: path}}
}

func (d *Directory) Clone() op.Subject { return NewDirectory(d.ctx, d.path) }

// IsPresent asserts that the directory exists. With createParents, missing
// parent directories are created first.
func (d *Directory) IsPresent(createParents bool) *Directory {
	d.isDirectory(createParents)
	return d
}

// HasOwner asserts ownership.
func (d *Directory) HasOwner(user, group string) *Directory {
	d.hasOwner(user, group)
	return d
}

// HasMode asserts the permission bits.
func (d *Directory) HasMode(mode fs.FileMode) *Directory {
	d.hasMode(mode)
	return d
}

// IsSystemFile asserts root:root ownership.
func (d *Directory) IsSystemFile() *Directory {
	return d.HasOwner("root", "root")
}

// IsAbsent asserts that nothing exists at the path.
func (d *Directory) IsAbsent() *Directory {
	d.isAbsent()
	return d
}

// Annotate overrides the subject's description.
func (d *Directory) Annotate(description string) *Directory {
	d.state.SetDescription(description)
	return d
}

// Symlink manages a symbolic link. Symlinks have no mode of their own, so
// there is no HasMode here.
type Symlink struct{ fsEntry }

// NewSymlink returns a symlink subject for path.
func NewSymlink(ctx *op.Context, path string) *Symlink {
	return &Symlink{fsEntry{ctx: ctx, path: path}}
}

func (s *Symlink) Clone() op.Subject { return NewSymlink(s.ctx, s.path) }

// HasTarget asserts that the path is a symlink pointing at target.
func (s *Symlink) HasTarget(target string, createParents bool) *Symlink {
	s.isSymlink(target, createParents)
	return s
}

// HasOwner asserts ownership of the link itself.
func (s *Symlink) HasOwner(user, group string) *Symlink {
	s.hasOwner(user, group)
	return s
}

// IsAbsent asserts that nothing exists at the path.
func (s *Symlink) IsAbsent() *Symlink {
	s.isAbsent()
	return s
}

// Annotate overrides the subject's description.
func (s *Symlink) Annotate(description string) *Symlink {
	s.state.SetDescription(description)
	return s
}

// entryKind classifies what currently occupies a path.
type entryKind int

const (
	entryNone entryKind = iota
	entryFile
	entryDirectory
	entrySymlink
	entryOther
)

func classify(path string) (entryKind, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entryNone, nil
	}
	if err != nil {
		return entryNone, fmt.Errorf("stat %s: %w", path, err)
	}
	switch {
	case info.Mode().IsRegular():
		return entryFile, nil
	case info.IsDir():
		return entryDirectory, nil
	case info.Mode()&fs.ModeSymlink != 0:
		return entrySymlink, nil
	default:
		return entryOther, nil
	}
}

// prepareParent attaches a parent-directory prerequisite to entry when the
// immediate parent does not exist. The parent inherits the given mode and
// ownership assertions when present.
func prepareParent(ctx *op.Context, entry *fsEntry, mode *fs.FileMode, owner *HasOwner) error {
	parentPath := filepath.Dir(entry.path)
	if _, err := os.Stat(parentPath); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat parent %s: %w", parentPath, err)
	}

	parent := NewDirectory(ctx, parentPath).
		IsPresent(true).
		Annotate(fmt.Sprintf("parent directory %s", parentPath))
	if mode != nil {
		parent.HasMode(*mode)
	}
	if owner != nil {
		parent.HasOwner(owner.user, owner.group)
	}
	entry.state.AddPrerequisite(parent)
	return nil
}

// dirMode derives a directory mode from a file mode by mirroring the read
// bits into the execute position, so a 0640 file yields a 0750 directory.
func dirMode(fileMode fs.FileMode) fs.FileMode {
	readBits := fileMode & 0o444
	return fileMode | readBits>>2
}

// IsFile asserts that the path holds a regular file, replacing a directory
// or symlink occupying it and creating it when absent.
type IsFile struct {
	op.Record
	entry         *fsEntry
	createParents bool
}

func (a *IsFile) Kind() op.Kind { return KindIsFile }

func (a *IsFile) Prepare(ctx *op.Context) error {
	if !a.createParents {
		return nil
	}
	var mode *fs.FileMode
	if hm, ok := a.entry.state.AssertionOf(KindHasMode); ok {
		converted := dirMode(hm.(*HasMode).mode)
		mode = &converted
	}
	var owner *HasOwner
	if ho, ok := a.entry.state.AssertionOf(KindHasOwner); ok {
		owner = ho.(*HasOwner)
	}
	return prepareParent(ctx, a.entry, mode, owner)
}

func (a *IsFile) Apply(ctx *op.Context, log *report.Log) error {
	kind, err := classify(a.entry.path)
	if err != nil {
		return err
	}

	switch kind {
	case entryFile:
		a.DisplayPassed(log)
		return nil
	case entryDirectory:
		if ctx.Modify {
			if err := os.RemoveAll(a.entry.path); err != nil {
				return err
			}
		}
		a.Register(directoryRemoved())
	case entrySymlink:
		if ctx.Modify {
			if err := os.Remove(a.entry.path); err != nil {
				return err
			}
		}
		a.Register(symlinkRemoved())
	case entryOther:
		return fmt.Errorf("%q is not a file, directory or symlink", a.entry.path)
	}

	if ctx.Modify {
		f, err := os.OpenFile(a.entry.path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	a.Register(fileCreated())

	a.DisplayChanged(log)
	return nil
}

// IsDirectory asserts that the path holds a directory.
type IsDirectory struct {
	op.Record
	entry         *fsEntry
	createParents bool
}

func (a *IsDirectory) Kind() op.Kind { return KindIsDirectory }

func (a *IsDirectory) Prepare(ctx *op.Context) error {
	if !a.createParents {
		return nil
	}
	var mode *fs.FileMode
	if hm, ok := a.entry.state.AssertionOf(KindHasMode); ok {
		m := hm.(*HasMode).mode
		mode = &m
	}
	return prepareParent(ctx, a.entry, mode, nil)
}

func (a *IsDirectory) Apply(ctx *op.Context, log *report.Log) error {
	kind, err := classify(a.entry.path)
	if err != nil {
		return err
	}

	switch kind {
	case entryDirectory:
		a.DisplayPassed(log)
		return nil
	case entryFile:
		if ctx.Modify {
			if err := os.Remove(a.entry.path); err != nil {
				return err
			}
		}
		a.Register(fileRemoved())
	case entrySymlink:
		if ctx.Modify {
			if err := os.Remove(a.entry.path); err != nil {
				return err
			}
		}
		a.Register(symlinkRemoved())
	case entryOther:
		return fmt.Errorf("%q is not a file, directory or symlink", a.entry.path)
	}

	if ctx.Modify {
		if err := os.Mkdir(a.entry.path, 0o755); err != nil {
			return err
		}
	}
	a.Register(directoryCreated())

	a.DisplayChanged(log)
	return nil
}

// IsSymlink asserts that the path is a symlink with the desired target.
type IsSymlink struct {
	op.Record
	entry         *fsEntry
	target        string
	createParents bool
}

func (a *IsSymlink) Kind() op.Kind { return KindIsSymlink }

func (a *IsSymlink) Prepare(ctx *op.Context) error {
	if !a.createParents {
		return nil
	}
	return prepareParent(ctx, a.entry, nil, nil)
}

func (a *IsSymlink) Apply(ctx *op.Context, log *report.Log) error {
	kind, err := classify(a.entry.path)
	if err != nil {
		return err
	}

	switch kind {
	case entrySymlink:
		oldTarget, err := os.Readlink(a.entry.path)
		if err != nil {
			return err
		}
		if oldTarget == a.target {
			a.DisplayPassed(log)
			return nil
		}
		if ctx.Modify {
			if err := os.Remove(a.entry.path); err != nil {
				return err
			}
			if err := os.Symlink(a.target, a.entry.path); err != nil {
				return err
			}
		}
		a.Register(symlinkChanged(oldTarget, a.target))
		a.DisplayChanged(log)
		return nil
	case entryDirectory:
		if ctx.Modify {
			if err := os.RemoveAll(a.entry.path); err != nil {
				return err
			}
		}
		a.Register(directoryRemoved())
	case entryFile:
		if ctx.Modify {
			if err := os.Remove(a.entry.path); err != nil {
				return err
			}
		}
		a.Register(fileRemoved())
	case entryOther:
		return fmt.Errorf("%q is not a file, directory or symlink", a.entry.path)
	}

	if ctx.Modify {
		if err := os.Symlink(a.target, a.entry.path); err != nil {
			return err
		}
	}
	a.Register(symlinkCreated())

	a.DisplayChanged(log)
	return nil
}

// IsAbsent asserts that nothing occupies the path.
type IsAbsent struct {
	op.Record
	path string
}

func (a *IsAbsent) Kind() op.Kind { return KindIsAbsent }

func (a *IsAbsent) Prepare(*op.Context) error { return nil }

func (a *IsAbsent) Apply(ctx *op.Context, log *report.Log) error {
	kind, err := classify(a.path)
	if err != nil {
		return err
	}

	switch kind {
	case entryDirectory:
		if ctx.Modify {
			if err := os.RemoveAll(a.path); err != nil {
				return err
			}
		}
		a.Register(directoryRemoved())
	case entryFile:
		if ctx.Modify {
			if err := os.Remove(a.path); err != nil {
				return err
			}
		}
		a.Register(fileRemoved())
	case entrySymlink:
		if ctx.Modify {
			if err := os.Remove(a.path); err != nil {
				return err
			}
		}
		a.Register(symlinkRemoved())
	case entryOther:
		return fmt.Errorf("%q is not a file, directory or symlink", a.path)
	}

	a.Display(log)
	return nil
}

// Change constructors shared by the family.

func fileCreated() *op.Change      { return op.NewChange("file created") }
func directoryCreated() *op.Change { return op.NewChange("directory created") }
func symlinkCreated() *op.Change   { return op.NewChange("symlink created") }
func fileRemoved() *op.Change      { return op.NewChange("file removed") }
func directoryRemoved() *op.Change { return op.NewChange("directory removed") }
func symlinkRemoved() *op.Change   { return op.NewChange("symlink removed") }

func symlinkChanged(oldTarget, newTarget string) *op.Change {
	return op.NewChange("symlink changed", op.RemoveLine(oldTarget), op.AddLine(newTarget))
}
