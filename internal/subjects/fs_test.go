package subjects

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"caerbannog/internal/host"
	"caerbannog/internal/op"
	"caerbannog/internal/report"
)

func testContext(t *testing.T) *op.Context {
	t.Helper()
	facts, err := host.Detect()
	if err != nil {
		t.Fatalf("host.Detect() error = %v", err)
	}
	return &op.Context{Modify: true, Host: facts}
}

func apply(t *testing.T, ctx *op.Context, s op.Subject) {
	t.Helper()
	if err := op.Apply(ctx, s, report.NewWriter(&bytes.Buffer{})); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
}

func changeNames(s op.Subject) []string {
	var names []string
	for _, e := range op.CollectChanges(s) {
		names = append(names, e.Change)
	}
	return names
}

func TestFileIsPresentCreates(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "a.txt")

	f := NewFile(ctx, path).IsPresent(false)
	apply(t, ctx, f)

	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	if !info.Mode().IsRegular() {
		t.Errorf("mode = %v, want regular file", info.Mode())
	}
	if !op.Changed(f) {
		t.Error("Changed() = false after creation")
	}

	// Idempotence: a fresh subject over the converged state records nothing.
	again := NewFile(ctx, path).IsPresent(false)
	apply(t, ctx, again)
	if op.Changed(again) {
		t.Errorf("second apply changed: %v", changeNames(again))
	}
}

func TestFileReplacesDirectory(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "entry")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	f := NewFile(ctx, path).IsPresent(false)
	apply(t, ctx, f)

	info, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Mode().IsRegular() {
		t.Errorf("mode = %v, want regular file", info.Mode())
	}

	names := changeNames(f)
	if len(names) < 2 || names[0] != "directory removed" || names[1] != "file created" {
		t.Errorf("changes = %v, want [directory removed, file created, ...]", names)
	}
}

func TestFileCreateParentsOrdering(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "missing", "file.txt")

	f := NewFile(ctx, path).HasContent("hello\n", true)
	apply(t, ctx, f)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("content = %q, want %q", data, "hello\n")
	}

	names := changeNames(f)
	dirIdx, fileIdx := -1, -1
	for i, name := range names {
		switch name {
		case "directory created":
			if dirIdx < 0 {
				dirIdx = i
			}
		case "file created":
			fileIdx = i
		}
	}
	if dirIdx < 0 || fileIdx < 0 || dirIdx > fileIdx {
		t.Errorf("changes = %v, want directory created before file created", names)
	}

	again := NewFile(ctx, path).HasContent("hello\n", true)
	apply(t, ctx, again)
	if op.Changed(again) {
		t.Errorf("second apply changed: %v", changeNames(again))
	}
}

func TestCreateParentsReplacesDanglingSymlink(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()
	parent := filepath.Join(dir, "confdir")
	if err := os.Symlink(filepath.Join(dir, "nowhere"), parent); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(parent, "file.txt")
	f := NewFile(ctx, path).HasContent("hello\n", true)
	apply(t, ctx, f)

	info, err := os.Lstat(parent)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Errorf("parent mode = %v, want directory", info.Mode())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("content = %q, want %q", data, "hello\n")
	}

	names := changeNames(f)
	removed := false
	for _, name := range names {
		if name == "symlink removed" {
			removed = true
		}
	}
	if !removed {
		t.Errorf("changes = %v, want the dangling parent link removed", names)
	}
}

func TestMissingObjectTolerance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-created")

	t.Run("pretend", func(t *testing.T) {
		ctx := testContext(t)
		ctx.Modify = false
		f := NewFile(ctx, path).HasMode(0o640)
		apply(t, ctx, f)
		if op.Changed(f) {
			t.Errorf("Changed() = true, want no changes: %v", changeNames(f))
		}
	})

	t.Run("modify", func(t *testing.T) {
		ctx := testContext(t)
		f := NewFile(ctx, path).HasMode(0o640)
		err := op.Apply(ctx, f, report.NewWriter(&bytes.Buffer{}))
		if err == nil {
			t.Fatal("Apply() error = nil, want stat failure")
		}
	})
}

func TestDryRunRecordsWithoutTouching(t *testing.T) {
	ctx := testContext(t)
	ctx.Modify = false
	path := filepath.Join(t.TempDir(), "a.txt")

	f := NewFile(ctx, path).IsPresent(false)
	apply(t, ctx, f)

	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("Lstat() error = %v, want not-exist", err)
	}
	if !op.Changed(f) {
		t.Error("Changed() = false in dry run, want recorded change")
	}
}

func TestDirectoryIsPresent(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "dir")

	d := NewDirectory(ctx, path).IsPresent(false)
	apply(t, ctx, d)

	info, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Errorf("mode = %v, want directory", info.Mode())
	}
}

func TestSymlinkHasTarget(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "link")

	s := NewSymlink(ctx, path).HasTarget("/etc/hostname", false)
	apply(t, ctx, s)

	target, err := os.Readlink(path)
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}
	if target != "/etc/hostname" {
		t.Errorf("target = %q, want /etc/hostname", target)
	}

	// Retargeting replaces the link and records old and new targets.
	re := NewSymlink(ctx, path).HasTarget("/etc/os-release", false)
	apply(t, ctx, re)

	target, err = os.Readlink(path)
	if err != nil {
		t.Fatal(err)
	}
	if target != "/etc/os-release" {
		t.Errorf("target = %q, want /etc/os-release", target)
	}
	names := changeNames(re)
	if len(names) != 1 || names[0] != "symlink changed" {
		t.Errorf("changes = %v, want [symlink changed]", names)
	}
}

func TestIsAbsentRemoves(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "doomed")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFile(ctx, path).IsAbsent()
	apply(t, ctx, f)

	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("Lstat() error = %v, want not-exist", err)
	}

	again := NewFile(ctx, path).IsAbsent()
	apply(t, ctx, again)
	if op.Changed(again) {
		t.Errorf("second apply changed: %v", changeNames(again))
	}
}

func TestHasMode(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := NewFile(ctx, path).HasMode(0o640)
	apply(t, ctx, f)

	info, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o640 {
		t.Errorf("mode = %03o, want 640", got)
	}

	again := NewFile(ctx, path).HasMode(0o640)
	apply(t, ctx, again)
	if op.Changed(again) {
		t.Errorf("second apply changed: %v", changeNames(again))
	}
}

func TestHasContentRewrites(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFile(ctx, path).HasContent("new\n", false)
	apply(t, ctx, f)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new\n" {
		t.Errorf("content = %q, want %q", data, "new\n")
	}
}

func TestHasLines(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "a.txt")

	f := NewFile(ctx, path).HasLines(false, "one", "two")
	apply(t, ctx, f)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("content = %q, want %q", data, "one\ntwo\n")
	}
}

func TestDirMode(t *testing.T) {
	cases := []struct {
		file, dir uint32
	}{
		{0o640, 0o750},
		{0o644, 0o755},
		{0o600, 0o700},
		{0o444, 0o555},
	}
	for _, tc := range cases {
		if got := dirMode(os.FileMode(tc.file)); got != os.FileMode(tc.dir) {
			t.Errorf("dirMode(%03o) = %03o, want %03o", tc.file, got, tc.dir)
		}
	}
}

func TestAnnotateOverridesDescription(t *testing.T) {
	ctx := testContext(t)
	f := NewFile(ctx, "/tmp/x").Annotate("the flag file")
	if got := op.Describe(f); got != "the flag file" {
		t.Errorf("Describe() = %q, want %q", got, "the flag file")
	}
}
