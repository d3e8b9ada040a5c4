package vars

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"caerbannog/internal/secrets"
	"caerbannog/internal/target"
)

var testParams = secrets.Params{N: 1 << 10, R: 8, P: 1}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDiscovery(t *testing.T) {
	t.Run("directory beats single files", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "vars", "all", "10-base.yaml"), "a: 1\n")
		writeFile(t, filepath.Join(root, "vars", "all", "20-extra.yml"), "b: 2\n")
		writeFile(t, filepath.Join(root, "vars", "all.yaml"), "ignored: true\n")

		l := &Loader{Root: root}
		got, err := l.Load("vars", "all")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		want := Tree{"a": 1, "b": 2}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Load() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("directory files merge in filename order", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "vars", "all", "10-base.yaml"), "a: 1\n")
		writeFile(t, filepath.Join(root, "vars", "all", "20-override.yaml"), "a: 2\n")

		l := &Loader{Root: root}
		got, err := l.Load("vars", "all")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got["a"] != 2 {
			t.Errorf("a = %v, want 2", got["a"])
		}
	})

	t.Run("yaml beats yml", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "vars", "all.yaml"), "from: yaml\n")
		writeFile(t, filepath.Join(root, "vars", "all.yml"), "from: yml\n")

		l := &Loader{Root: root}
		got, err := l.Load("vars", "all")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got["from"] != "yaml" {
			t.Errorf("from = %v, want yaml", got["from"])
		}
	})

	t.Run("missing key yields empty tree", func(t *testing.T) {
		l := &Loader{Root: t.TempDir()}
		got, err := l.Load("vars", "nope")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Load() = %v, want empty tree", got)
		}
	})
}

func TestLoadEncrypted(t *testing.T) {
	root := t.TempDir()
	secret, err := secrets.EncryptWithParams([]byte("token: hunter2\n"), "pass", true, testParams)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "vars", "all.yaml"), secret)

	prompts := 0
	l := &Loader{
		Root:    root,
		Keyring: secrets.NewKeyring(testParams),
		Password: func() (string, error) {
			prompts++
			return "pass", nil
		},
	}

	got, err := l.Load("vars", "all")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got["token"] != "hunter2" {
		t.Errorf("token = %v, want hunter2", got["token"])
	}

	// A second encrypted file must not prompt again.
	if _, err := l.Load("vars", "all"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if prompts != 1 {
		t.Errorf("prompts = %d, want 1", prompts)
	}
}

func TestLoadAllMergeOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "vars", "all.yaml"), "a: global\nb: global\n")
	writeFile(t, filepath.Join(root, "vars", "targets", "base.yaml"), "b: base\nc: base\n")
	writeFile(t, filepath.Join(root, "vars", "targets", "laptop.yaml"), "c: laptop\n")

	reg := target.NewRegistry()
	reg.Target("laptop").DependsOn("base")

	l := &Loader{Root: root}
	got, err := l.LoadAll(reg.Target("laptop"))
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	want := Tree{"a": "global", "b": "base", "c": "laptop"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadAll() mismatch (-want +got):\n%s", diff)
	}
}
