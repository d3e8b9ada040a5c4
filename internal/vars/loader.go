package vars

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"caerbannog/internal/secrets"
	"caerbannog/internal/target"
)

// Loader reads variable trees from a repository's vars/ hierarchy.
// Encrypted files are decrypted transparently; the password is prompted for
// at most once per run and derived keys are cached in the keyring.
type Loader struct {
	// Root is the configuration repository root containing vars/.
	Root string
	// Password supplies the decryption password on first use.
	Password func() (string, error)
	// Keyring caches derived keys. Optional; a default keyring is created
	// on first decryption.
	Keyring *secrets.Keyring

	password      string
	passwordKnown bool
}

// LoadAll merges the global tree (vars/all) with every target tree reachable
// from current, in resolve order: most indirect targets first, current last.
func (l *Loader) LoadAll(current *target.Target) (Tree, error) {
	all, err := l.Load("vars", "all")
	if err != nil {
		return nil, err
	}

	for _, tgt := range target.ResolveOrder(current) {
		tree, err := l.Load(filepath.Join("vars", "targets"), tgt.Name())
		if err != nil {
			return nil, fmt.Errorf("load variables for target %q: %w", tgt.Name(), err)
		}
		all, err = Unify(all, tree, StrategyMerge)
		if err != nil {
			return nil, fmt.Errorf("merge variables for target %q: %w", tgt.Name(), err)
		}
	}

	return all, nil
}

// Load reads the tree for dir/key using the discovery rules: a directory of
// that name (all *.yaml/*.yml inside, sorted by filename) takes precedence
// over <key>.yaml, which takes precedence over <key>.yml. A missing key
// yields an empty tree.
func (l *Loader) Load(dir, key string) (Tree, error) {
	base := filepath.Join(l.Root, dir, key)

	if info, err := os.Stat(base); err == nil && info.IsDir() {
		entries, err := os.ReadDir(base)
		if err != nil {
			return nil, fmt.Errorf("read variable directory: %w", err)
		}
		var files []string
		for _, entry := range entries {
			if entry.Type().IsRegular() && isVarsFile(entry.Name()) {
				files = append(files, entry.Name())
			}
		}
		sort.Strings(files)

		tree := Tree{}
		for _, name := range files {
			loaded, err := l.loadFile(filepath.Join(base, name))
			if err != nil {
				return nil, err
			}
			tree, err = Unify(tree, loaded, StrategyMerge)
			if err != nil {
				return nil, fmt.Errorf("merge %s: %w", name, err)
			}
		}
		return tree, nil
	}

	for _, ext := range []string{".yaml", ".yml"} {
		path := base + ext
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return l.loadFile(path)
		}
	}

	return Tree{}, nil
}

func (l *Loader) loadFile(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variable file: %w", err)
	}

	if secrets.IsSecret(data) {
		password, err := l.lookupPassword()
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", path, err)
		}
		if l.Keyring == nil {
			l.Keyring = secrets.NewKeyring(secrets.DefaultParams)
		}
		data, err = l.Keyring.Decrypt(string(data), password)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", path, err)
		}
	}

	var tree Tree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tree == nil {
		tree = Tree{}
	}
	return tree, nil
}

func (l *Loader) lookupPassword() (string, error) {
	if l.passwordKnown {
		return l.password, nil
	}
	if l.Password == nil {
		return "", fmt.Errorf("no password source configured")
	}
	password, err := l.Password()
	if err != nil {
		return "", err
	}
	l.password = password
	l.passwordKnown = true
	return password, nil
}

func isVarsFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
