// Package vars loads hierarchical variable trees from YAML files and merges
// them according to per-level conflict strategies. The merge order across a
// target graph is decided by target.ResolveOrder: generic targets first,
// the selected target last, so closer values override farther ones.
package vars

import (
	"errors"
	"fmt"
)

// Tree is a variable tree: string keys mapping to scalars, sequences or
// nested trees, exactly as yaml.v3 decodes a mapping.
type Tree = map[string]any

// ConflictKey is the reserved sentinel key naming the merge strategy for the
// level it appears at. It is preserved in merge results and applies only at
// its own level unless repeated in subtrees.
const ConflictKey = "$conflict"

// Strategy selects how Unify treats two trees at one level.
type Strategy string

const (
	// StrategyMerge unions keys, recursing into tree/tree conflicts and
	// preferring the overlay otherwise. The default.
	StrategyMerge Strategy = "merge"
	// StrategyReplace drops the base level entirely in favor of the overlay.
	StrategyReplace Strategy = "replace"
	// StrategyError refuses the merge outright once selected, whether or not
	// any key actually conflicts.
	StrategyError Strategy = "error"
)

// ErrConflict is returned when StrategyError is the resolved strategy.
var ErrConflict = errors.New("refusing to merge conflicting variable trees")

// Unify merges base and overlay recursively. A sentinel under ConflictKey in
// either tree overrides the given strategy at that level, the overlay's
// sentinel taking precedence over the base's.
func Unify(base, overlay Tree, strategy Strategy) (Tree, error) {
	var sentinel string
	haveSentinel := false
	if v, ok := overlay[ConflictKey]; ok {
		sentinel, haveSentinel = fmt.Sprint(v), true
	} else if v, ok := base[ConflictKey]; ok {
		sentinel, haveSentinel = fmt.Sprint(v), true
	}

	unified := make(Tree)
	if haveSentinel {
		unified[ConflictKey] = sentinel
		strategy = Strategy(sentinel)
	}

	switch strategy {
	case StrategyError:
		return nil, ErrConflict

	case StrategyReplace:
		for k, v := range overlay {
			if k == ConflictKey {
				continue
			}
			unified[k] = v
		}
		return unified, nil
	}

	for k, baseV := range base {
		if k == ConflictKey {
			continue
		}
		overlayV, inOverlay := overlay[k]
		if !inOverlay {
			unified[k] = baseV
			continue
		}
		baseTree, baseIsTree := baseV.(Tree)
		overlayTree, overlayIsTree := overlayV.(Tree)
		if baseIsTree && overlayIsTree {
			merged, err := Unify(baseTree, overlayTree, strategy)
			if err != nil {
				return nil, fmt.Errorf("merge %q: %w", k, err)
			}
			unified[k] = merged
			continue
		}
		unified[k] = overlayV
	}
	for k, overlayV := range overlay {
		if k == ConflictKey {
			continue
		}
		if _, inBase := base[k]; !inBase {
			unified[k] = overlayV
		}
	}

	return unified, nil
}
