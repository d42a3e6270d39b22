package doc

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidPath is returned for writes that do not address a node.
var ErrInvalidPath = errors.New("invalid document path")

// Patch is a set of writes committed atomically. Keys are paths, a nil
// value deletes the node.
type Patch map[string]any

// Set records a write and returns the patch for chaining.
func (p Patch) Set(path string, value any) Patch {
	p[Join(path)] = value
	return p
}

// Merge copies every write of other into p.
func (p Patch) Merge(other Patch) Patch {
	for k, v := range other {
		p[k] = v
	}
	return p
}

// Prefix returns a copy of p with every path rooted at prefix.
func (p Patch) Prefix(prefix string) Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		out[Join(prefix, k)] = v
	}
	return out
}

// Paths returns the written paths, shortest first so that a write to a
// parent never clobbers a write to one of its children in the same patch.
func (p Patch) Paths() []string {
	paths := make([]string, 0, len(p))
	for k := range p {
		paths = append(paths, k)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := len(Split(paths[i])), len(Split(paths[j]))
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
	return paths
}

// Normalized returns a copy of p with every value in JSON-shaped form and
// placeholders resolved by resolve (which may be nil to keep them).
func (p Patch) Normalized(resolve func(any) any) (Patch, error) {
	out := make(Patch, len(p))
	for _, path := range p.Paths() {
		if len(Split(path)) == 0 {
			return nil, fmt.Errorf("patch %q: %w", path, ErrInvalidPath)
		}
		v, err := Normalize(p[path])
		if err != nil {
			return nil, fmt.Errorf("patch %q: %w", path, err)
		}
		if resolve != nil {
			v = resolvePlaceholders(v, resolve)
		}
		out[path] = v
	}
	return out, nil
}

func resolvePlaceholders(v any, resolve func(any) any) any {
	if IsServerTimestamp(v) {
		return resolve(v)
	}
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			t[k] = resolvePlaceholders(t[k], resolve)
		}
	case []any:
		for i := range t {
			t[i] = resolvePlaceholders(t[i], resolve)
		}
	}
	return v
}

// Apply commits a normalized patch to root.
func Apply(root Tree, p Patch) error {
	for _, path := range p.Paths() {
		if err := Set(root, path, Clone(p[path])); err != nil {
			return err
		}
	}
	return nil
}
