// Package doc models the shared document as a JSON-shaped tree addressed by
// slash-separated paths.
//
// Nodes are map[string]any, []any, string, float64, bool or nil, which is
// exactly what encoding/json produces when decoding into an interface value.
// An empty object is never stored: writing nil or an empty map deletes the
// node and prunes any parents left empty.
package doc

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tree is an object node.
type Tree = map[string]any

// Separator separates path segments.
const Separator = "/"

// serverValueKey marks a placeholder the store replaces at write time.
const serverValueKey = ".sv"

// ServerTimestamp is a placeholder resolved by the store to its own clock
// (milliseconds since the epoch) when a patch is committed.
var ServerTimestamp = map[string]any{serverValueKey: "timestamp"}

// IsServerTimestamp reports whether v is the ServerTimestamp placeholder.
func IsServerTimestamp(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	return m[serverValueKey] == "timestamp"
}

// Split returns the non-empty segments of path.
func Split(path string) []string {
	raw := strings.Split(path, Separator)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Join builds a path from segments, ignoring empty ones.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, Split(p)...)
	}
	return strings.Join(out, Separator)
}

// Overlaps reports whether a write at one path can change the value at the
// other, i.e. one is equal to or an ancestor of the other.
func Overlaps(a, b string) bool {
	as, bs := Split(a), Split(b)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Get returns the node at path. The root is returned for an empty path.
func Get(root Tree, path string) (any, bool) {
	var node any = root
	for _, seg := range Split(path) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Set writes value at path, creating intermediate objects as needed. A nil
// value (or empty object) deletes the node. Setting the root is not allowed.
func Set(root Tree, path string, value any) error {
	parts := Split(path)
	if len(parts) == 0 {
		return fmt.Errorf("set root: %w", ErrInvalidPath)
	}
	if isEmpty(value) {
		remove(root, parts)
		return nil
	}

	node := root
	for _, seg := range parts[:len(parts)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
	return nil
}

// remove deletes the node at parts and prunes empty ancestors.
func remove(node Tree, parts []string) bool {
	if len(parts) == 1 {
		delete(node, parts[0])
		return len(node) == 0
	}
	child, ok := node[parts[0]].(map[string]any)
	if !ok {
		return len(node) == 0
	}
	if remove(child, parts[1:]) {
		delete(node, parts[0])
	}
	return len(node) == 0
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// Clone deep-copies a JSON-shaped node.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Clone(child)
		}
		return out
	default:
		return t
	}
}

// Normalize converts an arbitrary Go value into its JSON-shaped form.
// ServerTimestamp placeholders survive unchanged.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode node: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return out, nil
}

// Decode converts a JSON-shaped node into v.
func Decode(node any, v any) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode node: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode node: %w", err)
	}
	return nil
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
