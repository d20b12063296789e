// Package path implements attribute-path addressing over nested Value
// trees: dotted segments walk into objects (and numeric segments index
// arrays), while segments containing ':' are opaque product:component:
// attribute identifiers addressed only by their exact flat key.
package path

import (
	"sort"
	"strings"

	"github.com/smilemakc/farmcore/pkg/value"
)

// IsOpaque reports whether a flat key is a colon-bearing identifier that
// must never be split on '.'.
func IsOpaque(key string) bool {
	return strings.Contains(key, ":")
}

// Segments splits a dotted path into its component segments. An empty path
// yields no segments (addresses the whole context). Opaque keys yield a
// single segment equal to the whole key.
func Segments(p string) []string {
	if p == "" {
		return nil
	}
	if IsOpaque(p) {
		return []string{p}
	}
	return strings.Split(p, ".")
}

// Get navigates obj by path and returns the value found there, or false if
// any segment is absent. Numeric segments index into arrays; a negative or
// out-of-range index resolves to "not found" (the var operator then falls
// back to its default, or null).
func Get(root map[string]interface{}, p string) (interface{}, bool) {
	if p == "" {
		return root, true
	}
	segs := Segments(p)
	var cur interface{} = root
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			idx, ok := parseIndex(seg)
			if !ok || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func parseIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// Set inserts value at path within root, creating intermediate objects as
// needed. Opaque (colon-bearing) keys are set directly at the top level and
// never split.
func Set(root map[string]interface{}, p string, value interface{}) {
	if p == "" {
		return
	}
	if IsOpaque(p) {
		root[p] = value
		return
	}
	segs := strings.Split(p, ".")
	cur := root
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[seg] = next
		}
		cur = next
	}
}

// Flatten merges a set of dotted keys back into a flat map (inverse of
// grouping) — used by tests that assert the reshape/flatten round trip.
func Flatten(nested map[string]interface{}, prefix string, out map[string]interface{}) {
	for k, v := range nested {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if child, ok := v.(map[string]interface{}); ok && !IsOpaque(k) {
			Flatten(child, full, out)
			continue
		}
		out[full] = v
	}
}

// GetValue navigates a materialized value.Value tree (as produced by
// ToNested + value.FromAny) by dotted path, with the same numeric-index and
// colon-opaque rules as Get. A negative or out-of-range array index
// resolves to "not found", so var falls back to its default or null.
func GetValue(root value.Value, p string) (value.Value, bool) {
	if p == "" {
		return root, true
	}
	cur := root
	for _, seg := range Segments(p) {
		switch cur.Kind() {
		case value.KindObject:
			v, ok := cur.AsObject()[seg]
			if !ok {
				return value.Null, false
			}
			cur = v
		case value.KindArray:
			idx, ok := parseIndex(seg)
			arr := cur.AsArray()
			if !ok || idx < 0 || idx >= len(arr) {
				return value.Null, false
			}
			cur = arr[idx]
		default:
			return value.Null, false
		}
	}
	return cur, true
}

// ToNested deterministically reshapes a flat key→value map into a nested
// tree: every key is split on '.' (unless it contains ':', which stays
// flat) and walked/created as intermediate objects. This is the function
// backing the execution context's nested materialization.
func ToNested(flat map[string]interface{}) map[string]interface{} {
	root := make(map[string]interface{})
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		Set(root, k, flat[k])
	}
	return root
}
