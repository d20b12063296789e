package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smilemakc/farmcore/pkg/value"
)

// toDisplayString mirrors treeeval's string coercion for cat/substr/in —
// duplicated rather than shared because the VM is a self-contained
// execution tier that must not call back into the tree evaluator.
func toDisplayString(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return ""
	case value.KindString:
		return v.AsString()
	case value.KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case value.KindInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case value.KindFloat:
		return strconv.FormatFloat(v.AsFloat(), 'f', -1, 64)
	case value.KindDecimal:
		return v.AsDecimal().String()
	default:
		return fmt.Sprintf("%v", v.ToAny())
	}
}

func substr(vals []value.Value) value.Value {
	runes := []rune(toDisplayString(vals[0]))
	n := len(runes)
	start := int(vals[1].ToNumber())
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if start > n {
		start = n
	}
	end := n
	if len(vals) == 3 {
		length := int(vals[2].ToNumber())
		if length < 0 {
			end = n + length
			if end < start {
				end = start
			}
		} else {
			end = start + length
			if end > n {
				end = n
			}
		}
	}
	return value.String(string(runes[start:end]))
}

func merge(vals []value.Value) value.Value {
	var out []value.Value
	for _, v := range vals {
		if v.Kind() == value.KindArray {
			out = append(out, v.AsArray()...)
			continue
		}
		out = append(out, v)
	}
	return value.Array(out)
}

func in(needle, haystack value.Value) bool {
	switch haystack.Kind() {
	case value.KindArray:
		for _, item := range haystack.AsArray() {
			if value.EqualLoose(needle, item) {
				return true
			}
		}
		return false
	case value.KindString:
		return strings.Contains(haystack.AsString(), toDisplayString(needle))
	default:
		return false
	}
}

func toArray(v value.Value) []value.Value {
	if v.Kind() == value.KindArray {
		return v.AsArray()
	}
	return nil
}

// keyMissing reports whether a key counts as missing for the missing ops:
// absent from the scope, or present with an explicit null value.
func keyMissing(scope Scope, key string) bool {
	v, ok := scope.Lookup(key)
	return !ok || v.IsNull()
}
