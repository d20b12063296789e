package treeeval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smilemakc/farmcore/pkg/ir"
	"github.com/smilemakc/farmcore/pkg/value"
)

// compareEquality implements the four equality operators' loose/strict
// coercion behavior.
func compareEquality(op ir.Op, a, b value.Value) value.Value {
	switch op {
	case ir.OpEq:
		return value.Bool(value.EqualLoose(a, b))
	case ir.OpStrictEq:
		return value.Bool(value.EqualStrict(a, b))
	case ir.OpNe:
		return value.Bool(!value.EqualLoose(a, b))
	case ir.OpStrictNe:
		return value.Bool(!value.EqualStrict(a, b))
	default:
		return value.Bool(false)
	}
}

func chainCompare(op ir.Op, a, b value.Value) bool {
	var result, ok bool
	switch op {
	case ir.OpLt:
		result, ok = value.Less(a, b)
	case ir.OpLe:
		result, ok = value.LessEqual(a, b)
	case ir.OpGt:
		result, ok = value.Greater(a, b)
	case ir.OpGe:
		result, ok = value.GreaterEqual(a, b)
	}
	return ok && result
}

// evalChainedComparison evaluates a<b<c... left to right, stopping (with a
// false result) at the first failing pair rather than evaluating every
// operand. Each operand is evaluated at most once.
func (e *evaluator) evalChainedComparison(n *ir.Node, scope Scope, dest *value.Value) error {
	first := new(value.Value)
	e.push(e.chainNext(n.Op, n.Args, 1, first, scope, dest))
	e.push(e.evalNode(n.Args[0], scope, first))
	return nil
}

func (e *evaluator) chainNext(op ir.Op, args []*ir.Node, idx int, prev *value.Value, scope Scope, dest *value.Value) cont {
	return func() error {
		if idx >= len(args) {
			*dest = value.Bool(true)
			return nil
		}
		cur := new(value.Value)
		e.push(func() error {
			if !chainCompare(op, *prev, *cur) {
				*dest = value.Bool(false)
				return nil
			}
			e.push(e.chainNext(op, args, idx+1, cur, scope, dest))
			return nil
		})
		e.push(e.evalNode(args[idx], scope, cur))
		return nil
	}
}

// evalAndOr evaluates and/or, short-circuiting on the first operand that
// decides the result and yielding the last evaluated operand's value rather
// than a plain bool.
func (e *evaluator) evalAndOr(n *ir.Node, scope Scope, dest *value.Value) error {
	e.push(e.andOrStep(n.Args, 0, n.Op == ir.OpAnd, scope, dest))
	return nil
}

func (e *evaluator) andOrStep(args []*ir.Node, idx int, isAnd bool, scope Scope, dest *value.Value) cont {
	return func() error {
		cur := new(value.Value)
		isLast := idx == len(args)-1
		e.push(func() error {
			if isLast {
				*dest = *cur
				return nil
			}
			truthy := cur.IsTruthy()
			if (isAnd && !truthy) || (!isAnd && truthy) {
				*dest = *cur
				return nil
			}
			e.push(e.andOrStep(args, idx+1, isAnd, scope, dest))
			return nil
		})
		e.push(e.evalNode(args[idx], scope, cur))
		return nil
	}
}

// evalIf evaluates the pairs-plus-else conditional one condition at a time.
func (e *evaluator) evalIf(n *ir.Node, scope Scope, dest *value.Value) error {
	e.push(e.ifStep(n.Args, 0, scope, dest))
	return nil
}

func (e *evaluator) ifStep(args []*ir.Node, idx int, scope Scope, dest *value.Value) cont {
	return func() error {
		if idx == len(args)-1 {
			e.push(e.evalNode(args[idx], scope, dest))
			return nil
		}
		cond := new(value.Value)
		e.push(func() error {
			if cond.IsTruthy() {
				e.push(e.evalNode(args[idx+1], scope, dest))
				return nil
			}
			e.push(e.ifStep(args, idx+2, scope, dest))
			return nil
		})
		e.push(e.evalNode(args[idx], scope, cond))
		return nil
	}
}

// evalSubstr implements substr(str, start[, length]) with Python-style
// negative indices for both start and length.
func evalSubstr(vals []value.Value) (value.Value, error) {
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
	return value.String(string(runes[start:end])), nil
}

// evalMerge flattens one level of array operands, passing non-array
// operands through unchanged.
func evalMerge(vals []value.Value) value.Value {
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

// evalIn tests array membership (loose equality) or substring containment.
func evalIn(needle, haystack value.Value) bool {
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

// toDisplayString renders a Value the way cat, substr, and in treat string
// operands — distinct from ToAny, which preserves Go-native types.
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

func toArray(v value.Value) []value.Value {
	if v.Kind() == value.KindArray {
		return v.AsArray()
	}
	return nil
}

// evalIterator handles map/filter/all/some/none: evaluate the source array,
// then walk it one element at a time under an elementScope.
func (e *evaluator) evalIterator(n *ir.Node, scope Scope, dest *value.Value) error {
	src := new(value.Value)
	e.push(func() error {
		items := toArray(*src)
		e.push(e.iterStep(n.Op, n.Body, items, 0, scope, nil, dest))
		return nil
	})
	e.push(e.evalNode(n.Source, scope, src))
	return nil
}

func (e *evaluator) iterStep(op ir.Op, body *ir.Node, items []value.Value, idx int, outer Scope, acc []value.Value, dest *value.Value) cont {
	return func() error {
		if idx >= len(items) {
			switch op {
			case ir.OpMap, ir.OpFilter:
				*dest = value.Array(acc)
			case ir.OpAll:
				*dest = value.Bool(true)
			case ir.OpSome:
				*dest = value.Bool(false)
			case ir.OpNone:
				*dest = value.Bool(true)
			}
			return nil
		}
		elemScope := &elementScope{element: items[idx], parent: outer}
		result := new(value.Value)
		e.push(func() error {
			switch op {
			case ir.OpMap:
				e.push(e.iterStep(op, body, items, idx+1, outer, append(acc, *result), dest))
			case ir.OpFilter:
				next := acc
				if result.IsTruthy() {
					next = append(acc, items[idx])
				}
				e.push(e.iterStep(op, body, items, idx+1, outer, next, dest))
			case ir.OpAll:
				if !result.IsTruthy() {
					*dest = value.Bool(false)
					return nil
				}
				e.push(e.iterStep(op, body, items, idx+1, outer, nil, dest))
			case ir.OpSome:
				if result.IsTruthy() {
					*dest = value.Bool(true)
					return nil
				}
				e.push(e.iterStep(op, body, items, idx+1, outer, nil, dest))
			case ir.OpNone:
				if result.IsTruthy() {
					*dest = value.Bool(false)
					return nil
				}
				e.push(e.iterStep(op, body, items, idx+1, outer, nil, dest))
			}
			return nil
		})
		e.push(e.evalNode(body, elemScope, result))
		return nil
	}
}

// evalReduce evaluates the source array and initial accumulator, then folds
// the body over each element under a reduceScope exposing "accumulator" and
// "current".
func (e *evaluator) evalReduce(n *ir.Node, scope Scope, dest *value.Value) error {
	src := new(value.Value)
	e.push(func() error {
		items := toArray(*src)
		initVal := new(value.Value)
		e.push(func() error {
			e.push(e.reduceStep(n.Body, items, 0, scope, *initVal, dest))
			return nil
		})
		e.push(e.evalNode(n.Init, scope, initVal))
		return nil
	})
	e.push(e.evalNode(n.Source, scope, src))
	return nil
}

func (e *evaluator) reduceStep(body *ir.Node, items []value.Value, idx int, outer Scope, acc value.Value, dest *value.Value) cont {
	return func() error {
		if idx >= len(items) {
			*dest = acc
			return nil
		}
		rs := &reduceScope{accumulator: acc, current: items[idx], parent: outer}
		next := new(value.Value)
		e.push(func() error {
			e.push(e.reduceStep(body, items, idx+1, outer, *next, dest))
			return nil
		})
		e.push(e.evalNode(body, rs, next))
		return nil
	}
}

// keyMissing reports whether a key counts as missing: absent from the
// scope, or present with an explicit null value.
func keyMissing(scope Scope, key string) bool {
	v, ok := scope.Lookup(key)
	return !ok || v.IsNull()
}

// evalMissing resolves each key expression against scope and collects the
// paths that are absent or null, in argument order.
func (e *evaluator) evalMissing(n *ir.Node, scope Scope, dest *value.Value) error {
	return e.evalSequence(n.Keys, scope, dest, func(vals []value.Value) (value.Value, error) {
		var missing []value.Value
		for _, kv := range vals {
			key := toDisplayString(kv)
			if keyMissing(scope, key) {
				missing = append(missing, value.String(key))
			}
		}
		return value.Array(missing), nil
	})
}

// evalMissingSome returns an empty array once at least Count of the given
// keys are present, otherwise the list of keys that are absent.
func (e *evaluator) evalMissingSome(n *ir.Node, scope Scope, dest *value.Value) error {
	countVal := new(value.Value)
	e.push(func() error {
		threshold := int(countVal.ToNumber())
		return e.evalSequence(n.Keys, scope, dest, func(vals []value.Value) (value.Value, error) {
			var missing []value.Value
			present := 0
			for _, kv := range vals {
				key := toDisplayString(kv)
				if keyMissing(scope, key) {
					missing = append(missing, value.String(key))
				} else {
					present++
				}
			}
			if present >= threshold {
				return value.Array(nil), nil
			}
			return value.Array(missing), nil
		})
	})
	e.push(e.evalNode(n.Count, scope, countVal))
	return nil
}
