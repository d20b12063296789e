// Package value implements the polymorphic Value type every expression
// operator consumes and produces: null, bool, int64, float64, an
// arbitrary-precision decimal for monetary paths, string, array, and
// object. Coercion, equality, and ordering follow the documented JSON-Logic
// semantics rather than Go's native type rules.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind tags which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the tagged union every operator consumes and produces. Only the
// field matching Kind is meaningful; the zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	d    decimal.Decimal
	s    string
	arr  []Value
	obj  map[string]Value
}

var Null = Value{kind: KindNull}

func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, d: d} }
func String(s string) Value { return Value{kind: KindString, s: s} }

func Array(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

// DecimalFromString parses a decimal literal (used when decoding a
// KindDecimal value from its JSON wire form).
func DecimalFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Null, err
	}
	return Decimal(d), nil
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() bool             { return v.b }
func (v Value) AsInt() int64             { return v.i }
func (v Value) AsFloat() float64         { return v.f }
func (v Value) AsDecimal() decimal.Decimal { return v.d }
func (v Value) AsString() string         { return v.s }
func (v Value) AsArray() []Value         { return v.arr }
func (v Value) AsObject() map[string]Value { return v.obj }

// FromAny wraps a generic Go value (as produced by encoding/json.Unmarshal
// into interface{}) into a Value. Numbers decoded by encoding/json arrive as
// float64; FromAny keeps them as Float unless the caller already has typed
// Go numerics (int, int64, etc.).
func FromAny(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case decimal.Decimal:
		return Decimal(x)
	case string:
		return String(x)
	case []interface{}:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return Array(items)
	case []Value:
		return Array(x)
	case map[string]interface{}:
		fields := make(map[string]Value, len(x))
		for k, val := range x {
			fields[k] = FromAny(val)
		}
		return Object(fields)
	case map[string]Value:
		return Object(x)
	default:
		return String(fmt.Sprintf("%v", x))
	}
}

// ToAny unwraps a Value back into plain Go data (map[string]interface{},
// []interface{}, string, bool, int64, float64, or decimal.Decimal), suitable
// for encoding/json.Marshal or for handing back to callers of the executor.
func (v Value) ToAny() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindDecimal:
		return v.d
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.ToAny()
		}
		return out
	default:
		return nil
	}
}

// ToNumber implements the to_number coercion: null -> 0, bool -> {0,1},
// numeric -> numeric, string -> parse-or-0, array/object -> 0.
func (v Value) ToNumber() float64 {
	switch v.kind {
	case KindNull:
		return 0
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	case KindDecimal:
		f, _ := v.d.Float64()
		return f
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// IsTruthy implements the is_truthy coercion: null and empty containers
// are falsy, numbers are truthy when nonzero (NaN is falsy), strings when
// non-empty.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0 && !math.IsNaN(v.f)
	case KindDecimal:
		return !v.d.IsZero()
	case KindString:
		return v.s != ""
	case KindArray:
		return len(v.arr) > 0
	case KindObject:
		return len(v.obj) > 0
	default:
		return false
	}
}

func (v Value) isNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat || v.kind == KindDecimal
}

// EqualStrict never coerces: values of different kinds are never strictly
// equal; in particular Int, Float and Decimal never mix under ===.
func EqualStrict(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindDecimal:
		return a.d.Equal(b.d)
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !EqualStrict(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !EqualStrict(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EqualLoose implements the documented cross-type numeric/string coercion
// table for ==. NaN is never equal to itself, including to another NaN.
func EqualLoose(a, b Value) bool {
	if a.kind == KindNull && b.kind == KindNull {
		return true
	}
	if a.kind == KindNull || b.kind == KindNull {
		return false
	}
	if a.isNumeric() && b.isNumeric() {
		af, bf := a.ToNumber(), b.ToNumber()
		if math.IsNaN(af) || math.IsNaN(bf) {
			return false
		}
		return af == bf
	}
	if a.kind == KindBool || b.kind == KindBool {
		return a.IsTruthy() == b.IsTruthy()
	}
	if a.kind == KindString && b.kind == KindString {
		return a.s == b.s
	}
	if a.kind == KindString && b.isNumeric() {
		bf := b.ToNumber()
		af, err := strconv.ParseFloat(a.s, 64)
		if err != nil {
			return false
		}
		return af == bf
	}
	if b.kind == KindString && a.isNumeric() {
		return EqualLoose(b, a)
	}
	return EqualStrict(a, b)
}

// Comparable reports whether a and b have a defined ordering: both strings,
// or both numeric. Otherwise ordering is undefined ("incomparable", not an
// error).
func Comparable(a, b Value) bool {
	if a.isNumeric() && b.isNumeric() {
		return true
	}
	return a.kind == b.kind && (a.kind == KindString)
}

// Less implements "<" under numeric coercion for numeric pairs and
// lexicographic order for string pairs. ok is false when the pair is
// incomparable; callers treat that as false, not an error.
func Less(a, b Value) (less bool, ok bool) {
	if !Comparable(a, b) {
		return false, false
	}
	if a.kind == KindString && b.kind == KindString {
		return a.s < b.s, true
	}
	af, bf := a.ToNumber(), b.ToNumber()
	if math.IsNaN(af) || math.IsNaN(bf) {
		return false, true
	}
	return af < bf, true
}

// LessEqual, Greater, GreaterEqual follow from Less for the chained
// comparison operators in the IR/VM.
func LessEqual(a, b Value) (bool, bool) {
	l, ok := Less(b, a)
	if !ok {
		return false, false
	}
	return !l, true
}

func Greater(a, b Value) (bool, bool) { return Less(b, a) }

func GreaterEqual(a, b Value) (bool, bool) {
	l, ok := Less(a, b)
	if !ok {
		return false, false
	}
	return !l, true
}

// Add, Sub, Mul implement variadic numeric arithmetic. Decimal operands
// propagate decimal results (monetary paths); otherwise the result is Float
// unless every operand is an Int, in which case the result stays Int.
func arithFold(vals []Value, ident int64, op func(acc, x Value) Value) Value {
	if len(vals) == 0 {
		return Int(ident)
	}
	acc := vals[0]
	for _, x := range vals[1:] {
		acc = op(acc, x)
	}
	return acc
}

func promote(a, b Value) (Value, Value, Kind) {
	if a.kind == KindDecimal || b.kind == KindDecimal {
		return Decimal(toDecimal(a)), Decimal(toDecimal(b)), KindDecimal
	}
	if a.kind == KindInt && b.kind == KindInt {
		return a, b, KindInt
	}
	return Float(a.ToNumber()), Float(b.ToNumber()), KindFloat
}

func toDecimal(v Value) decimal.Decimal {
	switch v.kind {
	case KindDecimal:
		return v.d
	case KindInt:
		return decimal.NewFromInt(v.i)
	default:
		return decimal.NewFromFloat(v.ToNumber())
	}
}

func Add(vals []Value) Value {
	return arithFold(vals, 0, func(a, b Value) Value {
		pa, pb, k := promote(a, b)
		switch k {
		case KindDecimal:
			return Decimal(pa.d.Add(pb.d))
		case KindInt:
			return Int(pa.i + pb.i)
		default:
			return Float(pa.f + pb.f)
		}
	})
}

func Mul(vals []Value) Value {
	return arithFold(vals, 1, func(a, b Value) Value {
		pa, pb, k := promote(a, b)
		switch k {
		case KindDecimal:
			return Decimal(pa.d.Mul(pb.d))
		case KindInt:
			return Int(pa.i * pb.i)
		default:
			return Float(pa.f * pb.f)
		}
	})
}

// Sub implements "-": a single operand negates; two or more left-fold.
func Sub(vals []Value) (Value, error) {
	if len(vals) == 0 {
		return Int(0), nil
	}
	if len(vals) == 1 {
		return Negate(vals[0]), nil
	}
	acc := vals[0]
	for _, x := range vals[1:] {
		pa, pb, k := promote(acc, x)
		switch k {
		case KindDecimal:
			acc = Decimal(pa.d.Sub(pb.d))
		case KindInt:
			acc = Int(pa.i - pb.i)
		default:
			acc = Float(pa.f - pb.f)
		}
	}
	return acc, nil
}

func Negate(v Value) Value {
	switch v.kind {
	case KindDecimal:
		return Decimal(v.d.Neg())
	case KindInt:
		return Int(-v.i)
	default:
		return Float(-v.ToNumber())
	}
}

// Div implements binary "/" with DivisionByZero on a zero divisor.
func Div(a, b Value) (Value, bool) {
	pa, pb, k := promote(a, b)
	switch k {
	case KindDecimal:
		if pb.d.IsZero() {
			return Null, false
		}
		return Decimal(pa.d.Div(pb.d)), true
	default:
		if pb.ToNumber() == 0 {
			return Null, false
		}
		return Float(pa.ToNumber() / pb.ToNumber()), true
	}
}

// Mod implements binary "%" with DivisionByZero on a zero divisor.
func Mod(a, b Value) (Value, bool) {
	if a.kind == KindInt && b.kind == KindInt {
		if b.i == 0 {
			return Null, false
		}
		return Int(a.i % b.i), true
	}
	bf := b.ToNumber()
	if bf == 0 {
		return Null, false
	}
	return Float(math.Mod(a.ToNumber(), bf)), true
}

// Min and Max coerce operands to float64 for comparison but return the
// original Value, never treating NaN as an extremum.
func Min(vals []Value) Value { return minMax(vals, true) }
func Max(vals []Value) Value { return minMax(vals, false) }

func minMax(vals []Value, wantMin bool) Value {
	if len(vals) == 0 {
		return Null
	}
	best := vals[0]
	bestF := best.ToNumber()
	for _, v := range vals[1:] {
		f := v.ToNumber()
		if math.IsNaN(f) {
			continue
		}
		if math.IsNaN(bestF) {
			best, bestF = v, f
			continue
		}
		if (wantMin && f < bestF) || (!wantMin && f > bestF) {
			best, bestF = v, f
		}
	}
	return best
}

// Len returns the length of an array, the rune count of a string, or the
// field count of an object; 0 otherwise.
func Len(v Value) int {
	switch v.kind {
	case KindString:
		return len([]rune(v.s))
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// SortedKeys returns an object's keys in sorted order, for callers that
// need a deterministic iteration order.
func SortedKeys(obj map[string]Value) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
