package ir

import "github.com/smilemakc/farmcore/internal/farmerr"

// Builder functions enforce arity at construction time. They are the
// single place the parser calls into to produce Node values, so a
// malformed tree never reaches an evaluator.

func Literal(v LiteralValue) *Node { return &Node{Op: OpLiteral, Literal: v} }

// ArrayLiteral builds a literal array (JSON `[...]` appearing where an
// expression is expected), distinct from the merge(...) operator: literal
// arrays never flatten nested arrays the way merge does.
func ArrayLiteral(items []*Node) *Node { return &Node{Op: OpArray, Args: items} }

func Var(path string, def *Node) *Node {
	return &Node{Op: OpVar, VarPath: path, VarDefault: def}
}

// Comparison builds a chained comparison node (eq/ne family take exactly 2;
// lt/le/gt/ge accept a variadic chain of >= 2 operands).
func Comparison(op Op, args []*Node) (*Node, error) {
	switch op {
	case OpEq, OpStrictEq, OpNe, OpStrictNe:
		if len(args) != 2 {
			return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, op.String(), "requires exactly 2 operands")
		}
	case OpLt, OpLe, OpGt, OpGe:
		if len(args) < 2 {
			return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, op.String(), "requires at least 2 operands")
		}
	default:
		return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, op.String(), "not a comparison operator")
	}
	return &Node{Op: op, Args: args}, nil
}

// Logical builds and/or (n-ary, >=1) or not/double-not (exactly 1).
func Logical(op Op, args []*Node) (*Node, error) {
	switch op {
	case OpAnd, OpOr:
		if len(args) < 1 {
			return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, op.String(), "requires at least 1 operand")
		}
	case OpNot, OpDoubleNot:
		if len(args) != 1 {
			return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, op.String(), "requires exactly 1 operand")
		}
	default:
		return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, op.String(), "not a logical operator")
	}
	return &Node{Op: op, Args: args}, nil
}

// If builds the pairs-plus-else conditional: an odd-length list of length
// >= 3, or a strict 3-ary "?:" (same shape, just arity-locked by the
// caller).
func If(args []*Node) (*Node, error) {
	if len(args) < 3 || len(args)%2 == 0 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "if", "requires an odd-length list of at least 3 elements")
	}
	return &Node{Op: OpIf, Args: args}, nil
}

// Ternary builds the strict 3-ary "?:" form.
func Ternary(cond, then, els *Node) (*Node, error) {
	if cond == nil || then == nil || els == nil {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "?:", "requires exactly 3 operands")
	}
	return &Node{Op: OpIf, Args: []*Node{cond, then, els}}, nil
}

// Arithmetic builds add/mul/min/max (variadic, >=1) or sub (variadic, >=1)
// or div/mod (exactly 2).
func Arithmetic(op Op, args []*Node) (*Node, error) {
	switch op {
	case OpAdd, OpMul, OpMin, OpMax, OpSub:
		if len(args) < 1 {
			return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, op.String(), "requires at least 1 operand")
		}
	case OpDiv, OpMod:
		if len(args) != 2 {
			return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, op.String(), "requires exactly 2 operands")
		}
	default:
		return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, op.String(), "not an arithmetic operator")
	}
	return &Node{Op: op, Args: args}, nil
}

// Cat builds the string concatenation node (variadic, >=1, identity on 1).
func Cat(args []*Node) (*Node, error) {
	if len(args) < 1 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "cat", "requires at least 1 operand")
	}
	return &Node{Op: OpCat, Args: args}, nil
}

// Substr builds substr(str, start[, length]).
func Substr(str, start, length *Node) (*Node, error) {
	if str == nil || start == nil {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "substr", "requires at least 2 operands")
	}
	args := []*Node{str, start}
	if length != nil {
		args = append(args, length)
	}
	return &Node{Op: OpSubstr, Args: args}, nil
}

// Iterator builds map/filter/all/some/none (source + body) or reduce
// (source + body + init).
func Iterator(op Op, source, body, init *Node) (*Node, error) {
	if source == nil || body == nil {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, op.String(), "requires a source and a body")
	}
	if op == OpReduce && init == nil {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "reduce", "requires an initial accumulator value")
	}
	return &Node{Op: op, Source: source, Body: body, Init: init}, nil
}

// Merge builds the variadic array-merge node.
func Merge(args []*Node) (*Node, error) {
	if len(args) < 1 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "merge", "requires at least 1 operand")
	}
	return &Node{Op: OpMerge, Args: args}, nil
}

// In builds the 2-ary membership test.
func In(needle, haystack *Node) (*Node, error) {
	if needle == nil || haystack == nil {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "in", "requires exactly 2 operands")
	}
	return &Node{Op: OpIn, Args: []*Node{needle, haystack}}, nil
}

// Missing builds missing([k...]).
func Missing(keys []*Node) (*Node, error) {
	return &Node{Op: OpMissing, Keys: keys}, nil
}

// MissingSome builds missing_some(n, [k...]).
func MissingSome(count *Node, keys []*Node) (*Node, error) {
	if count == nil {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "missing_some", "requires a threshold count")
	}
	return &Node{Op: OpMissingSome, Count: count, Keys: keys}, nil
}

// Log builds the debug log(expr) node.
func Log(arg *Node) (*Node, error) {
	if arg == nil {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "log", "requires exactly 1 operand")
	}
	return &Node{Op: OpLog, Args: []*Node{arg}}, nil
}
