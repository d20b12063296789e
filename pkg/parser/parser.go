// Package parser turns a permissive JSON-shaped tree ({op: [args...]}
// objects, primitive literals, and array literals) into the strongly-typed
// ir.Node AST. It is the sole entry point by which untrusted rule
// expressions become something the evaluators can run.
package parser

import (
	"github.com/smilemakc/farmcore/internal/farmerr"
	"github.com/smilemakc/farmcore/pkg/ir"
)

// operators is the closed set of operator keys the parser recognizes. Any
// other key fails with UnknownOperation — the IR is never extensible by a
// caller-supplied operator.
var operators = map[string]bool{
	"var": true,
	"==": true, "===": true, "!=": true, "!==": true,
	"<": true, "<=": true, ">": true, ">=": true,
	"and": true, "or": true, "!": true, "!!": true,
	"if": true, "?:": true,
	"+": true, "-": true, "*": true, "/": true, "%": true, "min": true, "max": true,
	"cat": true, "substr": true,
	"map": true, "filter": true, "reduce": true, "all": true, "some": true, "none": true,
	"merge": true, "in": true,
	"missing": true, "missing_some": true,
	"log": true,
}

// Parse converts a generic JSON-shaped tree (as produced by
// encoding/json.Unmarshal into interface{}) into an ir.Node.
func Parse(tree interface{}) (*ir.Node, error) {
	switch t := tree.(type) {
	case nil:
		return ir.Literal(ir.LiteralValue{IsNull: true}), nil
	case bool:
		return ir.Literal(ir.LiteralValue{IsBool: true, Bool: t}), nil
	case float64:
		return ir.Literal(ir.LiteralValue{Number: t}), nil
	case int:
		return ir.Literal(ir.LiteralValue{Number: float64(t), IsInt: true, Int: int64(t)}), nil
	case int64:
		return ir.Literal(ir.LiteralValue{Number: float64(t), IsInt: true, Int: t}), nil
	case string:
		return ir.Literal(ir.LiteralValue{Str: t, IsStr: true}), nil
	case []interface{}:
		return parseArrayLiteral(t)
	case map[string]interface{}:
		return parseOperator(t)
	default:
		return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, "", "unsupported literal type in rule tree")
	}
}

// parseArrayLiteral parses a JSON array literal into an ir.OpArray node.
func parseArrayLiteral(items []interface{}) (*ir.Node, error) {
	nodes, err := parseNodes(items)
	if err != nil {
		return nil, err
	}
	return ir.ArrayLiteral(nodes), nil
}

func parseOperator(m map[string]interface{}) (*ir.Node, error) {
	if len(m) != 1 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, "", "operator object must have exactly one key")
	}
	var opName string
	var rawArgs interface{}
	for k, v := range m {
		opName, rawArgs = k, v
	}
	if !operators[opName] {
		return nil, farmerr.NewParseError(farmerr.KindUnknownOperation, opName, "")
	}

	switch opName {
	case "var":
		return parseVar(rawArgs)
	case "==":
		return buildComparison(ir.OpEq, opName, rawArgs)
	case "===":
		return buildComparison(ir.OpStrictEq, opName, rawArgs)
	case "!=":
		return buildComparison(ir.OpNe, opName, rawArgs)
	case "!==":
		return buildComparison(ir.OpStrictNe, opName, rawArgs)
	case "<":
		return buildComparison(ir.OpLt, opName, rawArgs)
	case "<=":
		return buildComparison(ir.OpLe, opName, rawArgs)
	case ">":
		return buildComparison(ir.OpGt, opName, rawArgs)
	case ">=":
		return buildComparison(ir.OpGe, opName, rawArgs)
	case "and":
		return buildLogical(ir.OpAnd, opName, rawArgs)
	case "or":
		return buildLogical(ir.OpOr, opName, rawArgs)
	case "!":
		return buildLogical(ir.OpNot, opName, rawArgs)
	case "!!":
		return buildLogical(ir.OpDoubleNot, opName, rawArgs)
	case "if":
		return buildIf(rawArgs)
	case "?:":
		return buildTernary(rawArgs)
	case "+":
		return buildArithmetic(ir.OpAdd, opName, rawArgs)
	case "-":
		return buildArithmetic(ir.OpSub, opName, rawArgs)
	case "*":
		return buildArithmetic(ir.OpMul, opName, rawArgs)
	case "/":
		return buildArithmetic(ir.OpDiv, opName, rawArgs)
	case "%":
		return buildArithmetic(ir.OpMod, opName, rawArgs)
	case "min":
		return buildArithmetic(ir.OpMin, opName, rawArgs)
	case "max":
		return buildArithmetic(ir.OpMax, opName, rawArgs)
	case "cat":
		return buildCat(rawArgs)
	case "substr":
		return buildSubstr(rawArgs)
	case "map", "filter", "all", "some", "none":
		return buildIterator(opName, rawArgs)
	case "reduce":
		return buildReduce(rawArgs)
	case "merge":
		return buildMerge(rawArgs)
	case "in":
		return buildIn(rawArgs)
	case "missing":
		return buildMissing(rawArgs)
	case "missing_some":
		return buildMissingSome(rawArgs)
	case "log":
		return buildLog(rawArgs)
	default:
		return nil, farmerr.NewParseError(farmerr.KindUnknownOperation, opName, "")
	}
}

// asArgList normalizes a single value or a JSON array into a uniform slice;
// variadic ops accept single-argument shorthand ({"+": 1} == identity).
func asArgList(raw interface{}) []interface{} {
	if arr, ok := raw.([]interface{}); ok {
		return arr
	}
	return []interface{}{raw}
}

func parseNodes(raw []interface{}) ([]*ir.Node, error) {
	nodes := make([]*ir.Node, len(raw))
	for i, item := range raw {
		n, err := Parse(item)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func parseVar(raw interface{}) (*ir.Node, error) {
	switch v := raw.(type) {
	case string:
		return ir.Var(v, nil), nil
	case []interface{}:
		if len(v) == 0 {
			return ir.Var("", nil), nil
		}
		path, ok := v[0].(string)
		if !ok {
			return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, "var", "path must be a string")
		}
		if len(v) == 1 {
			return ir.Var(path, nil), nil
		}
		def, err := Parse(v[1])
		if err != nil {
			return nil, err
		}
		return ir.Var(path, def), nil
	case nil:
		return ir.Var("", nil), nil
	default:
		return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, "var", "unsupported var argument shape")
	}
}

func buildComparison(op ir.Op, name string, raw interface{}) (*ir.Node, error) {
	nodes, err := parseNodes(asArgList(raw))
	if err != nil {
		return nil, err
	}
	n, err := ir.Comparison(op, nodes)
	if err != nil {
		return nil, annotateOp(err, name)
	}
	return n, nil
}

func buildLogical(op ir.Op, name string, raw interface{}) (*ir.Node, error) {
	nodes, err := parseNodes(asArgList(raw))
	if err != nil {
		return nil, err
	}
	n, err := ir.Logical(op, nodes)
	if err != nil {
		return nil, annotateOp(err, name)
	}
	return n, nil
}

func buildArithmetic(op ir.Op, name string, raw interface{}) (*ir.Node, error) {
	nodes, err := parseNodes(asArgList(raw))
	if err != nil {
		return nil, err
	}
	n, err := ir.Arithmetic(op, nodes)
	if err != nil {
		return nil, annotateOp(err, name)
	}
	return n, nil
}

func buildIf(raw interface{}) (*ir.Node, error) {
	nodes, err := parseNodes(asArgList(raw))
	if err != nil {
		return nil, err
	}
	return ir.If(nodes)
}

func buildTernary(raw interface{}) (*ir.Node, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 3 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "?:", "requires exactly 3 operands")
	}
	nodes, err := parseNodes(arr)
	if err != nil {
		return nil, err
	}
	return ir.Ternary(nodes[0], nodes[1], nodes[2])
}

func buildCat(raw interface{}) (*ir.Node, error) {
	nodes, err := parseNodes(asArgList(raw))
	if err != nil {
		return nil, err
	}
	return ir.Cat(nodes)
}

func buildSubstr(raw interface{}) (*ir.Node, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) < 2 || len(arr) > 3 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "substr", "requires 2 or 3 operands")
	}
	nodes, err := parseNodes(arr)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 2 {
		return ir.Substr(nodes[0], nodes[1], nil)
	}
	return ir.Substr(nodes[0], nodes[1], nodes[2])
}

func buildIterator(name string, raw interface{}) (*ir.Node, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, name, "requires exactly 2 operands: source and body")
	}
	nodes, err := parseNodes(arr)
	if err != nil {
		return nil, err
	}
	op := map[string]ir.Op{"map": ir.OpMap, "filter": ir.OpFilter, "all": ir.OpAll, "some": ir.OpSome, "none": ir.OpNone}[name]
	return ir.Iterator(op, nodes[0], nodes[1], nil)
}

func buildReduce(raw interface{}) (*ir.Node, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 3 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "reduce", "requires exactly 3 operands: source, body, initial")
	}
	nodes, err := parseNodes(arr)
	if err != nil {
		return nil, err
	}
	return ir.Iterator(ir.OpReduce, nodes[0], nodes[1], nodes[2])
}

func buildMerge(raw interface{}) (*ir.Node, error) {
	nodes, err := parseNodes(asArgList(raw))
	if err != nil {
		return nil, err
	}
	return ir.Merge(nodes)
}

func buildIn(raw interface{}) (*ir.Node, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "in", "requires exactly 2 operands")
	}
	nodes, err := parseNodes(arr)
	if err != nil {
		return nil, err
	}
	return ir.In(nodes[0], nodes[1])
}

func buildMissing(raw interface{}) (*ir.Node, error) {
	nodes, err := parseNodes(asArgList(raw))
	if err != nil {
		return nil, err
	}
	return ir.Missing(nodes)
}

func buildMissingSome(raw interface{}) (*ir.Node, error) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "missing_some", "requires exactly 2 operands: n and a key list")
	}
	countNode, err := Parse(arr[0])
	if err != nil {
		return nil, err
	}
	keyArr, ok := arr[1].([]interface{})
	if !ok {
		return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, "missing_some", "second operand must be a list of keys")
	}
	keyNodes, err := parseNodes(keyArr)
	if err != nil {
		return nil, err
	}
	return ir.MissingSome(countNode, keyNodes)
}

func buildLog(raw interface{}) (*ir.Node, error) {
	args := asArgList(raw)
	if len(args) != 1 {
		return nil, farmerr.NewParseError(farmerr.KindInvalidArgumentCount, "log", "requires exactly 1 operand")
	}
	n, err := Parse(args[0])
	if err != nil {
		return nil, err
	}
	return ir.Log(n)
}

func annotateOp(err error, name string) error {
	if pe, ok := err.(*farmerr.ParseError); ok && pe.Op == "" {
		pe.Op = name
	}
	return err
}
