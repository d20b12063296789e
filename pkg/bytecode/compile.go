package bytecode

import (
	"github.com/smilemakc/farmcore/internal/farmerr"
	"github.com/smilemakc/farmcore/pkg/ir"
	"github.com/smilemakc/farmcore/pkg/treeeval"
	"github.com/smilemakc/farmcore/pkg/value"
)

// DefaultStackLimit is bytecode_stack_limit's default.
const DefaultStackLimit = 65536

// emptyScope never resolves a path; used to evaluate pure (var-free)
// sub-trees at compile time for constant folding.
type emptyScope struct{}

func (emptyScope) Lookup(string) (value.Value, bool) { return value.Null, false }

type compiler struct {
	code      []Instruction
	consts    []value.Value
	strings   []string
	stringIdx map[string]int
	subs      []*Program
	depth     int
	maxDepth  int
	limit     int
}

// Compile lowers an AST into a Program, constant-folding every pure
// sub-tree in a single pre-order pass. stackLimit bounds the
// compile-time high-water-mark check (bytecode_stack_limit); pass
// DefaultStackLimit when the caller has no override.
func Compile(n *ir.Node, stackLimit int) (*Program, error) {
	if stackLimit <= 0 {
		stackLimit = DefaultStackLimit
	}
	c := &compiler{stringIdx: make(map[string]int), limit: stackLimit}
	if err := c.compileNode(n); err != nil {
		return nil, err
	}
	c.emit(OpReturn, 0, 0)
	if c.maxDepth > c.limit {
		return nil, farmerr.NewEvaluationError(farmerr.KindStackOverflow, "", "program exceeds bytecode_stack_limit at compile time")
	}
	return &Program{
		Code:           c.code,
		Consts:         c.consts,
		Strings:        c.strings,
		Subs:           c.subs,
		StackHighWater: c.maxDepth,
		ASTHash:        HashAST(n),
	}, nil
}

func (c *compiler) emit(op Op, a, b int) int {
	c.code = append(c.code, Instruction{Op: op, A: a, B: b})
	return len(c.code) - 1
}

func (c *compiler) push() {
	c.depth++
	if c.depth > c.maxDepth {
		c.maxDepth = c.depth
	}
}

func (c *compiler) pop()         { c.depth-- }
func (c *compiler) popN(k int)   { for i := 0; i < k; i++ { c.pop() } }

func (c *compiler) addConst(v value.Value) int {
	c.consts = append(c.consts, v)
	return len(c.consts) - 1
}

func (c *compiler) addString(s string) int {
	if idx, ok := c.stringIdx[s]; ok {
		return idx
	}
	idx := len(c.strings)
	c.strings = append(c.strings, s)
	c.stringIdx[s] = idx
	return idx
}

// compileNode lowers n, folding it to a single LoadConst when it is pure
// and foldable (ir.IsPure and evaluable against an empty scope).
func (c *compiler) compileNode(n *ir.Node) error {
	if ir.IsPure(n) {
		if v, err := treeeval.Eval(n, emptyScope{}, treeeval.Options{}); err == nil {
			c.emit(OpLoadConst, c.addConst(v), 0)
			c.push()
			return nil
		}
	}
	switch n.Op {
	case ir.OpVar:
		return c.compileVar(n)
	case ir.OpEq, ir.OpStrictEq, ir.OpNe, ir.OpStrictNe:
		return c.compileBinary(n)
	case ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		return c.compileChain(n)
	case ir.OpAnd, ir.OpOr:
		return c.compileLogical(n)
	case ir.OpNot:
		return c.compileUnary(n, OpNot)
	case ir.OpDoubleNot:
		return c.compileUnary(n, OpDoubleNot)
	case ir.OpIf:
		return c.compileIf(n)
	case ir.OpAdd:
		return c.compileArithmeticN(n, OpAddN)
	case ir.OpMul:
		return c.compileArithmeticN(n, OpMulN)
	case ir.OpMin:
		return c.compileArithmeticN(n, OpMinN)
	case ir.OpMax:
		return c.compileArithmeticN(n, OpMaxN)
	case ir.OpSub:
		return c.compileArithmeticN(n, OpSubN)
	case ir.OpDiv:
		return c.compileBinaryOp(n, OpDiv)
	case ir.OpMod:
		return c.compileBinaryOp(n, OpMod)
	case ir.OpCat:
		return c.compileArithmeticN(n, OpCatN)
	case ir.OpSubstr:
		return c.compileSubstr(n)
	case ir.OpArray:
		return c.compileArithmeticN(n, OpBuildArrayN)
	case ir.OpMerge:
		return c.compileArithmeticN(n, OpMergeN)
	case ir.OpIn:
		return c.compileBinaryOp(n, OpIn)
	case ir.OpMissing:
		return c.compileMissing(n)
	case ir.OpMissingSome:
		return c.compileMissingSome(n)
	case ir.OpLog:
		return c.compileUnary(n, OpLog)
	case ir.OpMap, ir.OpFilter, ir.OpAll, ir.OpSome, ir.OpNone:
		return c.compileIterator(n)
	case ir.OpReduce:
		return c.compileReduce(n)
	default:
		return farmerr.NewParseError(farmerr.KindInvalidStructure, n.Op.String(), "bytecode compiler has no lowering for this operator")
	}
}

func (c *compiler) compileVar(n *ir.Node) error {
	idx := c.addString(n.VarPath)
	if n.VarDefault == nil {
		c.emit(OpLoadVar, idx, 0)
		c.push()
		return nil
	}
	jump := c.emit(OpLoadVarOrDefault, idx, 0)
	if err := c.compileNode(n.VarDefault); err != nil {
		return err
	}
	c.code[jump].B = len(c.code)
	return nil
}

func (c *compiler) compileBinary(n *ir.Node) error {
	var op Op
	switch n.Op {
	case ir.OpEq:
		op = OpEq
	case ir.OpStrictEq:
		op = OpStrictEq
	case ir.OpNe:
		op = OpNe
	case ir.OpStrictNe:
		op = OpStrictNe
	}
	return c.compileBinaryOp(n, op)
}

func (c *compiler) compileBinaryOp(n *ir.Node, op Op) error {
	if err := c.compileNode(n.Args[0]); err != nil {
		return err
	}
	if err := c.compileNode(n.Args[1]); err != nil {
		return err
	}
	c.emit(op, 0, 0)
	c.popN(2)
	c.push()
	return nil
}

func (c *compiler) compileUnary(n *ir.Node, op Op) error {
	if err := c.compileNode(n.Args[0]); err != nil {
		return err
	}
	c.emit(op, 0, 0)
	c.pop()
	c.push()
	return nil
}

func cmpKindFor(op ir.Op) CmpKind {
	switch op {
	case ir.OpLt:
		return CmpLt
	case ir.OpLe:
		return CmpLe
	case ir.OpGt:
		return CmpGt
	default:
		return CmpGe
	}
}

func (c *compiler) compileChain(n *ir.Node) error {
	if err := c.compileNode(n.Args[0]); err != nil {
		return err
	}
	kind := int(cmpKindFor(n.Op))
	var failJumps []int
	for i := 1; i < len(n.Args); i++ {
		if err := c.compileNode(n.Args[i]); err != nil {
			return err
		}
		idx := c.emit(OpChainCmp, kind, 0)
		c.popN(2)
		c.push()
		failJumps = append(failJumps, idx)
	}
	c.emit(OpPop, 0, 0)
	c.pop()
	c.emit(OpLoadConst, c.addConst(value.Bool(true)), 0)
	c.push()
	end := len(c.code)
	for _, idx := range failJumps {
		c.code[idx].B = end
	}
	return nil
}

func (c *compiler) compileLogical(n *ir.Node) error {
	isAnd := n.Op == ir.OpAnd
	if err := c.compileNode(n.Args[0]); err != nil {
		return err
	}
	shortOp := OpJumpIfTrueKeep
	if isAnd {
		shortOp = OpJumpIfFalseKeep
	}
	var shortJumps []int
	for i := 1; i < len(n.Args); i++ {
		idx := c.emit(shortOp, 0, 0)
		shortJumps = append(shortJumps, idx)
		c.emit(OpPop, 0, 0)
		c.pop()
		if err := c.compileNode(n.Args[i]); err != nil {
			return err
		}
	}
	end := len(c.code)
	for _, idx := range shortJumps {
		c.code[idx].A = end
	}
	return nil
}

func (c *compiler) compileIf(n *ir.Node) error {
	args := n.Args
	var endJumps []int
	i := 0
	for i < len(args)-1 {
		if err := c.compileNode(args[i]); err != nil {
			return err
		}
		jf := c.emit(OpJumpIfFalse, 0, 0)
		c.pop()
		if err := c.compileNode(args[i+1]); err != nil {
			return err
		}
		ej := c.emit(OpJump, 0, 0)
		endJumps = append(endJumps, ej)
		c.code[jf].A = len(c.code)
		c.pop()
		i += 2
	}
	if err := c.compileNode(args[len(args)-1]); err != nil {
		return err
	}
	end := len(c.code)
	for _, idx := range endJumps {
		c.code[idx].A = end
	}
	return nil
}

func (c *compiler) compileArithmeticN(n *ir.Node, op Op) error {
	for _, a := range n.Args {
		if err := c.compileNode(a); err != nil {
			return err
		}
	}
	c.emit(op, len(n.Args), 0)
	c.popN(len(n.Args))
	c.push()
	return nil
}

func (c *compiler) compileSubstr(n *ir.Node) error {
	for _, a := range n.Args {
		if err := c.compileNode(a); err != nil {
			return err
		}
	}
	if len(n.Args) == 2 {
		c.emit(OpSubstr2, 0, 0)
	} else {
		c.emit(OpSubstr3, 0, 0)
	}
	c.popN(len(n.Args))
	c.push()
	return nil
}

func (c *compiler) compileMissing(n *ir.Node) error {
	for _, k := range n.Keys {
		if err := c.compileNode(k); err != nil {
			return err
		}
	}
	c.emit(OpMissingN, len(n.Keys), 0)
	c.popN(len(n.Keys))
	c.push()
	return nil
}

func (c *compiler) compileMissingSome(n *ir.Node) error {
	if err := c.compileNode(n.Count); err != nil {
		return err
	}
	for _, k := range n.Keys {
		if err := c.compileNode(k); err != nil {
			return err
		}
	}
	c.emit(OpMissingSomeN, len(n.Keys), 0)
	c.popN(len(n.Keys) + 1)
	c.push()
	return nil
}

func iterKindFor(op ir.Op) IterKind {
	switch op {
	case ir.OpMap:
		return IterMap
	case ir.OpFilter:
		return IterFilter
	case ir.OpAll:
		return IterAll
	case ir.OpSome:
		return IterSome
	default:
		return IterNone
	}
}

func (c *compiler) compileSub(body *ir.Node) (int, error) {
	sub := &compiler{stringIdx: make(map[string]int), limit: c.limit}
	if err := sub.compileNode(body); err != nil {
		return 0, err
	}
	sub.emit(OpReturn, 0, 0)
	if sub.maxDepth > sub.limit {
		return 0, farmerr.NewEvaluationError(farmerr.KindStackOverflow, "", "iterator body exceeds bytecode_stack_limit at compile time")
	}
	c.subs = append(c.subs, &Program{
		Code:           sub.code,
		Consts:         sub.consts,
		Strings:        sub.strings,
		Subs:           sub.subs,
		StackHighWater: sub.maxDepth,
	})
	return len(c.subs) - 1, nil
}

func (c *compiler) compileIterator(n *ir.Node) error {
	if err := c.compileNode(n.Source); err != nil {
		return err
	}
	subIdx, err := c.compileSub(n.Body)
	if err != nil {
		return err
	}
	c.emit(OpIterCall, int(iterKindFor(n.Op)), subIdx)
	c.pop()
	c.push()
	return nil
}

func (c *compiler) compileReduce(n *ir.Node) error {
	if err := c.compileNode(n.Init); err != nil {
		return err
	}
	if err := c.compileNode(n.Source); err != nil {
		return err
	}
	subIdx, err := c.compileSub(n.Body)
	if err != nil {
		return err
	}
	c.emit(OpReduceCall, subIdx, 0)
	c.popN(2)
	c.push()
	return nil
}
