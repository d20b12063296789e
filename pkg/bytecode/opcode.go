// Package bytecode implements the AST-to-opcode compiler: a
// single pre-order lowering pass from ir.Node to a linear instruction
// sequence plus parallel constant and string pools, executed by pkg/vm.
// Pure sub-trees (no var, no log, no iterator, no missing/missing_some) are
// constant-folded away
// entirely rather than lowered to instructions.
package bytecode

// Op names one VM instruction. Immediate operands are carried in the
// Instruction's A/B fields; their meaning is documented per opcode below.
type Op int

const (
	// OpReturn ends program execution; the single remaining stack value is
	// the program's result.
	OpReturn Op = iota

	// OpLoadConst pushes Consts[A].
	OpLoadConst
	// OpLoadVar resolves Strings[A] against the active scope (null if
	// absent) and pushes the result.
	OpLoadVar
	// OpLoadVarOrDefault resolves Strings[A]; if present, pushes the value
	// and jumps to B. If absent, falls through to the default's compiled
	// code, which is expected to leave exactly one value on the stack by
	// the time control reaches B.
	OpLoadVarOrDefault

	// OpEq/OpStrictEq/OpNe/OpStrictNe pop 2, push 1 bool.
	OpEq
	OpStrictEq
	OpNe
	OpStrictNe

	// OpChainCmp pops 2 (prev, cur). A selects the comparator (see
	// CmpKind). If the comparison fails, pushes Bool(false) and jumps to
	// B. Otherwise pushes cur back for the next link in the chain.
	OpChainCmp

	// OpJumpIfFalseKeep peeks the top value; if falsy, jumps to A leaving
	// the value on the stack (and-chain short circuit). Otherwise falls
	// through (the caller then emits an OpPop before the next operand).
	OpJumpIfFalseKeep
	// OpJumpIfTrueKeep is OpJumpIfFalseKeep's or-chain counterpart.
	OpJumpIfTrueKeep
	// OpPop discards the top of stack.
	OpPop

	// OpNot/OpDoubleNot pop 1, push 1 bool.
	OpNot
	OpDoubleNot

	// OpJump is an unconditional jump to A.
	OpJump
	// OpJumpIfFalse pops 1; if falsy, jumps to A.
	OpJumpIfFalse

	// OpAddN/OpMulN/OpMinN/OpMaxN/OpSubN pop A operands, push 1.
	OpAddN
	OpMulN
	OpMinN
	OpMaxN
	OpSubN
	// OpDiv/OpMod pop 2, push 1; DivisionByZero on a zero divisor.
	OpDiv
	OpMod

	// OpCatN pops A operands (stringified), pushes 1 string.
	OpCatN
	// OpSubstr2/OpSubstr3 pop 2 or 3, push 1 string.
	OpSubstr2
	OpSubstr3
	// OpBuildArrayN pops A operands, pushes 1 array.
	OpBuildArrayN
	// OpMergeN pops A operands, pushes 1 flattened array.
	OpMergeN
	// OpIn pops 2 (needle, haystack), pushes 1 bool.
	OpIn
	// OpMissingN pops A key operands, pushes 1 array of the keys that are
	// absent or null in the scope.
	OpMissingN
	// OpMissingSomeN pops 1 threshold + A key operands, pushes 1 array.
	OpMissingSomeN
	// OpLog pops 1, logs it, pushes it back unchanged.
	OpLog

	// OpIterCall pops 1 (source array), runs Subs[B] once per element
	// under an element scope, and pushes the combined result. A selects
	// the iterator kind (see IterKind).
	OpIterCall
	// OpReduceCall pops 2 (source array, initial accumulator — source on
	// top) and folds Subs[A] over the array, pushing the final
	// accumulator.
	OpReduceCall
)

// CmpKind selects the comparator for OpChainCmp.
type CmpKind int

const (
	CmpLt CmpKind = iota
	CmpLe
	CmpGt
	CmpGe
)

// IterKind selects the combining behavior for OpIterCall.
type IterKind int

const (
	IterMap IterKind = iota
	IterFilter
	IterAll
	IterSome
	IterNone
)

// Instruction is one VM opcode with up to two immediate operands. The
// meaning of A and B depends on Op; see the constant documentation above.
type Instruction struct {
	Op Op
	A  int
	B  int
}
