package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/farmcore/internal/farmerr"
)

func lit(n float64) *Node { return Literal(LiteralValue{Number: n}) }

func TestComparison_ArityRules(t *testing.T) {
	_, err := Comparison(OpEq, []*Node{lit(1)})
	require.Error(t, err)
	assertArgCount(t, err)

	n, err := Comparison(OpEq, []*Node{lit(1), lit(2)})
	require.NoError(t, err)
	assert.Equal(t, OpEq, n.Op)

	_, err = Comparison(OpLt, []*Node{lit(1)})
	require.Error(t, err)

	n, err = Comparison(OpLt, []*Node{lit(1), lit(2), lit(3)})
	require.NoError(t, err)
	assert.Len(t, n.Args, 3)
}

func TestLogical_ArityRules(t *testing.T) {
	_, err := Logical(OpNot, []*Node{lit(1), lit(2)})
	require.Error(t, err)

	n, err := Logical(OpAnd, []*Node{lit(1)})
	require.NoError(t, err)
	assert.Equal(t, OpAnd, n.Op)
}

func TestIf_RequiresOddLengthAtLeastThree(t *testing.T) {
	_, err := If([]*Node{lit(1), lit(2)})
	require.Error(t, err)
	assertArgCount(t, err)

	n, err := If([]*Node{lit(1), lit(2), lit(3)})
	require.NoError(t, err)
	assert.Equal(t, OpIf, n.Op)

	_, err = If([]*Node{lit(1), lit(2), lit(3), lit(4)})
	require.Error(t, err)
}

func TestArithmetic_DivModRequireExactlyTwo(t *testing.T) {
	_, err := Arithmetic(OpDiv, []*Node{lit(1)})
	require.Error(t, err)

	n, err := Arithmetic(OpDiv, []*Node{lit(1), lit(2)})
	require.NoError(t, err)
	assert.Equal(t, OpDiv, n.Op)

	n, err = Arithmetic(OpAdd, []*Node{lit(1)})
	require.NoError(t, err)
	assert.Len(t, n.Args, 1)
}

func TestIterator_ReduceRequiresInit(t *testing.T) {
	_, err := Iterator(OpReduce, lit(1), lit(2), nil)
	require.Error(t, err)

	n, err := Iterator(OpReduce, lit(1), lit(2), lit(0))
	require.NoError(t, err)
	assert.NotNil(t, n.Init)

	n, err = Iterator(OpMap, lit(1), lit(2), nil)
	require.NoError(t, err)
	assert.Nil(t, n.Init)
}

func TestNodeCount_CountsWholeSubtree(t *testing.T) {
	n := &Node{
		Op:   OpAdd,
		Args: []*Node{lit(1), lit(2)},
	}
	assert.Equal(t, 3, NodeCount(n))
	assert.Equal(t, 0, NodeCount(nil))
}

func TestIsPure_VarAndLogAreImpure(t *testing.T) {
	assert.True(t, IsPure(lit(1)))
	assert.False(t, IsPure(Var("x", nil)))
	logNode, err := Log(lit(1))
	require.NoError(t, err)
	assert.False(t, IsPure(logNode))

	add := &Node{Op: OpAdd, Args: []*Node{lit(1), Var("x", nil)}}
	assert.False(t, IsPure(add))
}

func TestIsPure_IteratorsAreConservativelyImpure(t *testing.T) {
	iter, err := Iterator(OpMap, lit(1), lit(2), nil)
	require.NoError(t, err)
	assert.False(t, IsPure(iter))
}

func TestIsPure_MissingOpsProbeTheScope(t *testing.T) {
	// Literal keys are not enough: the result depends on what the runtime
	// scope holds, so neither op may be constant-folded.
	m, err := Missing([]*Node{Literal(LiteralValue{Str: "a", IsStr: true})})
	require.NoError(t, err)
	assert.False(t, IsPure(m))

	ms, err := MissingSome(lit(1), []*Node{Literal(LiteralValue{Str: "a", IsStr: true})})
	require.NoError(t, err)
	assert.False(t, IsPure(ms))
}

func assertArgCount(t *testing.T, err error) {
	t.Helper()
	pe, ok := err.(*farmerr.ParseError)
	require.True(t, ok)
	assert.Equal(t, farmerr.KindInvalidArgumentCount, pe.Kind)
}
