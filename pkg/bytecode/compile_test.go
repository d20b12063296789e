package bytecode_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/farmcore/pkg/bytecode"
	"github.com/smilemakc/farmcore/pkg/context"
	"github.com/smilemakc/farmcore/pkg/parser"
	"github.com/smilemakc/farmcore/pkg/value"
	"github.com/smilemakc/farmcore/pkg/vm"
)

func compileAndRun(t *testing.T, tree interface{}, input map[string]interface{}) value.Value {
	t.Helper()
	node, err := parser.Parse(tree)
	require.NoError(t, err)
	prog, err := bytecode.Compile(node, 0)
	require.NoError(t, err)
	scope := context.NewScope(context.NewFromAny(input))
	v, err := vm.Run(prog, scope, 0, nil)
	require.NoError(t, err)
	return v
}

// ==================== Constant folding ====================

func TestCompile_FoldsPureArithmetic(t *testing.T) {
	t.Parallel()
	node, err := parser.Parse(map[string]interface{}{"+": []interface{}{float64(1), float64(2), float64(3)}})
	require.NoError(t, err)
	prog, err := bytecode.Compile(node, 0)
	require.NoError(t, err)
	// A fully constant expression folds to a single LoadConst + Return.
	assert.Len(t, prog.Code, 2)
	assert.Equal(t, bytecode.OpLoadConst, prog.Code[0].Op)
}

func TestCompile_DoesNotFoldAroundVar(t *testing.T) {
	t.Parallel()
	node, err := parser.Parse(map[string]interface{}{"+": []interface{}{map[string]interface{}{"var": "x"}, float64(2)}})
	require.NoError(t, err)
	prog, err := bytecode.Compile(node, 0)
	require.NoError(t, err)
	assert.Greater(t, len(prog.Code), 2)
}

// ==================== Equivalence with the tree evaluator ====================

func TestCompileRun_MatchesTreeEval(t *testing.T) {
	t.Parallel()
	tree := map[string]interface{}{"if": []interface{}{
		map[string]interface{}{">": []interface{}{map[string]interface{}{"var": "age"}, float64(18)}},
		"adult",
		"minor",
	}}
	v := compileAndRun(t, tree, map[string]interface{}{"age": float64(21)})
	assert.Equal(t, "adult", v.AsString())

	v = compileAndRun(t, tree, map[string]interface{}{"age": float64(10)})
	assert.Equal(t, "minor", v.AsString())
}

func TestCompileRun_ChainedComparison(t *testing.T) {
	t.Parallel()
	tree := map[string]interface{}{"<": []interface{}{
		map[string]interface{}{"var": "a"}, map[string]interface{}{"var": "b"}, map[string]interface{}{"var": "c"},
	}}
	v := compileAndRun(t, tree, map[string]interface{}{"a": float64(1), "b": float64(2), "c": float64(3)})
	assert.True(t, v.AsBool())

	v = compileAndRun(t, tree, map[string]interface{}{"a": float64(1), "b": float64(5), "c": float64(3)})
	assert.False(t, v.AsBool())
}

func TestCompileRun_AndShortCircuit(t *testing.T) {
	t.Parallel()
	tree := map[string]interface{}{"and": []interface{}{
		map[string]interface{}{"var": "flag"},
		map[string]interface{}{"var": "other"},
	}}
	v := compileAndRun(t, tree, map[string]interface{}{"flag": false, "other": true})
	assert.False(t, v.AsBool())
}

func TestCompileRun_Map(t *testing.T) {
	t.Parallel()
	tree := map[string]interface{}{"map": []interface{}{
		map[string]interface{}{"var": "items"},
		map[string]interface{}{"*": []interface{}{map[string]interface{}{"var": ""}, float64(10)}},
	}}
	v := compileAndRun(t, tree, map[string]interface{}{"items": []interface{}{float64(1), float64(2)}})
	got := v.AsArray()
	require.Len(t, got, 2)
	assert.Equal(t, float64(20), got[1].AsFloat())
}

func TestCompileRun_MapResolvesElementFields(t *testing.T) {
	t.Parallel()
	tree := map[string]interface{}{"map": []interface{}{
		map[string]interface{}{"var": "lines"},
		map[string]interface{}{"var": "price"},
	}}
	v := compileAndRun(t, tree, map[string]interface{}{
		"lines": []interface{}{
			map[string]interface{}{"price": float64(3)},
			map[string]interface{}{"price": float64(5)},
		},
	})
	got := v.AsArray()
	require.Len(t, got, 2)
	assert.Equal(t, float64(5), got[1].AsFloat())
}

func TestCompileRun_ShortCircuitSkipsLog(t *testing.T) {
	t.Parallel()
	node, err := parser.Parse(map[string]interface{}{"and": []interface{}{
		false,
		map[string]interface{}{"log": "side effect"},
	}})
	require.NoError(t, err)
	prog, err := bytecode.Compile(node, 0)
	require.NoError(t, err)
	scope := context.NewScope(context.NewFromAny(nil))
	logs := 0
	v, err := vm.Run(prog, scope, 0, func(value.Value) { logs++ })
	require.NoError(t, err)
	assert.False(t, v.AsBool())
	assert.Zero(t, logs)
}

func TestCompileRun_Reduce(t *testing.T) {
	t.Parallel()
	tree := map[string]interface{}{"reduce": []interface{}{
		map[string]interface{}{"var": "items"},
		map[string]interface{}{"+": []interface{}{
			map[string]interface{}{"var": "accumulator"},
			map[string]interface{}{"var": "current"},
		}},
		float64(0),
	}}
	v := compileAndRun(t, tree, map[string]interface{}{"items": []interface{}{float64(1), float64(2), float64(3)}})
	assert.Equal(t, float64(6), v.AsFloat())
}

func TestCompileRun_VarDefault(t *testing.T) {
	t.Parallel()
	tree := map[string]interface{}{"var": []interface{}{"missing", "fallback"}}
	v := compileAndRun(t, tree, nil)
	assert.Equal(t, "fallback", v.AsString())
}

func TestCompile_DoesNotFoldMissing(t *testing.T) {
	t.Parallel()
	// missing has literal keys but probes the scope, so it must lower to
	// instructions, not fold into a constant computed against no scope.
	node, err := parser.Parse(map[string]interface{}{"missing": []interface{}{"a", "zz"}})
	require.NoError(t, err)
	prog, err := bytecode.Compile(node, 0)
	require.NoError(t, err)
	assert.Greater(t, len(prog.Code), 2)

	v, err := vm.Run(prog, context.NewScope(context.NewFromAny(map[string]interface{}{"a": float64(1)})), 0, nil)
	require.NoError(t, err)
	got := v.AsArray()
	require.Len(t, got, 1)
	assert.Equal(t, "zz", got[0].AsString())
}

func TestCompileRun_Missing_NullValueCountsAsMissing(t *testing.T) {
	t.Parallel()
	v := compileAndRun(t, map[string]interface{}{"missing": []interface{}{"a", "b"}},
		map[string]interface{}{"a": nil, "b": float64(1)})
	got := v.AsArray()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].AsString())
}

func TestCompileRun_DivisionByZero(t *testing.T) {
	t.Parallel()
	node, err := parser.Parse(map[string]interface{}{"/": []interface{}{map[string]interface{}{"var": "x"}, float64(0)}})
	require.NoError(t, err)
	prog, err := bytecode.Compile(node, 0)
	require.NoError(t, err)
	scope := context.NewScope(context.NewFromAny(map[string]interface{}{"x": float64(1)}))
	_, err = vm.Run(prog, scope, 0, nil)
	require.Error(t, err)
}

// ==================== Hashing ====================

func TestHashAST_StableAndSensitiveToChange(t *testing.T) {
	t.Parallel()
	a, err := parser.Parse(map[string]interface{}{"+": []interface{}{float64(1), float64(2)}})
	require.NoError(t, err)
	b, err := parser.Parse(map[string]interface{}{"+": []interface{}{float64(1), float64(2)}})
	require.NoError(t, err)
	c, err := parser.Parse(map[string]interface{}{"+": []interface{}{float64(1), float64(3)}})
	require.NoError(t, err)

	assert.Equal(t, bytecode.HashAST(a), bytecode.HashAST(b))
	assert.NotEqual(t, bytecode.HashAST(a), bytecode.HashAST(c))
}

// ==================== Serialization ====================

// TestProgram_SerializeRoundTrip checks that a compiled program survives a
// serialize/deserialize cycle intact, down to its iterator sub-programs and
// the stack high-water mark.
func TestProgram_SerializeRoundTrip(t *testing.T) {
	t.Parallel()
	tree := map[string]interface{}{"+": []interface{}{
		map[string]interface{}{"var": []interface{}{"base", float64(1)}},
		map[string]interface{}{"reduce": []interface{}{
			map[string]interface{}{"var": "items"},
			map[string]interface{}{"+": []interface{}{
				map[string]interface{}{"var": "accumulator"},
				map[string]interface{}{"var": "current"},
			}},
			float64(0),
		}},
	}}
	node, err := parser.Parse(tree)
	require.NoError(t, err)
	prog, err := bytecode.Compile(node, 0)
	require.NoError(t, err)

	data, err := json.Marshal(prog)
	require.NoError(t, err)
	var restored bytecode.Program
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, prog.Code, restored.Code)
	assert.Equal(t, prog.Strings, restored.Strings)
	assert.Equal(t, prog.StackHighWater, restored.StackHighWater)
	assert.Equal(t, prog.ASTHash, restored.ASTHash)
	require.Len(t, restored.Subs, len(prog.Subs))

	input := map[string]interface{}{
		"base":  float64(2),
		"items": []interface{}{float64(1), float64(2), float64(3)},
	}
	want, err := vm.Run(prog, context.NewScope(context.NewFromAny(input)), 0, nil)
	require.NoError(t, err)
	got, err := vm.Run(&restored, context.NewScope(context.NewFromAny(input)), 0, nil)
	require.NoError(t, err)
	assert.True(t, value.EqualStrict(want, got))
}

func TestCompile_StackLimitRejected(t *testing.T) {
	t.Parallel()
	node, err := parser.Parse(map[string]interface{}{"+": []interface{}{map[string]interface{}{"var": "x"}, map[string]interface{}{"var": "y"}}})
	require.NoError(t, err)
	_, err = bytecode.Compile(node, 1)
	require.Error(t, err)
}
