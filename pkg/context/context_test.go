package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/farmcore/pkg/value"
)

func TestGet_ComputedTakesPrecedenceOverInput(t *testing.T) {
	ctx := New(map[string]value.Value{"x": value.Int(1)})
	v, ok := ctx.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsInt())

	ctx.Set("x", value.Int(2))
	v, ok = ctx.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(2), v.AsInt())
}

func TestGet_MissingKeyNotFound(t *testing.T) {
	ctx := New(nil)
	_, ok := ctx.Get("nope")
	assert.False(t, ok)
}

// TestGetPath_NestedAndOpaqueKeys: dotted input keys reshape into a nested
// tree walked by GetPath, while colon-bearing keys stay addressable by
// their exact flat form.
func TestGetPath_NestedAndOpaqueKeys(t *testing.T) {
	ctx := New(map[string]value.Value{
		"loan.main.input-val": value.Int(42),
		"prod:cover:premium":  value.Int(99),
	})

	v, ok := ctx.GetPath("loan.main.input-val")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.AsInt())

	v, ok = ctx.GetPath("prod:cover:premium")
	require.True(t, ok)
	assert.Equal(t, int64(99), v.AsInt())

	_, ok = ctx.GetPath("loan.main.other")
	assert.False(t, ok)
}

func TestGetPath_EmptyPathReturnsWholeContext(t *testing.T) {
	ctx := New(map[string]value.Value{"a": value.Int(1)})
	v, ok := ctx.GetPath("")
	require.True(t, ok)
	assert.Equal(t, value.KindObject, v.Kind())
}

func TestToValue_CachesUntilNextSet(t *testing.T) {
	ctx := New(map[string]value.Value{"a": value.Int(1)})
	first := ctx.ToValue()
	second := ctx.ToValue()
	assert.Equal(t, first.ToAny(), second.ToAny())

	ctx.Set("b", value.Int(2))
	third := ctx.ToValue()
	m := third.AsObject()
	_, ok := m["b"]
	assert.True(t, ok)
}

func TestMerge_FoldsComputedKeysIn(t *testing.T) {
	ctx := New(nil)
	ctx.Merge(map[string]value.Value{"out1": value.Int(5), "out2": value.String("hi")})

	v, ok := ctx.Get("out1")
	require.True(t, ok)
	assert.Equal(t, int64(5), v.AsInt())

	v, ok = ctx.Get("out2")
	require.True(t, ok)
	assert.Equal(t, "hi", v.AsString())
}

func TestSnapshot_ReflectsInputAndComputed(t *testing.T) {
	ctx := New(map[string]value.Value{"a": value.Int(1)})
	ctx.Set("b", value.Int(2))
	snap := ctx.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, int64(1), snap["a"].AsInt())
	assert.Equal(t, int64(2), snap["b"].AsInt())
}

func TestToAnyMap_FlattensToPlainValues(t *testing.T) {
	ctx := New(map[string]value.Value{"a": value.Int(1)})
	ctx.Set("b", value.String("x"))
	out := ctx.ToAnyMap()
	assert.Equal(t, int64(1), out["a"])
	assert.Equal(t, "x", out["b"])
}

func TestAvailableInputs_UnionOfInputAndComputed(t *testing.T) {
	ctx := New(map[string]value.Value{"a": value.Int(1)})
	ctx.Set("b", value.Int(2))
	avail := ctx.AvailableInputs()
	assert.True(t, avail["a"])
	assert.True(t, avail["b"])
	assert.False(t, avail["c"])
}

func TestScope_LookupDelegatesToGetPath(t *testing.T) {
	ctx := New(map[string]value.Value{"a.b": value.Int(9)})
	scope := NewScope(ctx)
	v, ok := scope.Lookup("a.b")
	require.True(t, ok)
	assert.Equal(t, int64(9), v.AsInt())
}

func TestMetadata_SetAndGet(t *testing.T) {
	ctx := New(nil)
	_, ok := ctx.GetMetadata("trace_id")
	assert.False(t, ok)

	ctx.SetMetadata("trace_id", value.String("abc"))
	v, ok := ctx.GetMetadata("trace_id")
	require.True(t, ok)
	assert.Equal(t, "abc", v.AsString())
}

func TestNewFromAny_WrapsPlainValues(t *testing.T) {
	ctx := NewFromAny(map[string]interface{}{"a": float64(1), "b": "x"})
	v, ok := ctx.Get("a")
	require.True(t, ok)
	require.Equal(t, value.KindFloat, v.Kind())
	assert.Equal(t, float64(1), v.AsFloat())
}
