package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/farmcore/pkg/dag"
	"github.com/smilemakc/farmcore/pkg/parser"
	"github.com/smilemakc/farmcore/pkg/rule"
	"github.com/smilemakc/farmcore/pkg/value"
)

func buildRule(t *testing.T, id string, ir interface{}, in, out []string, order int32) *dag.Rule {
	t.Helper()
	n, err := parser.Parse(ir)
	require.NoError(t, err)
	return &dag.Rule{
		ID:          id,
		InputPaths:  in,
		OutputPaths: out,
		Compiled:    rule.New(n, rule.Options{}),
		OrderIndex:  order,
		Enabled:     true,
	}
}

// TestSequentialExecute_ChainedInsurancePremium drives a three-rule
// premium chain end to end: category, factor, then the derived premium.
func TestSequentialExecute_ChainedInsurancePremium(t *testing.T) {
	r1 := buildRule(t, "r1",
		map[string]interface{}{"if": []interface{}{
			map[string]interface{}{">=": []interface{}{map[string]interface{}{"var": "age"}, float64(65)}},
			"senior",
			"standard",
		}},
		[]string{"age"}, []string{"age_category"}, 0)

	r2 := buildRule(t, "r2",
		map[string]interface{}{"if": []interface{}{
			map[string]interface{}{"==": []interface{}{map[string]interface{}{"var": "age_category"}, "senior"}},
			1.5,
			1.0,
		}},
		[]string{"age_category"}, []string{"age_factor"}, 0)

	r3 := buildRule(t, "r3",
		map[string]interface{}{"*": []interface{}{
			map[string]interface{}{"var": "base_premium"},
			map[string]interface{}{"var": "age_factor"},
		}},
		[]string{"base_premium", "age_factor"}, []string{"final_premium"}, 0)

	input := map[string]value.Value{
		"age":           value.Float(65),
		"base_premium":  value.Float(100),
	}

	result, err := SequentialExecute(context.Background(), []*dag.Rule{r1, r2, r3}, input, Options{})
	require.NoError(t, err)

	assert.Equal(t, "senior", result.ContextOut["age_category"])
	assert.Equal(t, 1.5, result.ContextOut["age_factor"])
	assert.Equal(t, float64(150), result.ContextOut["final_premium"])
	assert.Len(t, result.PerRuleStats, 3)
}

func TestExecute_MissingInputFatalByDefault(t *testing.T) {
	r := buildRule(t, "r1", map[string]interface{}{"var": "missing_key"}, []string{"missing_key"}, []string{"out"}, 0)

	result, err := SequentialExecute(context.Background(), []*dag.Rule{r}, nil, Options{})
	require.Error(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing_input", string(result.Errors[0].Kind))
}

func TestExecute_MissingInputAsNullPolicy(t *testing.T) {
	r := buildRule(t, "r1", map[string]interface{}{"var": "missing_key"}, []string{"missing_key"}, []string{"out"}, 0)

	result, err := SequentialExecute(context.Background(), []*dag.Rule{r}, nil, Options{TreatMissingInputAsNull: true})
	require.NoError(t, err)
	assert.Nil(t, result.ContextOut["out"])
}

func TestExecute_ContinueOnError(t *testing.T) {
	failing := buildRule(t, "fail", map[string]interface{}{"/": []interface{}{float64(1), float64(0)}}, nil, []string{"bad"}, 0)
	ok := buildRule(t, "ok", map[string]interface{}{"var": "x"}, []string{"x"}, []string{"good"}, 1)

	input := map[string]value.Value{"x": value.Float(3)}
	result, err := SequentialExecute(context.Background(), []*dag.Rule{failing, ok}, input, Options{ContinueOnError: true})
	require.Error(t, err)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, float64(3), result.ContextOut["good"])
}

func TestExecute_GuardSkipsMerge(t *testing.T) {
	r := buildRule(t, "r1", map[string]interface{}{"var": "x"}, []string{"x"}, []string{"out"}, 0)
	r.Guard = "output.out > 10"

	input := map[string]value.Value{"x": value.Float(5)}
	result, err := ParallelExecute(context.Background(), []*dag.Rule{r}, input, Options{})
	require.NoError(t, err)
	_, present := result.ContextOut["out"]
	assert.False(t, present)
	require.Len(t, result.PerRuleStats, 1)
	assert.True(t, result.PerRuleStats[0].GuardSkipped)
}

func TestExecute_GuardAllowsMerge(t *testing.T) {
	r := buildRule(t, "r1", map[string]interface{}{"var": "x"}, []string{"x"}, []string{"out"}, 0)
	r.Guard = "output.out > 1"

	input := map[string]value.Value{"x": value.Float(5)}
	result, err := ParallelExecute(context.Background(), []*dag.Rule{r}, input, Options{})
	require.NoError(t, err)
	assert.Equal(t, float64(5), result.ContextOut["out"])
}

func TestParallelExecute_NestedPathInput(t *testing.T) {
	// S6: "loan.main.input-val" reshaped so var resolves the dotted path.
	r := buildRule(t, "r1", map[string]interface{}{"var": "loan.main.input-val"}, []string{"loan.main.input-val"}, []string{"out"}, 0)

	input := map[string]value.Value{"loan.main.input-val": value.Float(42)}
	result, err := ParallelExecute(context.Background(), []*dag.Rule{r}, input, Options{})
	require.NoError(t, err)
	assert.Equal(t, float64(42), result.ContextOut["out"])
}

func TestExecute_CancelledContextSkipsRemainingLevels(t *testing.T) {
	r := buildRule(t, "r1", map[string]interface{}{"var": "x"}, []string{"x"}, []string{"out"}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := map[string]value.Value{"x": value.Float(1)}
	result, err := SequentialExecute(ctx, []*dag.Rule{r}, input, Options{})
	require.Error(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "cancelled", string(result.Errors[0].Kind))
}
