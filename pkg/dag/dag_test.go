package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/farmcore/internal/farmerr"
	"github.com/smilemakc/farmcore/pkg/parser"
	"github.com/smilemakc/farmcore/pkg/rule"
)

func mustRule(t *testing.T, id string, in, out []string, order int32) *Rule {
	t.Helper()
	n, err := parser.Parse(map[string]interface{}{"var": "x"})
	require.NoError(t, err)
	return &Rule{
		ID:          id,
		InputPaths:  in,
		OutputPaths: out,
		Compiled:    rule.New(n, rule.Options{}),
		OrderIndex:  order,
		Enabled:     true,
	}
}

func TestBuild_IgnoresOrderIndexForLevels(t *testing.T) {
	// S2: R_a (order=9) produces x; R_b (order=0) consumes x. DAG must
	// place R_a in L0 and R_b in L1 despite the reversed order_index.
	ra := mustRule(t, "a", nil, []string{"x"}, 9)
	rb := mustRule(t, "b", []string{"x"}, []string{"y"}, 0)

	g, err := Build([]*Rule{ra, rb})
	require.NoError(t, err)
	require.Len(t, g.Levels, 2)
	assert.Equal(t, "a", g.Levels[0][0].ID)
	assert.Equal(t, "b", g.Levels[1][0].ID)
}

func TestBuild_IndependentRulesShareALevel(t *testing.T) {
	ra := mustRule(t, "a", nil, []string{"x"}, 5)
	rb := mustRule(t, "b", nil, []string{"y"}, 1)

	g, err := Build([]*Rule{ra, rb})
	require.NoError(t, err)
	require.Len(t, g.Levels, 1)
	require.Len(t, g.Levels[0], 2)
	// stable sort: order_index ascending, then id
	assert.Equal(t, "b", g.Levels[0][0].ID)
	assert.Equal(t, "a", g.Levels[0][1].ID)
}

func TestBuild_CycleDetected(t *testing.T) {
	// S3: R_x in=[b] out=[a], R_y in=[a] out=[b].
	rx := mustRule(t, "x", []string{"b"}, []string{"a"}, 0)
	ry := mustRule(t, "y", []string{"a"}, []string{"b"}, 0)

	_, err := Build([]*Rule{rx, ry})
	require.Error(t, err)
	var dagErr *farmerr.DAGError
	require.ErrorAs(t, err, &dagErr)
	assert.Equal(t, farmerr.KindCyclicDependency, dagErr.Kind)
	assert.ElementsMatch(t, []string{"x", "y"}, dagErr.RuleIDs)
}

func TestBuild_DuplicateOutputRejected(t *testing.T) {
	ra := mustRule(t, "a", nil, []string{"x"}, 0)
	rb := mustRule(t, "b", nil, []string{"x"}, 0)

	_, err := Build([]*Rule{ra, rb})
	require.Error(t, err)
	var dagErr *farmerr.DAGError
	require.ErrorAs(t, err, &dagErr)
	assert.Equal(t, farmerr.KindDuplicateOutput, dagErr.Kind)
}

func TestBuild_DisabledRulesIgnored(t *testing.T) {
	ra := mustRule(t, "a", nil, []string{"x"}, 0)
	ra.Enabled = false
	rb := mustRule(t, "b", []string{"x"}, []string{"y"}, 0)

	g, err := Build([]*Rule{ra, rb})
	require.NoError(t, err)
	require.Len(t, g.Levels, 1)
	assert.Equal(t, "b", g.Levels[0][0].ID)
}

func TestBuild_ThreeLevelChain(t *testing.T) {
	r1 := mustRule(t, "r1", nil, []string{"age_category"}, 0)
	r2 := mustRule(t, "r2", []string{"age_category"}, []string{"age_factor"}, 1)
	r3 := mustRule(t, "r3", []string{"age_factor"}, []string{"final_premium"}, 2)

	g, err := Build([]*Rule{r3, r1, r2})
	require.NoError(t, err)
	require.Len(t, g.Levels, 3)
	assert.Equal(t, "r1", g.Levels[0][0].ID)
	assert.Equal(t, "r2", g.Levels[1][0].ID)
	assert.Equal(t, "r3", g.Levels[2][0].ID)
}

func TestRule_ValidateRejectsMissingFields(t *testing.T) {
	r := &Rule{}
	assert.Error(t, r.Validate())
}
