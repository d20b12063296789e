// Package dag implements the rule dependency graph: given a set of rules
// it derives dependency edges from their declared input/output attribute
// paths, detects cycles, and stratifies the graph into levels that may be
// executed in parallel.
package dag

import (
	"github.com/go-playground/validator/v10"

	"github.com/smilemakc/farmcore/pkg/rule"
)

var validate = validator.New()

// Rule is the domain object the DAG builder and the level executor consume:
// an expression plus its declared input/output paths, an order hint, and an
// enabled flag. A Rule exclusively owns its Compiled expression; rules are
// read-only during evaluation.
type Rule struct {
	ID          string   `validate:"required"`
	InputPaths  []string `validate:"dive,required"`
	OutputPaths []string `validate:"required,min=1,dive,required"`
	Compiled    *rule.Rule `validate:"required"`
	OrderIndex  int32
	Enabled     bool

	// Guard is an optional expr-lang boolean expression evaluated by the
	// executor against the rule's already-bound outputs (env key
	// "output") before they are merged into the context. Empty means
	// "always merge". This is an executor-level gate on top of the
	// closed JSON-Logic operator set, not part of it.
	Guard string
}

// Validate checks structural invariants on a Rule before it is handed to
// Build.
func (r *Rule) Validate() error {
	return validate.Struct(r)
}
