// Package rule implements the tiered rule wrapper: an AST paired with a
// monotonic evaluation counter that promotes itself from the iterative
// tree evaluator to compiled bytecode once it has proven itself hot enough
// to be worth compiling.
package rule

import (
	"sync/atomic"

	"github.com/smilemakc/farmcore/internal/farmerr"
	"github.com/smilemakc/farmcore/pkg/bytecode"
	"github.com/smilemakc/farmcore/pkg/ir"
	"github.com/smilemakc/farmcore/pkg/treeeval"
	"github.com/smilemakc/farmcore/pkg/value"
	"github.com/smilemakc/farmcore/pkg/vm"
)

// Tier identifies which execution engine a Rule currently runs through.
type Tier int32

const (
	TierInterpreted Tier = iota
	TierBytecode
	TierDisabled
)

func (t Tier) String() string {
	switch t {
	case TierInterpreted:
		return "interpreted"
	case TierBytecode:
		return "bytecode"
	case TierDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Options configures promotion thresholds and the engines' resource caps.
// Zero values fall back to the package defaults.
type Options struct {
	PromotionThreshold int64
	MinComplexity      int
	StackLimit         int
	EvalOptions        treeeval.Options
}

func (o Options) withDefaults() Options {
	if o.PromotionThreshold <= 0 {
		o.PromotionThreshold = 100
	}
	if o.MinComplexity <= 0 {
		o.MinComplexity = 5
	}
	if o.StackLimit <= 0 {
		o.StackLimit = bytecode.DefaultStackLimit
	}
	return o
}

// Rule is a safe-for-concurrent-use wrapper around an expression AST. It is
// evaluated through the tree interpreter until its evaluation count crosses
// PromotionThreshold, at which point one caller compiles it to bytecode and
// all subsequent evaluations (including the one that triggered the
// compilation) run through the VM.
type Rule struct {
	ast   *ir.Node
	opts  Options
	tier  atomic.Int32
	count atomic.Int64

	compiling     atomic.Bool
	compileFailed atomic.Bool
	program       atomic.Pointer[bytecode.Program]
}

// New wraps an already-parsed AST. Complexity below opts.MinComplexity
// permanently disqualifies the rule from promotion.
func New(n *ir.Node, opts Options) *Rule {
	r := &Rule{ast: n, opts: opts.withDefaults()}
	r.tier.Store(int32(TierInterpreted))
	return r
}

// Tier reports the rule's current execution tier.
func (r *Rule) Tier() Tier { return Tier(r.tier.Load()) }

// EvalCount reports the number of evaluations observed so far.
func (r *Rule) EvalCount() int64 { return r.count.Load() }

// Evaluate runs the rule against scope, counting the call and triggering
// promotion when the threshold is crossed. scope must satisfy both
// treeeval's and vm's Scope interface (context.Scope does).
func (r *Rule) Evaluate(scope interface {
	treeeval.Scope
	vm.Scope
}, logger treeeval.Logger) (value.Value, error) {
	n := r.count.Add(1)
	if n >= r.opts.PromotionThreshold {
		r.maybePromote()
	}

	if prog := r.program.Load(); prog != nil {
		var vlog vm.Logger
		if logger != nil {
			vlog = vm.Logger(logger)
		}
		return vm.Run(prog, scope, r.opts.StackLimit, vlog)
	}
	evalOpts := r.opts.EvalOptions
	if logger != nil {
		evalOpts.Logger = logger
	}
	return treeeval.Eval(r.ast, scope, evalOpts)
}

// maybePromote attempts a single compile-and-publish. Concurrent callers
// race on the compiling flag; exactly one wins and the rest observe the
// published program (or the permanent compileFailed marker) without
// retrying the compilation themselves.
func (r *Rule) maybePromote() {
	if r.program.Load() != nil || r.compileFailed.Load() {
		return
	}
	if ir.NodeCount(r.ast) < r.opts.MinComplexity {
		return
	}
	if !r.compiling.CompareAndSwap(false, true) {
		return
	}
	defer r.compiling.Store(false)

	if r.program.Load() != nil {
		return
	}
	prog, err := bytecode.Compile(r.ast, r.opts.StackLimit)
	if err != nil {
		r.compileFailed.Store(true)
		return
	}
	r.program.Store(prog)
	r.tier.Store(int32(TierBytecode))
}

// PersistedRule is the serializable projection of a Rule: its AST, an
// optional compiled program, and the evaluation count it had accrued.
// Loaders must verify ASTHash before trusting Bytecode (see FromPersisted).
type PersistedRule struct {
	AST            *ir.Node          `json:"ast"`
	Bytecode       *bytecode.Program `json:"bytecode,omitempty"`
	EvaluationCount int64            `json:"evaluation_count"`
}

// ToPersisted snapshots the rule's AST, count, and (if compiled) bytecode
// into a serializable projection. The tier is not stored; only the presence
// of bytecode records whether the rule was promoted.
func (r *Rule) ToPersisted() PersistedRule {
	return PersistedRule{
		AST:             r.ast,
		Bytecode:        r.program.Load(),
		EvaluationCount: r.count.Load(),
	}
}

// FromPersisted reconstructs a Rule from a PersistedRule. If the stored
// bytecode's embedded AST hash no longer matches a hash freshly computed
// from p.AST, the bytecode is discarded (not refused outright) and the
// rule resets to TierInterpreted — it will simply recompile once it is hot
// again.
func FromPersisted(p PersistedRule, opts Options) (*Rule, error) {
	if p.AST == nil {
		return nil, farmerr.NewParseError(farmerr.KindInvalidStructure, "", "persisted rule has no AST")
	}
	r := New(p.AST, opts)
	r.count.Store(p.EvaluationCount)

	if p.Bytecode == nil {
		return r, nil
	}
	if p.Bytecode.ASTHash != bytecode.HashAST(p.AST) {
		return r, nil
	}
	r.program.Store(p.Bytecode)
	r.tier.Store(int32(TierBytecode))
	return r, nil
}

// Disable permanently pins the rule to TierDisabled; Evaluate still
// dispatches through the interpreter or compiled program — disabling is a
// bookkeeping signal for callers that skip disabled rules upstream, not an
// evaluation guard by itself.
func (r *Rule) Disable() { r.tier.Store(int32(TierDisabled)) }
