// Package engine implements the level executor: given the stratified
// levels produced by pkg/dag, it evaluates each rule, binds its result into
// the shared execution context, and reports per-rule statistics and errors.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/farmcore/internal/farmerr"
	"github.com/smilemakc/farmcore/internal/infrastructure/logger"
	execctx "github.com/smilemakc/farmcore/pkg/context"
	"github.com/smilemakc/farmcore/pkg/dag"
	"github.com/smilemakc/farmcore/pkg/treeeval"
	"github.com/smilemakc/farmcore/pkg/value"
)

// Options configures one execution pass.
type Options struct {
	// ContinueOnError records a failing rule's error and continues with
	// other rules in the same or later levels whose inputs remain
	// satisfied, instead of aborting the whole execution. The final error
	// return still summarizes the recorded failures; callers inspect
	// Result.Errors for the per-rule detail.
	ContinueOnError bool

	// TreatMissingInputAsNull, when true, binds an absent declared input
	// to value.Null instead of raising MissingInput.
	TreatMissingInputAsNull bool

	// LevelDeadline bounds the wall-clock time allotted to each level.
	// Rules not started before it expires are reported Cancelled. Zero
	// means no deadline.
	LevelDeadline time.Duration

	// MaxParallelism is the thread budget for ParallelExecute; zero means
	// "one goroutine per rule in the level".
	MaxParallelism int

	// Notifier, if set, observes level/rule lifecycle events.
	Notifier Notifier

	// Logger receives structured lifecycle lines (rule_id, level_index,
	// tier).
	Logger *logger.Logger
}

// RuleStat records one rule's evaluation outcome.
type RuleStat struct {
	RuleID       string
	Duration     time.Duration
	TierUsed     string
	GuardSkipped bool
}

// RuleError is one recorded failure, an executor-attached wrapper around a
// farmerr Kind.
type RuleError struct {
	RuleID     string
	LevelIndex int
	Kind       farmerr.Kind
	Message    string
}

// Result is the executor's output: the final context plus per-rule stats
// and recorded errors.
type Result struct {
	ExecutionID  string
	ContextOut   map[string]interface{}
	PerRuleStats []RuleStat
	Errors       []RuleError
}

// abortError signals that execution must stop now (ContinueOnError is
// false and a rule failed). A DAG build failure is returned as is.
type abortError struct {
	err error
}

func (a *abortError) Error() string { return a.err.Error() }
func (a *abortError) Unwrap() error { return a.err }

// SequentialExecute drives every level of rules one rule at a time, in
// DAG-stratified then order_index/id order, guaranteeing a fully
// deterministic evaluation order.
func SequentialExecute(ctx context.Context, rules []*dag.Rule, input map[string]value.Value, opts Options) (*Result, error) {
	return execute(ctx, rules, input, opts, 1)
}

// ParallelExecute drives every level with up to opts.MaxParallelism
// goroutines running concurrently within a level; levels remain a strict
// barrier.
func ParallelExecute(ctx context.Context, rules []*dag.Rule, input map[string]value.Value, opts Options) (*Result, error) {
	workers := opts.MaxParallelism
	if workers <= 0 {
		workers = 0 // 0 means "unbounded" to execute, resolved per-level below
	}
	return execute(ctx, rules, input, opts, workers)
}

func execute(ctx context.Context, rules []*dag.Rule, input map[string]value.Value, opts Options, workers int) (*Result, error) {
	graph, err := dag.Build(rules)
	if err != nil {
		return nil, err
	}

	execID := uuid.New().String()
	ectx := execctx.New(input)
	guards := newGuardCache(100)

	result := &Result{ExecutionID: execID}

	for levelIdx, level := range graph.Levels {
		if err := ctx.Err(); err != nil {
			for _, r := range level {
				result.Errors = append(result.Errors, RuleError{RuleID: r.ID, LevelIndex: levelIdx, Kind: farmerr.KindCancelled, Message: err.Error()})
			}
			continue
		}

		if opts.Logger != nil {
			opts.Logger.Debug("level started", "execution_id", execID, "level_index", levelIdx, "rules", len(level))
		}

		levelCtx := ctx
		var cancel context.CancelFunc
		if opts.LevelDeadline > 0 {
			levelCtx, cancel = context.WithTimeout(ctx, opts.LevelDeadline)
		}

		safeNotify(opts.Notifier, Event{Type: EventLevelStarted, LevelIndex: levelIdx, Timestamp: time.Now()})

		stats, errs, aborted := runLevel(levelCtx, level, levelIdx, ectx, opts, guards, workers)
		result.PerRuleStats = append(result.PerRuleStats, stats...)
		result.Errors = append(result.Errors, errs...)

		if cancel != nil {
			cancel()
		}

		safeNotify(opts.Notifier, Event{Type: EventLevelCompleted, LevelIndex: levelIdx, Timestamp: time.Now()})

		if opts.Logger != nil {
			opts.Logger.Debug("level completed", "execution_id", execID, "level_index", levelIdx, "errors", len(errs))
		}

		if aborted {
			result.ContextOut = ectx.ToAnyMap()
			return result, &abortError{err: fmt.Errorf("execution aborted at level %d", levelIdx)}
		}
	}

	result.ContextOut = ectx.ToAnyMap()
	if len(result.Errors) > 0 {
		return result, fmt.Errorf("execution completed with %d rule error(s)", len(result.Errors))
	}
	return result, nil
}

// runLevel evaluates every rule in level, returning per-rule stats, errors,
// and whether the caller must abort (a rule failed and ContinueOnError is
// false). Writes land in per-rule-local output maps merged into ectx only
// after the whole level finishes, removing write-write races across
// concurrently running rules.
func runLevel(ctx context.Context, level []*dag.Rule, levelIdx int, ectx *execctx.Context, opts Options, guards *guardCache, workers int) ([]RuleStat, []RuleError, bool) {
	type outcome struct {
		rule    *dag.Rule
		outputs map[string]value.Value
		stat    RuleStat
		err     *RuleError
	}

	n := len(level)
	outcomes := make([]outcome, n)

	runOne := func(i int, r *dag.Rule) {
		select {
		case <-ctx.Done():
			safeNotify(opts.Notifier, Event{Type: EventRuleCancelled, RuleID: r.ID, LevelIndex: levelIdx, Timestamp: time.Now()})
			outcomes[i] = outcome{rule: r, err: &RuleError{RuleID: r.ID, LevelIndex: levelIdx, Kind: farmerr.KindCancelled, Message: ctx.Err().Error()}}
			return
		default:
		}

		safeNotify(opts.Notifier, Event{Type: EventRuleStarted, RuleID: r.ID, LevelIndex: levelIdx, Timestamp: time.Now()})

		outputs, stat, err := evaluateRule(r, ectx, opts, guards)
		if err != nil {
			safeNotify(opts.Notifier, Event{Type: EventRuleFailed, RuleID: r.ID, LevelIndex: levelIdx, Timestamp: time.Now(), Err: err})
			outcomes[i] = outcome{rule: r, stat: stat, err: toRuleError(r.ID, levelIdx, err)}
			return
		}
		if stat.GuardSkipped {
			safeNotify(opts.Notifier, Event{Type: EventRuleSkipped, RuleID: r.ID, LevelIndex: levelIdx, Timestamp: time.Now(), Message: "guard false"})
		} else {
			safeNotify(opts.Notifier, Event{Type: EventRuleCompleted, RuleID: r.ID, LevelIndex: levelIdx, Tier: stat.TierUsed, DurationMs: stat.Duration.Milliseconds(), Timestamp: time.Now()})
		}
		if opts.Logger != nil {
			opts.Logger.Debug("rule completed", "rule_id", r.ID, "level_index", levelIdx, "tier", stat.TierUsed, "guard_skipped", stat.GuardSkipped)
		}
		outcomes[i] = outcome{rule: r, outputs: outputs, stat: stat}
	}

	// workers == 1 runs every rule of the level on the calling goroutine,
	// in slice order, for sequential_execute's determinism guarantee — no
	// scheduler interleaving to reason about. Any other value drives the
	// level with up to that many concurrent goroutines (0 = unbounded).
	if workers == 1 {
		for i, r := range level {
			runOne(i, r)
		}
	} else {
		limit := workers
		if limit <= 0 || limit > n {
			limit = n
		}
		sem := make(chan struct{}, limit)
		var wg sync.WaitGroup
		for i, r := range level {
			wg.Add(1)
			go func(i int, r *dag.Rule) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				runOne(i, r)
			}(i, r)
		}
		wg.Wait()
	}

	var stats []RuleStat
	var errs []RuleError
	merged := make(map[string]value.Value)
	aborted := false

	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, *o.err)
			if !opts.ContinueOnError {
				aborted = true
			}
			continue
		}
		stats = append(stats, o.stat)
		for k, v := range o.outputs {
			merged[k] = v
		}
	}

	ectx.Merge(merged)
	return stats, errs, aborted
}

func toRuleError(ruleID string, levelIdx int, err error) *RuleError {
	kind := farmerr.KindTypeMismatch
	switch e := err.(type) {
	case *farmerr.EvaluationError:
		kind = e.Kind
	case *farmerr.ParseError:
		kind = e.Kind
	}
	return &RuleError{RuleID: ruleID, LevelIndex: levelIdx, Kind: kind, Message: err.Error()}
}

// evaluateRule runs the full per-rule evaluation protocol:
// project declared inputs, evaluate the compiled expression, bind the
// result to the declared outputs (single path: direct value; multiple
// paths: result must be an Object containing every declared key), then
// apply the optional expr-lang guard against those outputs before they are
// reported to the caller for merging.
func evaluateRule(r *dag.Rule, ectx *execctx.Context, opts Options, guards *guardCache) (map[string]value.Value, RuleStat, error) {
	stat := RuleStat{RuleID: r.ID}
	start := time.Now()

	for _, p := range r.InputPaths {
		if _, ok := ectx.GetPath(p); !ok {
			if opts.TreatMissingInputAsNull {
				continue
			}
			return nil, stat, farmerr.NewEvaluationError(farmerr.KindMissingInput, r.ID, "missing input "+p)
		}
	}

	scope := execctx.NewScope(ectx)
	var logFn treeeval.Logger
	if opts.Logger != nil {
		logFn = func(v value.Value) {
			opts.Logger.Debug("rule log", "rule_id", r.ID, "value", v.ToAny())
		}
	}

	result, err := r.Compiled.Evaluate(scope, logFn)
	if err != nil {
		return nil, stat, err
	}

	stat.Duration = time.Since(start)
	stat.TierUsed = r.Compiled.Tier().String()

	outputs := make(map[string]value.Value, len(r.OutputPaths))
	if len(r.OutputPaths) == 1 {
		outputs[r.OutputPaths[0]] = result
	} else {
		if result.Kind() != value.KindObject {
			return nil, stat, farmerr.NewEvaluationError(farmerr.KindTypeMismatch, r.ID, "multi-output rule must return an object")
		}
		obj := result.AsObject()
		for _, p := range r.OutputPaths {
			v, ok := obj[p]
			if !ok {
				return nil, stat, farmerr.NewEvaluationError(farmerr.KindTypeMismatch, r.ID, "rule result missing declared output "+p)
			}
			outputs[p] = v
		}
	}

	if r.Guard != "" {
		outAny := make(map[string]interface{}, len(outputs))
		for k, v := range outputs {
			outAny[k] = v.ToAny()
		}
		ok, gerr := guards.compileAndRun(r.Guard, outAny)
		if gerr != nil {
			return nil, stat, farmerr.NewEvaluationError(farmerr.KindTypeMismatch, r.ID, gerr.Error())
		}
		if !ok {
			stat.GuardSkipped = true
			return nil, stat, nil
		}
	}

	return outputs, stat, nil
}
