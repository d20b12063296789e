// Package treeeval implements the iterative (stackless) evaluator: a
// tree-walking interpreter over ir.Node that never recurses on the Go call
// stack. Deeply nested or chained expressions are evaluated via an explicit
// work queue of continuations (a trampoline), bounded by eval_max_steps and
// eval_work_queue_limit, so a 100,000-level chain cannot exhaust the host
// stack or run unbounded.
package treeeval

import (
	"strings"

	"github.com/smilemakc/farmcore/internal/farmerr"
	"github.com/smilemakc/farmcore/pkg/ir"
	"github.com/smilemakc/farmcore/pkg/value"
)

// Scope resolves a var path to a value. Implementations layer iterator
// scopes (map/filter/reduce/etc. bodies) over the outer execution context.
type Scope interface {
	Lookup(path string) (value.Value, bool)
}

// Logger receives the argument of a log() expression as it is evaluated.
type Logger func(v value.Value)

// Options configures the bounds and side-channels of one evaluation.
type Options struct {
	MaxSteps       int // eval_max_steps, default 1_000_000
	WorkQueueLimit int // eval_work_queue_limit, default 1_000_000
	Logger         Logger
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = 1_000_000
	}
	if o.WorkQueueLimit <= 0 {
		o.WorkQueueLimit = 1_000_000
	}
	return o
}

// cont is one trampoline step. It performs O(1) work per invocation —
// resolving a leaf, combining already-computed children, or enqueueing the
// next piece of work — never calling another cont directly. The driver loop
// in Eval pops and invokes conts until the stack is empty or a bound trips.
type cont func() error

type evaluator struct {
	opts  Options
	stack []cont
	steps int
}

// Eval evaluates n against scope, returning the resulting Value or a
// structured EvaluationError (TypeMismatch, DivisionByZero, StepCap,
// QueueCap). MissingInput is never raised here — var without a default and
// without a context hit simply resolves to null.
func Eval(n *ir.Node, scope Scope, opts Options) (value.Value, error) {
	e := &evaluator{opts: opts.withDefaults()}
	var result value.Value
	e.push(e.evalNode(n, scope, &result))
	if err := e.run(); err != nil {
		return value.Null, err
	}
	return result, nil
}

func (e *evaluator) push(c cont) {
	e.stack = append(e.stack, c)
}

func (e *evaluator) run() error {
	for len(e.stack) > 0 {
		if len(e.stack) > e.opts.WorkQueueLimit {
			return farmerr.NewEvaluationError(farmerr.KindQueueCap, "", "work queue exceeded eval_work_queue_limit")
		}
		e.steps++
		if e.steps > e.opts.MaxSteps {
			return farmerr.NewEvaluationError(farmerr.KindStepCap, "", "evaluation exceeded eval_max_steps")
		}
		c := e.stack[len(e.stack)-1]
		e.stack = e.stack[:len(e.stack)-1]
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// evalNode returns a cont that, when run, evaluates n under scope and
// writes the result into *dest (pushing further conts for sub-expressions
// as needed — it never evaluates a child inline via a Go call).
func (e *evaluator) evalNode(n *ir.Node, scope Scope, dest *value.Value) cont {
	return func() error {
		switch n.Op {
		case ir.OpLiteral:
			*dest = literalValue(n.Literal)
			return nil
		case ir.OpVar:
			return e.evalVar(n, scope, dest)
		case ir.OpArray:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Array(vals), nil
			})
		case ir.OpEq, ir.OpStrictEq, ir.OpNe, ir.OpStrictNe:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return compareEquality(n.Op, vals[0], vals[1]), nil
			})
		case ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
			return e.evalChainedComparison(n, scope, dest)
		case ir.OpAnd, ir.OpOr:
			return e.evalAndOr(n, scope, dest)
		case ir.OpNot:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Bool(!vals[0].IsTruthy()), nil
			})
		case ir.OpDoubleNot:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Bool(vals[0].IsTruthy()), nil
			})
		case ir.OpIf:
			return e.evalIf(n, scope, dest)
		case ir.OpAdd:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Add(vals), nil
			})
		case ir.OpMul:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Mul(vals), nil
			})
		case ir.OpSub:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Sub(vals)
			})
		case ir.OpDiv:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				res, ok := value.Div(vals[0], vals[1])
				if !ok {
					return value.Null, farmerr.NewEvaluationError(farmerr.KindDivisionByZero, "/", "")
				}
				return res, nil
			})
		case ir.OpMod:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				res, ok := value.Mod(vals[0], vals[1])
				if !ok {
					return value.Null, farmerr.NewEvaluationError(farmerr.KindDivisionByZero, "%", "")
				}
				return res, nil
			})
		case ir.OpMin:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Min(vals), nil
			})
		case ir.OpMax:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Max(vals), nil
			})
		case ir.OpCat:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				var sb strings.Builder
				for _, v := range vals {
					sb.WriteString(toDisplayString(v))
				}
				return value.String(sb.String()), nil
			})
		case ir.OpSubstr:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return evalSubstr(vals)
			})
		case ir.OpMerge:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return evalMerge(vals), nil
			})
		case ir.OpIn:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				return value.Bool(evalIn(vals[0], vals[1])), nil
			})
		case ir.OpMap, ir.OpFilter, ir.OpAll, ir.OpSome, ir.OpNone:
			return e.evalIterator(n, scope, dest)
		case ir.OpReduce:
			return e.evalReduce(n, scope, dest)
		case ir.OpMissing:
			return e.evalMissing(n, scope, dest)
		case ir.OpMissingSome:
			return e.evalMissingSome(n, scope, dest)
		case ir.OpLog:
			return e.evalSequence(n.Args, scope, dest, func(vals []value.Value) (value.Value, error) {
				if e.opts.Logger != nil {
					e.opts.Logger(vals[0])
				}
				return vals[0], nil
			})
		default:
			return farmerr.NewEvaluationError(farmerr.KindTypeMismatch, n.Op.String(), "unhandled operator")
		}
	}
}

func (e *evaluator) evalVar(n *ir.Node, scope Scope, dest *value.Value) error {
	v, ok := scope.Lookup(n.VarPath)
	if ok {
		*dest = v
		return nil
	}
	if n.VarDefault != nil {
		e.push(e.evalNode(n.VarDefault, scope, dest))
		return nil
	}
	*dest = value.Null
	return nil
}

// evalSequence evaluates every arg (no short-circuit), then combines them
// with combine once all are ready. Children are pushed in reverse order so
// the trampoline (LIFO) processes them left-to-right.
func (e *evaluator) evalSequence(args []*ir.Node, scope Scope, dest *value.Value, combine func([]value.Value) (value.Value, error)) error {
	if len(args) == 0 {
		res, err := combine(nil)
		if err != nil {
			return err
		}
		*dest = res
		return nil
	}
	results := make([]value.Value, len(args))
	e.push(func() error {
		res, err := combine(results)
		if err != nil {
			return err
		}
		*dest = res
		return nil
	})
	for i := len(args) - 1; i >= 0; i-- {
		e.push(e.evalNode(args[i], scope, &results[i]))
	}
	return nil
}

func literalValue(l ir.LiteralValue) value.Value {
	switch {
	case l.IsNull:
		return value.Null
	case l.IsStr:
		return value.String(l.Str)
	case l.IsInt:
		return value.Int(l.Int)
	case l.IsBool:
		return value.Bool(l.Bool)
	default:
		return value.Float(l.Number)
	}
}
