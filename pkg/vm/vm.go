package vm

import (
	"strings"

	"github.com/smilemakc/farmcore/internal/farmerr"
	"github.com/smilemakc/farmcore/pkg/bytecode"
	"github.com/smilemakc/farmcore/pkg/value"
)

// Logger receives the operand of a log() opcode as it executes.
type Logger func(v value.Value)

type vm struct {
	prog       *bytecode.Program
	scope      Scope
	stack      []value.Value
	stackLimit int
	logger     Logger
}

// Run executes prog against scope, enforcing stackLimit as the operand
// stack's hard cap (bytecode_stack_limit). Pass 0 to use
// bytecode.DefaultStackLimit.
func Run(prog *bytecode.Program, scope Scope, stackLimit int, logger Logger) (value.Value, error) {
	if stackLimit <= 0 {
		stackLimit = bytecode.DefaultStackLimit
	}
	m := &vm{prog: prog, scope: scope, stackLimit: stackLimit, logger: logger}
	return m.run()
}

func (m *vm) push(v value.Value) error {
	if len(m.stack) >= m.stackLimit {
		return farmerr.NewEvaluationError(farmerr.KindStackOverflow, "", "operand stack exceeded bytecode_stack_limit")
	}
	m.stack = append(m.stack, v)
	return nil
}

func (m *vm) pop() (value.Value, error) {
	n := len(m.stack)
	if n == 0 {
		return value.Null, farmerr.NewEvaluationError(farmerr.KindStackUnderflow, "", "operand stack underflow")
	}
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	return v, nil
}

func (m *vm) peek() (value.Value, error) {
	n := len(m.stack)
	if n == 0 {
		return value.Null, farmerr.NewEvaluationError(farmerr.KindStackUnderflow, "", "operand stack underflow")
	}
	return m.stack[n-1], nil
}

func (m *vm) popN(k int) ([]value.Value, error) {
	n := len(m.stack)
	if n < k {
		return nil, farmerr.NewEvaluationError(farmerr.KindStackUnderflow, "", "operand stack underflow")
	}
	vals := make([]value.Value, k)
	copy(vals, m.stack[n-k:])
	m.stack = m.stack[:n-k]
	return vals, nil
}

func (m *vm) run() (value.Value, error) {
	pc := 0
	code := m.prog.Code
	for {
		if pc < 0 || pc >= len(code) {
			return value.Null, farmerr.NewEvaluationError(farmerr.KindStackUnderflow, "", "program counter out of range")
		}
		instr := code[pc]
		switch instr.Op {
		case bytecode.OpReturn:
			if len(m.stack) != 1 {
				return value.Null, farmerr.NewEvaluationError(farmerr.KindStackUnderflow, "", "program did not leave exactly one result on the stack")
			}
			return m.stack[0], nil

		case bytecode.OpLoadConst:
			if err := m.push(m.prog.Consts[instr.A]); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpLoadVar:
			v, ok := m.scope.Lookup(m.prog.Strings[instr.A])
			if !ok {
				v = value.Null
			}
			if err := m.push(v); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpLoadVarOrDefault:
			v, ok := m.scope.Lookup(m.prog.Strings[instr.A])
			if ok {
				if err := m.push(v); err != nil {
					return value.Null, err
				}
				pc = instr.B
				continue
			}
			pc++

		case bytecode.OpEq, bytecode.OpStrictEq, bytecode.OpNe, bytecode.OpStrictNe:
			b, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			a, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			if err := m.push(compareEquality(instr.Op, a, b)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpChainCmp:
			b, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			a, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			if !chainCompare(bytecode.CmpKind(instr.A), a, b) {
				if err := m.push(value.Bool(false)); err != nil {
					return value.Null, err
				}
				pc = instr.B
				continue
			}
			if err := m.push(b); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpJumpIfFalseKeep:
			top, err := m.peek()
			if err != nil {
				return value.Null, err
			}
			if !top.IsTruthy() {
				pc = instr.A
				continue
			}
			pc++

		case bytecode.OpJumpIfTrueKeep:
			top, err := m.peek()
			if err != nil {
				return value.Null, err
			}
			if top.IsTruthy() {
				pc = instr.A
				continue
			}
			pc++

		case bytecode.OpPop:
			if _, err := m.pop(); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpNot:
			v, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			if err := m.push(value.Bool(!v.IsTruthy())); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpDoubleNot:
			v, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			if err := m.push(value.Bool(v.IsTruthy())); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpJump:
			pc = instr.A
			continue

		case bytecode.OpJumpIfFalse:
			v, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			if !v.IsTruthy() {
				pc = instr.A
				continue
			}
			pc++

		case bytecode.OpAddN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(value.Add(vals)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpMulN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(value.Mul(vals)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpMinN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(value.Min(vals)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpMaxN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(value.Max(vals)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpSubN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			res, _ := value.Sub(vals)
			if err := m.push(res); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpDiv:
			b, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			a, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			res, ok := value.Div(a, b)
			if !ok {
				return value.Null, farmerr.NewEvaluationError(farmerr.KindDivisionByZero, "/", "")
			}
			if err := m.push(res); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpMod:
			b, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			a, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			res, ok := value.Mod(a, b)
			if !ok {
				return value.Null, farmerr.NewEvaluationError(farmerr.KindDivisionByZero, "%", "")
			}
			if err := m.push(res); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpCatN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			var sb strings.Builder
			for _, v := range vals {
				sb.WriteString(toDisplayString(v))
			}
			if err := m.push(value.String(sb.String())); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpSubstr2, bytecode.OpSubstr3:
			n := 2
			if instr.Op == bytecode.OpSubstr3 {
				n = 3
			}
			vals, err := m.popN(n)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(substr(vals)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpBuildArrayN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(value.Array(vals)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpMergeN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(merge(vals)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpIn:
			b, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			a, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			if err := m.push(value.Bool(in(a, b))); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpMissingN:
			vals, err := m.popN(instr.A)
			if err != nil {
				return value.Null, err
			}
			var missing []value.Value
			for _, kv := range vals {
				key := toDisplayString(kv)
				if keyMissing(m.scope, key) {
					missing = append(missing, value.String(key))
				}
			}
			if err := m.push(value.Array(missing)); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpMissingSomeN:
			vals, err := m.popN(instr.A + 1)
			if err != nil {
				return value.Null, err
			}
			threshold := int(vals[0].ToNumber())
			var missing []value.Value
			present := 0
			for _, kv := range vals[1:] {
				key := toDisplayString(kv)
				if keyMissing(m.scope, key) {
					missing = append(missing, value.String(key))
				} else {
					present++
				}
			}
			result := value.Array(missing)
			if present >= threshold {
				result = value.Array(nil)
			}
			if err := m.push(result); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpLog:
			v, err := m.peek()
			if err != nil {
				return value.Null, err
			}
			if m.logger != nil {
				m.logger(v)
			}
			pc++

		case bytecode.OpIterCall:
			arr, err := m.pop()
			if err != nil {
				return value.Null, err
			}
			res, err := runIterator(bytecode.IterKind(instr.A), m.prog.Subs[instr.B], toArray(arr), m.scope, m.stackLimit, m.logger)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(res); err != nil {
				return value.Null, err
			}
			pc++

		case bytecode.OpReduceCall:
			vals, err := m.popN(2)
			if err != nil {
				return value.Null, err
			}
			res, err := runReduce(m.prog.Subs[instr.A], toArray(vals[1]), vals[0], m.scope, m.stackLimit, m.logger)
			if err != nil {
				return value.Null, err
			}
			if err := m.push(res); err != nil {
				return value.Null, err
			}
			pc++

		default:
			return value.Null, farmerr.NewEvaluationError(farmerr.KindTypeMismatch, "", "unknown opcode in program")
		}
	}
}

func compareEquality(op bytecode.Op, a, b value.Value) value.Value {
	switch op {
	case bytecode.OpEq:
		return value.Bool(value.EqualLoose(a, b))
	case bytecode.OpStrictEq:
		return value.Bool(value.EqualStrict(a, b))
	case bytecode.OpNe:
		return value.Bool(!value.EqualLoose(a, b))
	default:
		return value.Bool(!value.EqualStrict(a, b))
	}
}

func chainCompare(kind bytecode.CmpKind, a, b value.Value) bool {
	var result, ok bool
	switch kind {
	case bytecode.CmpLt:
		result, ok = value.Less(a, b)
	case bytecode.CmpLe:
		result, ok = value.LessEqual(a, b)
	case bytecode.CmpGt:
		result, ok = value.Greater(a, b)
	case bytecode.CmpGe:
		result, ok = value.GreaterEqual(a, b)
	}
	return ok && result
}

func runIterator(kind bytecode.IterKind, sub *bytecode.Program, items []value.Value, outer Scope, stackLimit int, logger Logger) (value.Value, error) {
	var mapped []value.Value
	for _, item := range items {
		result, err := Run(sub, &elementScope{element: item, parent: outer}, stackLimit, logger)
		if err != nil {
			return value.Null, err
		}
		switch kind {
		case bytecode.IterMap:
			mapped = append(mapped, result)
		case bytecode.IterFilter:
			if result.IsTruthy() {
				mapped = append(mapped, item)
			}
		case bytecode.IterAll:
			if !result.IsTruthy() {
				return value.Bool(false), nil
			}
		case bytecode.IterSome:
			if result.IsTruthy() {
				return value.Bool(true), nil
			}
		case bytecode.IterNone:
			if result.IsTruthy() {
				return value.Bool(false), nil
			}
		}
	}
	switch kind {
	case bytecode.IterMap, bytecode.IterFilter:
		return value.Array(mapped), nil
	case bytecode.IterAll:
		return value.Bool(true), nil
	case bytecode.IterSome:
		return value.Bool(false), nil
	default:
		return value.Bool(true), nil
	}
}

func runReduce(sub *bytecode.Program, items []value.Value, init value.Value, outer Scope, stackLimit int, logger Logger) (value.Value, error) {
	acc := init
	for _, item := range items {
		result, err := Run(sub, &reduceScope{accumulator: acc, current: item, parent: outer}, stackLimit, logger)
		if err != nil {
			return value.Null, err
		}
		acc = result
	}
	return acc, nil
}
