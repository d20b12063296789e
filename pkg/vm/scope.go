// Package vm implements the stack VM that executes bytecode.Program
// values compiled by pkg/bytecode. It is the hot-path execution tier a
// tiered rule is promoted to once it crosses bytecode_promotion_threshold.
package vm

import (
	"strings"

	"github.com/smilemakc/farmcore/pkg/path"
	"github.com/smilemakc/farmcore/pkg/value"
)

// Scope resolves a var path to a value, mirroring pkg/treeeval.Scope so the
// same context.Scope adapter serves both evaluation tiers.
type Scope interface {
	Lookup(path string) (value.Value, bool)
}

// elementScope and reduceScope mirror treeeval's iterator scoping exactly:
// the iteration variable is checked first (including dotted navigation into
// it), the outer scope second, so the two tiers stay bit-for-bit equivalent.
type elementScope struct {
	element value.Value
	parent  Scope
}

func (s *elementScope) Lookup(p string) (value.Value, bool) {
	if p == "" {
		return s.element, true
	}
	if v, ok := path.GetValue(s.element, p); ok {
		return v, true
	}
	if s.parent == nil {
		return value.Null, false
	}
	return s.parent.Lookup(p)
}

type reduceScope struct {
	accumulator value.Value
	current     value.Value
	parent      Scope
}

func (s *reduceScope) Lookup(p string) (value.Value, bool) {
	switch p {
	case "accumulator":
		return s.accumulator, true
	case "current":
		return s.current, true
	}
	if rest, ok := strings.CutPrefix(p, "accumulator."); ok {
		if v, found := path.GetValue(s.accumulator, rest); found {
			return v, true
		}
	}
	if rest, ok := strings.CutPrefix(p, "current."); ok {
		if v, found := path.GetValue(s.current, rest); found {
			return v, true
		}
	}
	if s.parent == nil {
		return value.Null, false
	}
	return s.parent.Lookup(p)
}
