package treeeval

import (
	"strings"

	"github.com/smilemakc/farmcore/pkg/path"
	"github.com/smilemakc/farmcore/pkg/value"
)

// elementScope layers the current iteration element over an outer scope for
// map/filter/all/some/none bodies. Lookup("") (the empty var path) resolves
// to the element itself, and a dotted path is first navigated inside the
// element (so a body over an array of objects can say {"var": "price"});
// only a path the element cannot resolve falls through to parent. Bodies
// read outward but never write outward.
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

// reduceScope layers "accumulator" and "current" over an outer scope for a
// reduce body. Dotted access into either iterator variable (for example
// "current.amount") navigates the bound value; anything else falls through
// to parent.
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
