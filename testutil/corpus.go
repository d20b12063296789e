package testutil

// ExprCorpus returns a fixed, deterministic set of JSON-Logic-shaped trees
// spanning every operator family except log, for the tree-evaluator/VM equivalence
// property test. Deterministic inputs (rather than a seeded random
// generator) keep property-test failures reproducible without carrying a
// PRNG dependency.
func ExprCorpus() []interface{} {
	v := func(path string) map[string]interface{} { return map[string]interface{}{"var": path} }
	return []interface{}{
		float64(42),
		"literal",
		true,
		nil,
		v("x"),
		map[string]interface{}{"var": []interface{}{"missing", "fallback"}},
		map[string]interface{}{"==": []interface{}{v("x"), v("y")}},
		map[string]interface{}{"===": []interface{}{v("x"), float64(1)}},
		map[string]interface{}{"!=": []interface{}{v("x"), v("y")}},
		map[string]interface{}{"<": []interface{}{v("a"), v("b"), v("c")}},
		map[string]interface{}{"<=": []interface{}{v("a"), v("b")}},
		map[string]interface{}{">": []interface{}{v("a"), v("b")}},
		map[string]interface{}{">=": []interface{}{v("a"), v("b"), v("c")}},
		map[string]interface{}{"and": []interface{}{v("flag1"), v("flag2")}},
		map[string]interface{}{"or": []interface{}{v("flag1"), v("flag2")}},
		map[string]interface{}{"!": []interface{}{v("flag1")}},
		map[string]interface{}{"!!": []interface{}{v("flag1")}},
		map[string]interface{}{"if": []interface{}{v("flag1"), "yes", "no"}},
		map[string]interface{}{"if": []interface{}{v("flag1"), "a", v("flag2"), "b", "c"}},
		map[string]interface{}{"+": []interface{}{v("a"), v("b"), float64(3)}},
		map[string]interface{}{"-": []interface{}{v("a"), v("b")}},
		map[string]interface{}{"-": []interface{}{v("a")}},
		map[string]interface{}{"*": []interface{}{v("a"), v("b")}},
		map[string]interface{}{"/": []interface{}{v("a"), v("b")}},
		map[string]interface{}{"%": []interface{}{v("a"), v("b")}},
		map[string]interface{}{"min": []interface{}{v("a"), v("b"), v("c")}},
		map[string]interface{}{"max": []interface{}{v("a"), v("b"), v("c")}},
		map[string]interface{}{"cat": []interface{}{"x=", v("a")}},
		map[string]interface{}{"substr": []interface{}{v("s"), float64(1)}},
		map[string]interface{}{"substr": []interface{}{v("s"), float64(1), float64(2)}},
		map[string]interface{}{"map": []interface{}{v("items"), map[string]interface{}{"*": []interface{}{v(""), float64(2)}}}},
		map[string]interface{}{"filter": []interface{}{v("items"), map[string]interface{}{">": []interface{}{v(""), float64(1)}}}},
		map[string]interface{}{"reduce": []interface{}{v("items"),
			map[string]interface{}{"+": []interface{}{v("accumulator"), v("current")}}, float64(0)}},
		map[string]interface{}{"all": []interface{}{v("items"), map[string]interface{}{">": []interface{}{v(""), float64(0)}}}},
		map[string]interface{}{"some": []interface{}{v("items"), map[string]interface{}{">": []interface{}{v(""), float64(5)}}}},
		map[string]interface{}{"none": []interface{}{v("items"), map[string]interface{}{"<": []interface{}{v(""), float64(0)}}}},
		map[string]interface{}{"map": []interface{}{v("lines"), v("price")}},
		map[string]interface{}{"some": []interface{}{v("lines"),
			map[string]interface{}{">": []interface{}{v("price"), float64(3)}}}},
		map[string]interface{}{"reduce": []interface{}{v("lines"),
			map[string]interface{}{"+": []interface{}{v("accumulator"), v("current.price")}}, float64(0)}},
		map[string]interface{}{"merge": []interface{}{v("items"), []interface{}{float64(9)}}},
		map[string]interface{}{"in": []interface{}{v("a"), v("items")}},
		map[string]interface{}{"missing": []interface{}{"a", "zz"}},
		map[string]interface{}{"missing_some": []interface{}{float64(1), []interface{}{"a", "zz"}}},
	}
}

// CorpusContext is the single shared variable context every tree in
// ExprCorpus is evaluated against.
func CorpusContext() map[string]interface{} {
	return map[string]interface{}{
		"x":      float64(5),
		"y":      float64(5),
		"a":      float64(1),
		"b":      float64(2),
		"c":      float64(3),
		"s":      "hello",
		"flag1":  true,
		"flag2":  false,
		"items":  []interface{}{float64(2), float64(4), float64(6)},
		"lines": []interface{}{
			map[string]interface{}{"price": float64(2)},
			map[string]interface{}{"price": float64(4)},
		},
	}
}
