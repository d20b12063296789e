// Package testutil provides corpus generators shared by the evaluator
// property tests, plus a jq-based introspection query over a computed
// execution context — used for debugging and test assertions over nested
// Value trees rather than as an engine operator; the parser's closed
// operator set never admits jq.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// normalize round-trips input through encoding/json so gojq only ever sees
// the JSON-native types it accepts (Value.ToAny emits int64 and
// decimal.Decimal, which gojq rejects).
func normalize(input interface{}) (interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("normalize jq input: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize jq input: %w", err)
	}
	return out, nil
}

// Query runs a jq filter against a plain Go value (typically
// context.Context.ToAnyMap()'s output, or value.Value.ToAny()) and returns
// the first result.
func Query(filter string, input interface{}) (interface{}, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile jq filter %q: %w", filter, err)
	}
	normalized, err := normalize(input)
	if err != nil {
		return nil, err
	}
	iter := code.Run(normalized)
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("jq filter %q produced no output", filter)
	}
	if err, ok := v.(error); ok {
		return nil, fmt.Errorf("jq filter %q failed: %w", filter, err)
	}
	return v, nil
}

// QueryAll runs a jq filter and collects every emitted result.
func QueryAll(filter string, input interface{}) ([]interface{}, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile jq filter %q: %w", filter, err)
	}
	normalized, err := normalize(input)
	if err != nil {
		return nil, err
	}
	iter := code.Run(normalized)
	var results []interface{}
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return results, fmt.Errorf("jq filter %q failed: %w", filter, err)
		}
		results = append(results, v)
	}
	return results, nil
}
