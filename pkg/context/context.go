// Package context implements the execution context: a read-mostly input
// map plus a writable computed map, shared by every rule in a DAG
// execution pass.
package context

import (
	"sync"

	"github.com/smilemakc/farmcore/pkg/path"
	"github.com/smilemakc/farmcore/pkg/value"
)

// Context holds input and computed attribute values for one evaluation
// pass. Lookup precedence is computed > input. Input is never mutated;
// computed is the executor's single-writer side within a level.
type Context struct {
	mu       sync.RWMutex
	input    map[string]value.Value
	computed map[string]value.Value
	metadata map[string]value.Value

	dirty  bool
	nested value.Value
}

// New creates a Context seeded with the given flat input keys.
func New(input map[string]value.Value) *Context {
	if input == nil {
		input = make(map[string]value.Value)
	}
	return &Context{
		input:    input,
		computed: make(map[string]value.Value),
		metadata: make(map[string]value.Value),
		dirty:    true,
	}
}

// NewFromAny builds a Context from plain Go values (e.g. a freshly
// json.Unmarshal'd input bag), wrapping each with value.FromAny.
func NewFromAny(input map[string]interface{}) *Context {
	converted := make(map[string]value.Value, len(input))
	for k, v := range input {
		converted[k] = value.FromAny(v)
	}
	return New(converted)
}

// Get returns the flat-key value for key, checking computed before input.
func (c *Context) Get(key string) (value.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.computed[key]; ok {
		return v, true
	}
	v, ok := c.input[key]
	return v, ok
}

// GetPath resolves a dotted/colon path against the nested materialization
// of the context. The empty path returns the whole context.
func (c *Context) GetPath(p string) (value.Value, bool) {
	nested := c.ToValue()
	return path.GetValue(nested, p)
}

// Set writes a computed value at a flat key. O(1); the nested reshape is
// deferred to the next ToValue() call.
func (c *Context) Set(key string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computed[key] = v
	c.dirty = true
}

// SetMetadata records an out-of-band metadata value (not part of the
// attribute namespace resolved by var).
func (c *Context) SetMetadata(key string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = v
}

// GetMetadata reads back a metadata value.
func (c *Context) GetMetadata(key string) (value.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metadata[key]
	return v, ok
}

// ToValue materializes the union of input and computed keys into a nested
// Object by splitting each non-opaque key on '.'. The conversion is
// deterministic and a function only of the union of keys; the result is
// cached until the next Set.
func (c *Context) ToValue() value.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return c.nested
	}
	flat := make(map[string]interface{}, len(c.input)+len(c.computed))
	for k, v := range c.input {
		flat[k] = v
	}
	for k, v := range c.computed {
		flat[k] = v
	}
	nestedAny := path.ToNested(flat)
	c.nested = value.FromAny(nestedAny)
	c.dirty = false
	return c.nested
}

// Merge copies the given keys into this context's computed side — used by the executor to fold a per-rule-local output map back into
// the shared context at the end of a level, keeping rule workers free of
// write-write races.
func (c *Context) Merge(other map[string]value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range other {
		c.computed[k] = v
	}
	c.dirty = true
}

// AvailableInputs returns the set of flat keys currently readable (computed
// union input), used by the executor to decide MissingInput.
func (c *Context) AvailableInputs() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.input)+len(c.computed))
	for k := range c.input {
		out[k] = true
	}
	for k := range c.computed {
		out[k] = true
	}
	return out
}

// Snapshot returns a read-only copy of the flat key set, used to give each
// level a consistent view at level start.
func (c *Context) Snapshot() map[string]value.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]value.Value, len(c.input)+len(c.computed))
	for k, v := range c.input {
		out[k] = v
	}
	for k, v := range c.computed {
		out[k] = v
	}
	return out
}

// ToAnyMap flattens the context back to a plain map[string]interface{},
// suitable as the executor's context_out output.
func (c *Context) ToAnyMap() map[string]interface{} {
	snap := c.Snapshot()
	out := make(map[string]interface{}, len(snap))
	for k, v := range snap {
		out[k] = v.ToAny()
	}
	return out
}

// Scope adapts a Context (or a snapshot of one) into the treeeval.Scope
// interface used by the var operator.
type Scope struct {
	ctx *Context
}

// NewScope wraps a Context for variable resolution by the evaluators.
func NewScope(ctx *Context) *Scope { return &Scope{ctx: ctx} }

// Lookup resolves a dotted/colon path against the context's nested view.
func (s *Scope) Lookup(p string) (value.Value, bool) {
	return s.ctx.GetPath(p)
}
