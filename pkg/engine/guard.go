package engine

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// guardCache is a thread-safe LRU cache of compiled expr-lang guard
// programs, so a guard string shared by many rules (or re-evaluated across
// executions) compiles once.
type guardCache struct {
	capacity int
	mu       sync.RWMutex
	entries  map[string]*list.Element
	order    *list.List
}

type guardEntry struct {
	key     string
	program *exprvm.Program
}

func newGuardCache(capacity int) *guardCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &guardCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get also promotes the entry to the front of the LRU list, so it takes the
// full lock rather than a read lock: container/list.MoveToFront mutates
// shared state and is not safe under concurrent readers.
func (c *guardCache) get(guard string) (*exprvm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[guard]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*guardEntry).program, true
}

func (c *guardCache) put(guard string, program *exprvm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[guard]; ok {
		c.order.MoveToFront(el)
		el.Value.(*guardEntry).program = program
		return
	}
	el := c.order.PushFront(&guardEntry{key: guard, program: program})
	c.entries[guard] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*guardEntry).key)
		}
	}
}

func (c *guardCache) compileAndRun(guard string, output map[string]interface{}) (bool, error) {
	env := map[string]interface{}{"output": output}

	program, ok := c.get(guard)
	if !ok {
		var err error
		program, err = expr.Compile(guard, expr.Env(env), expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("compile guard: %w", err)
		}
		c.put(guard, program)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("run guard: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("guard must return bool, got %T", result)
	}
	return b, nil
}
