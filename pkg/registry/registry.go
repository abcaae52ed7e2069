// Package registry maps operation names to action handlers.
//
// A Table is a lookup table of handlers. A Chain tries an ordered list of modules and
// reports an unsupported operation when none of them accepts the action.
package registry

import (
	"context"
	"sync"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// Handler executes one operation.
type Handler func(ctx context.Context, call ports.Call) (*domain.ActionResult, error)

// Module is a group of handlers tried as a unit.
type Module interface {
	Name() string
	// TryHandle reports false when the module does not know the operation.
	TryHandle(ctx context.Context, call ports.Call) (*domain.ActionResult, bool, error)
}

// Table is a Module backed by an operation name -> handler map.
type Table struct {
	name     string
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewTable creates an empty table.
func NewTable(name string) *Table {
	return &Table{
		name:     name,
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler. An existing handler with the same name is overwritten.
func (t *Table) Register(op string, fn Handler) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[op] = fn
	return t
}

// Name implements Module.
func (t *Table) Name() string {
	return t.name
}

// Operations lists the registered operation names.
func (t *Table) Operations() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.handlers))
	for op := range t.handlers {
		out = append(out, op)
	}
	return out
}

// TryHandle implements Module.
func (t *Table) TryHandle(ctx context.Context, call ports.Call) (*domain.ActionResult, bool, error) {
	t.mu.RLock()
	fn, ok := t.handlers[call.Action.Operation()]
	t.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	res, err := fn(ctx, call)
	return res, true, err
}

// Chain dispatches to modules in priority order.
type Chain struct {
	modules []Module
}

// NewChain creates a chain; earlier modules take precedence.
func NewChain(modules ...Module) *Chain {
	return &Chain{modules: modules}
}

// Prepend adds a module with the highest priority.
func (c *Chain) Prepend(m Module) {
	c.modules = append([]Module{m}, c.modules...)
}

// Modules returns the module names in priority order.
func (c *Chain) Modules() []string {
	names := make([]string, len(c.modules))
	for i, m := range c.modules {
		names[i] = m.Name()
	}
	return names
}

// Dispatch implements ports.Dispatcher. The no-op action always succeeds.
func (c *Chain) Dispatch(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if call.Action.IsNoop() {
		return domain.Succeeded(call.Action, nil), nil
	}
	for _, m := range c.modules {
		res, handled, err := m.TryHandle(ctx, call)
		if !handled {
			continue
		}
		if err != nil {
			return nil, err
		}
		if res == nil {
			res = domain.Succeeded(call.Action, nil)
		}
		return res, nil
	}
	return nil, &domain.UnsupportedOperationError{Name: call.Action.Operation()}
}
