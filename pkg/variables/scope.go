package variables

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// Scope resolves a dotted path to a value.
type Scope interface {
	Lookup(path []string) (any, bool)
}

// structuralKeys may be skipped by self lookups.
var structuralKeys = []string{domain.KeyStages, domain.KeyStageItems}

// Self looks paths up in the agent's own configuration.
// Roots are tried in order, typically [stage-item, stage, agent].
type Self []map[string]any

// Lookup implements Scope.
func (s Self) Lookup(path []string) (any, bool) {
	for _, root := range s {
		if root == nil {
			continue
		}
		if v, ok := walkConfig(root, path); ok {
			return v, true
		}
	}
	return nil, false
}

func walkConfig(node any, path []string) (any, bool) {
	if len(path) == 0 {
		return node, true
	}
	m, ok := asMap(node)
	if !ok {
		return nil, false
	}
	if child, ok := m[path[0]]; ok {
		if v, ok := walkConfig(child, path[1:]); ok {
			return v, true
		}
	}
	for _, key := range structuralKeys {
		if child, ok := m[key]; ok {
			if v, ok := walkConfig(child, path); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func walkPlain(node any, path []string) (any, bool) {
	for _, seg := range path {
		m, ok := asMap(node)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func asMap(node any) (map[string]any, bool) {
	switch m := node.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}

// Context is the live, mutable store of one run.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext creates a context seeded with initial values.
func NewContext(initial map[string]any) *Context {
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)
	return &Context{values: values}
}

// Set stores a top-level value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Delete removes a top-level value.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Get returns a top-level value.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Snapshot returns a shallow copy of the store.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.values)
}

// Lookup implements Scope.
func (c *Context) Lookup(path []string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return walkPlain(c.values, path)
}

// Results looks paths up in the result hierarchy: agent, stage, element key.
// A stage-item key resolves to its most recent attempt.
type Results struct {
	Tree *domain.AgentResults
}

// Lookup implements Scope. It returns domain.ActionResults for complete paths.
func (r Results) Lookup(path []string) (any, bool) {
	if r.Tree == nil || len(path) != 3 {
		return nil, false
	}
	stages, ok := r.Tree.Get(path[0])
	if !ok {
		return nil, false
	}
	elements, ok := stages.Get(path[1])
	if !ok {
		return nil, false
	}
	key, ok := domain.LatestAttempt(elements, path[2])
	if !ok {
		key = path[2]
	}
	entry, ok := elements.Get(key)
	if !ok {
		return nil, false
	}
	return entry, true
}

// Pending layers the results of an entry still being built over a result scope.
// Lookups of the entry at At return the pending list; everything else falls through.
type Pending struct {
	Scope   Scope
	At      Here
	Results *domain.ActionResults
}

// Lookup implements Scope.
func (p Pending) Lookup(path []string) (any, bool) {
	if p.Results != nil && slices.Equal(path, p.At.path()) {
		return *p.Results, true
	}
	if p.Scope == nil {
		return nil, false
	}
	return p.Scope.Lookup(path)
}
