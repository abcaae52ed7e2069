package domain

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
}

// Outcome is anything that can report success.
type Outcome interface {
	IsSuccessful() bool
}

type closer interface {
	Close()
}

// Container is a keyed aggregate of outcomes.
//
// A key may be set once while it is present. Closing freezes the container and every child that can be closed.
// A container is successful when it holds at least one live entry and none of its live
// entries fail. Superseded entries (earlier retry attempts) stay visible but are not live.
type Container[V Outcome] struct {
	mu         sync.RWMutex
	keys       []string
	entries    map[string]V
	superseded map[string]bool
	closed     bool
}

// NewContainer returns an empty, open container.
func NewContainer[V Outcome]() *Container[V] {
	return &Container[V]{
		entries:    make(map[string]V),
		superseded: make(map[string]bool),
	}
}

// Set stores value under key.
func (c *Container[V]) Set(key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("set %q: %w", key, ErrContainerClosed)
	}
	if _, exists := c.entries[key]; exists {
		return fmt.Errorf("set %q: %w", key, ErrDuplicateKey)
	}
	c.keys = append(c.keys, key)
	c.entries[key] = value
	return nil
}

// Get returns the value stored under key.
func (c *Container[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (c *Container[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of entries, superseded ones included.
func (c *Container[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Supersede marks the entry under key as replaced by a later attempt.
func (c *Container[V]) Supersede(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("supersede %q: %w", key, ErrContainerClosed)
	}
	if _, exists := c.entries[key]; !exists {
		return fmt.Errorf("supersede %q: no such entry", key)
	}
	c.superseded[key] = true
	return nil
}

// Remove drops the entry under key. Removing a missing key is a no-op.
func (c *Container[V]) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("remove %q: %w", key, ErrContainerClosed)
	}
	if _, exists := c.entries[key]; !exists {
		return nil
	}
	delete(c.entries, key)
	delete(c.superseded, key)
	c.keys = slices.DeleteFunc(c.keys, func(k string) bool { return k == key })
	return nil
}

// Superseded reports whether key was replaced by a later attempt.
func (c *Container[V]) Superseded(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.superseded[key]
}

// Close freezes the container and its children.
func (c *Container[V]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	values := make([]V, 0, len(c.keys))
	for _, k := range c.keys {
		values = append(values, c.entries[k])
	}
	c.mu.Unlock()

	for _, v := range values {
		if cl, ok := any(v).(closer); ok {
			cl.Close()
		}
	}
}

// Closed reports whether Close has been called.
func (c *Container[V]) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// IsSuccessful reports whether the container is non-empty and has no failing live entry.
func (c *Container[V]) IsSuccessful() bool {
	return c.IsSuccessfulExcept(nil)
}

// IsSuccessfulExcept is IsSuccessful ignoring failures of the keys for which ignore returns true.
// Ignored entries still count towards non-emptiness.
func (c *Container[V]) IsSuccessfulExcept(ignore func(key string) bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	live := 0
	for _, k := range c.keys {
		if c.superseded[k] {
			continue
		}
		live++
		if ignore != nil && ignore(k) {
			continue
		}
		if !c.entries[k].IsSuccessful() {
			return false
		}
	}
	return live > 0
}

// Failing returns the live keys whose entries are not successful.
func (c *Container[V]) Failing() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, k := range c.keys {
		if !c.superseded[k] && !c.entries[k].IsSuccessful() {
			out = append(out, k)
		}
	}
	return out
}

type containerEntry[V Outcome] struct {
	Key        string `json:"key"`
	Superseded bool   `json:"superseded,omitempty"`
	Value      V      `json:"value"`
}

type containerWire[V Outcome] struct {
	Successful bool                `json:"successful"`
	Closed     bool                `json:"closed"`
	Entries    []containerEntry[V] `json:"entries"`
}

func (c *Container[V]) wire() containerWire[V] {
	successful := c.IsSuccessful()
	c.mu.RLock()
	defer c.mu.RUnlock()

	w := containerWire[V]{Successful: successful, Closed: c.closed, Entries: make([]containerEntry[V], 0, len(c.keys))}
	for _, k := range c.keys {
		w.Entries = append(w.Entries, containerEntry[V]{Key: k, Superseded: c.superseded[k], Value: c.entries[k]})
	}
	return w
}

func (c *Container[V]) load(w containerWire[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.keys = make([]string, 0, len(w.Entries))
	c.entries = make(map[string]V, len(w.Entries))
	c.superseded = make(map[string]bool)
	for _, e := range w.Entries {
		c.keys = append(c.keys, e.Key)
		c.entries[e.Key] = e.Value
		if e.Superseded {
			c.superseded[e.Key] = true
		}
	}
	c.closed = w.Closed
}

// MarshalJSON encodes the entries in insertion order.
func (c *Container[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire())
}

// UnmarshalJSON restores a container encoded by MarshalJSON.
func (c *Container[V]) UnmarshalJSON(data []byte) error {
	var w containerWire[V]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.load(w)
	return nil
}

// GobEncode implements gob.GobEncoder.
func (c *Container[V]) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.wire()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (c *Container[V]) GobDecode(data []byte) error {
	var w containerWire[V]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	c.load(w)
	return nil
}

// ActionResults is the list of results recorded for one element key.
type ActionResults []*ActionResult

// IsSuccessful reports whether the list is non-empty and every result succeeded.
func (rs ActionResults) IsSuccessful() bool {
	if len(rs) == 0 {
		return false
	}
	for _, r := range rs {
		if r == nil || !r.Success {
			return false
		}
	}
	return true
}

// Element-, stage- and agent-level containers.
type (
	// ElementResults maps element keys of one stage to their action results.
	ElementResults = Container[ActionResults]
	// StageResults maps stage identifiers of one agent to their element results.
	StageResults = Container[*ElementResults]
	// AgentResults maps agent names to their stage results.
	AgentResults = Container[*StageResults]
)

func NewElementResults() *ElementResults { return NewContainer[ActionResults]() }
func NewStageResults() *StageResults     { return NewContainer[*ElementResults]() }
func NewAgentResults() *AgentResults     { return NewContainer[*StageResults]() }

// AttemptKey is the element key of the n-th attempt of a stage-item (or stage).
func AttemptKey(id string, attempt int) string {
	if attempt <= 1 {
		return id
	}
	return id + "@" + strconv.Itoa(attempt)
}

// EventKey is the element key of the directive at position pos of an event.
// An empty base designates a stage-level event.
func EventKey(base, event string, pos int) string {
	key := event + "#" + strconv.Itoa(pos)
	if base == "" {
		return key
	}
	return base + "." + key
}

// KeyOwner returns the stage-item identifier an element key belongs to,
// or an empty string for stage-level event keys.
func KeyOwner(key string) string {
	end := strings.IndexAny(key, ".@#")
	if end < 0 {
		return key
	}
	if key[end] == '#' {
		return ""
	}
	return key[:end]
}

// LatestAttempt returns the key of the most recent attempt recorded for id.
func LatestAttempt(c *ElementResults, id string) (string, bool) {
	if _, ok := c.Get(id); !ok {
		return "", false
	}
	latest := id
	for n := 2; ; n++ {
		key := AttemptKey(id, n)
		if _, ok := c.Get(key); !ok {
			return latest, true
		}
		latest = key
	}
}

// ContinuePolicy reports whether a stage-item was configured to continue on error.
type ContinuePolicy interface {
	ContinuesOnError(stage, item string) bool
}

// IsPathSuccessful evaluates success at a configuration path.
//
// For a stage-item path it is the success of that item's entry. For a stage path, entries
// owned by stage-items whose policy is to continue on error are ignored, even when they failed.
func IsPathSuccessful(stage *ElementResults, path ConfigPath, policy ContinuePolicy) bool {
	if stage == nil {
		return false
	}
	if item, ok := path.Item(); ok {
		entry, found := stage.Get(item.Identifier())
		return found && entry.IsSuccessful()
	}
	stageName := path.Stage().Value
	return stage.IsSuccessfulExcept(func(key string) bool {
		owner := KeyOwner(key)
		return owner != "" && policy != nil && policy.ContinuesOnError(stageName, owner)
	})
}
