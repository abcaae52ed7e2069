package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNoPendingConfirmation is returned when resolving a run that is not waiting.
var ErrNoPendingConfirmation = errors.New("no pending confirmation")

// Confirmations implements ports.Confirmer with per-run channels resolved by an
// external signal (HTTP, MCP, CLI).
type Confirmations struct {
	mu      sync.Mutex
	pending map[string]chan bool
	prompts map[string]string
}

// NewConfirmations creates an empty confirmation board.
func NewConfirmations() *Confirmations {
	return &Confirmations{
		pending: make(map[string]chan bool),
		prompts: make(map[string]string),
	}
}

// Confirm blocks until Resolve is called for runID or ctx ends.
func (c *Confirmations) Confirm(ctx context.Context, runID, prompt string) (bool, error) {
	ch := make(chan bool, 1)

	c.mu.Lock()
	c.pending[runID] = ch
	c.prompts[runID] = prompt
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending[runID] == ch {
			delete(c.pending, runID)
			delete(c.prompts, runID)
		}
		c.mu.Unlock()
	}()

	select {
	case ok := <-ch:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve answers the pending confirmation of runID.
func (c *Confirmations) Resolve(runID string, approved bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[runID]
	if !ok {
		return ErrNoPendingConfirmation
	}
	delete(c.pending, runID)
	delete(c.prompts, runID)
	ch <- approved
	return nil
}

// Pending lists the runs waiting for a confirmation.
func (c *Confirmations) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Prompt returns the prompt of a pending confirmation.
func (c *Confirmations) Prompt(runID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prompts[runID]
	return p, ok
}
