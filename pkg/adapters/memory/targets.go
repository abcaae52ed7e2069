package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/stagecraft/pkg/ports"
)

// DefaultPollInterval is how often Select re-checks for a missing target.
const DefaultPollInterval = 20 * time.Millisecond

// Targets implements ports.TargetSelector and ports.Navigator over a registry of
// named targets. Select polls until the locator is registered or the timeout expires.
type Targets struct {
	mu        sync.RWMutex
	targets   map[string]any
	locations map[string]string
	interval  time.Duration
}

// NewTargets creates a selector seeded with targets.
func NewTargets(targets map[string]any) *Targets {
	t := &Targets{
		targets:   make(map[string]any, len(targets)),
		locations: make(map[string]string),
		interval:  DefaultPollInterval,
	}
	for k, v := range targets {
		t.targets[k] = v
	}
	return t
}

// Add registers (or replaces) a target.
func (t *Targets) Add(locator string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[locator] = value
}

// Remove unregisters a target.
func (t *Targets) Remove(locator string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.targets, locator)
}

func (t *Targets) lookup(locator string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.targets[locator]
	return v, ok
}

// Select implements ports.TargetSelector. An empty locator selects no target.
func (t *Targets) Select(ctx context.Context, req ports.TargetRequest) (*ports.Target, error) {
	if req.Locator == "" {
		return &ports.Target{}, nil
	}
	if v, ok := t.lookup(req.Locator); ok {
		return &ports.Target{Locator: req.Locator, Value: v}, nil
	}
	if req.Timeout <= 0 {
		return nil, fmt.Errorf("target %q not found", req.Locator)
	}

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("target %q not found within %s", req.Locator, req.Timeout)
		case <-ticker.C:
			if v, ok := t.lookup(req.Locator); ok {
				return &ports.Target{Locator: req.Locator, Value: v}, nil
			}
		}
	}
}

// Navigate implements ports.Navigator by recording the agent's location.
func (t *Targets) Navigate(ctx context.Context, agent, location string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locations[agent] = location
	return nil
}

// Location returns the last location the agent navigated to.
func (t *Targets) Location(agent string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.locations[agent]
}
