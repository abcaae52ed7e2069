package ports

import (
	"context"
	"time"
)

// Target is what a stage-item acts on.
type Target struct {
	Locator string
	Value   any
}

// TargetRequest asks a selector for the target of a stage-item.
type TargetRequest struct {
	Agent   string
	Stage   string
	Item    string
	Locator string
	Timeout time.Duration
}

// TargetSelector finds targets. Implementations may block until found or the timeout expires.
type TargetSelector interface {
	Select(ctx context.Context, req TargetRequest) (*Target, error)
}

// Navigator moves a target-based agent to a stage location.
type Navigator interface {
	Navigate(ctx context.Context, agent, location string) error
}

// Confirmer waits for an external human confirmation.
type Confirmer interface {
	Confirm(ctx context.Context, runID, prompt string) (bool, error)
}
