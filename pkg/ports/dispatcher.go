package ports

import (
	"context"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/variables"
)

// RunState is the view of the current run exposed to action handlers.
type RunState interface {
	RunID() string
	Agent() string
	Context() *variables.Context
	Results() *domain.AgentResults
}

// Call is one action invocation.
type Call struct {
	Action *domain.Action
	Target *Target
	Run    RunState
}

// Dispatcher executes an action by its un-negated operation name.
// The caller applies negation to the returned result.
type Dispatcher interface {
	Dispatch(ctx context.Context, call Call) (*domain.ActionResult, error)
}
