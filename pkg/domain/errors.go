package domain

import (
	"errors"
	"fmt"
)

// ErrContainerClosed is returned when mutating a closed result container.
var ErrContainerClosed = errors.New("container is closed")

// ErrDuplicateKey is returned when a result container key is set twice.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrUnresolvedVariable is returned when a variable reference cannot be resolved.
var ErrUnresolvedVariable = errors.New("unresolved variable")

// ErrUnsupportedOperation is returned when no handler module accepts an action.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// ErrDependencyCycle is returned when agent dependencies form a cycle.
var ErrDependencyCycle = errors.New("dependency cycle")

// ErrAgentNotFound is returned when an agent configuration cannot be found.
var ErrAgentNotFound = errors.New("agent not found")

// ErrTaskNotFound is returned when a task ID cannot be found in the store.
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskStopped is recorded for agents skipped because their task was stopped.
var ErrTaskStopped = errors.New("task stopped")

// ConfigError reports a malformed configuration: bad signature, unresolved mandatory
// variable, invalid iteration bounds. It is never retried.
type ConfigError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Source == "" {
		return "configuration error: " + msg
	}
	return fmt.Sprintf("configuration error in %q: %s", e.Source, msg)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError builds a ConfigError.
func NewConfigError(source, reason string, err error) *ConfigError {
	return &ConfigError{Source: source, Reason: reason, Err: err}
}

// ActionError wraps a failure raised while executing one action.
type ActionError struct {
	Action *Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action.String(), e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// UnsupportedOperationError is returned when no handler module accepts an operation.
type UnsupportedOperationError struct {
	Name string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q", e.Name)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// RunStoppedError aborts the remaining stages of a run.
// It carries the results accumulated so far.
type RunStoppedError struct {
	Agent   string
	Path    ConfigPath
	Reason  string
	Results *AgentResults
	Err     error
}

func (e *RunStoppedError) Error() string {
	msg := fmt.Sprintf("run of agent %q stopped at %s: %s", e.Agent, e.Path, e.Reason)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RunStoppedError) Unwrap() error {
	return e.Err
}
