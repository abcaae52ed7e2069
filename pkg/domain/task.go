package domain

import "time"

// Status is the lifecycle state of an agent run or a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusLoading Status = "loading"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusStopped Status = "stopped"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusStopped:
		return true
	}
	return false
}

// AgentRun is the lifecycle record of one agent inside a task.
type AgentRun struct {
	Agent      string        `json:"agent"`
	Status     Status        `json:"status"`
	RunID      string        `json:"run_id,omitempty"`
	Error      string        `json:"error,omitempty"`
	Results    *AgentResults `json:"results,omitempty"`
	Archive    string        `json:"archive,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// Task is one submitted run request. Its agents run sequentially.
type Task struct {
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	Stopped   bool        `json:"stopped,omitempty"`
	Agents    []*AgentRun `json:"agents"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	// Sealed holds the encrypted record when a store seals tasks at rest.
	Sealed string `json:"sealed,omitempty"`
}

// NewTask creates a pending task with one record per agent.
func NewTask(id string, agents []string) *Task {
	now := time.Now()
	t := &Task{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, a := range agents {
		t.Agents = append(t.Agents, &AgentRun{Agent: a, Status: StatusPending})
	}
	return t
}

// Refresh recomputes the task status from its agent records.
func (t *Task) Refresh() {
	t.UpdatedAt = time.Now()

	done, failed, started := 0, false, false
	for _, a := range t.Agents {
		if a.Status != StatusPending {
			started = true
		}
		if a.Status.Terminal() {
			done++
		}
		if a.Status == StatusFailure || a.Status == StatusStopped {
			failed = true
		}
	}

	switch {
	case done == len(t.Agents) && failed:
		t.Status = StatusFailure
	case done == len(t.Agents):
		t.Status = StatusSuccess
	case t.Stopped || started:
		t.Status = StatusRunning
	default:
		t.Status = StatusPending
	}
}

// Done reports whether every agent reached a terminal state.
func (t *Task) Done() bool {
	for _, a := range t.Agents {
		if !a.Status.Terminal() {
			return false
		}
	}
	return true
}

// Agent returns the record of the named agent.
func (t *Task) Agent(name string) *AgentRun {
	for _, a := range t.Agents {
		if a.Agent == name {
			return a
		}
	}
	return nil
}

// Current returns the agent record that is loading or running, if any.
func (t *Task) Current() *AgentRun {
	for _, a := range t.Agents {
		if a.Status == StatusLoading || a.Status == StatusRunning {
			return a
		}
	}
	return nil
}

// AgentNames returns the agents of the task in run order.
func (t *Task) AgentNames() []string {
	names := make([]string, len(t.Agents))
	for i, a := range t.Agents {
		names[i] = a.Agent
	}
	return names
}
