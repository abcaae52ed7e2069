package ports

import (
	"context"
	"time"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// TaskStore is the task registry: task id -> lifecycle record.
type TaskStore interface {
	Save(ctx context.Context, task *domain.Task) error
	// Load returns domain.ErrTaskNotFound for unknown ids.
	Load(ctx context.Context, id string) (*domain.Task, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// ArchiveRecord is the persisted outcome of one agent run.
type ArchiveRecord struct {
	RunID    string
	Agent    string
	Time     time.Time
	Success  bool
	Results  *domain.AgentResults
	Resolved []byte // resolved configuration, YAML
}

// RunArchive persists agent run outcomes and returns where they were written.
type RunArchive interface {
	Save(ctx context.Context, rec ArchiveRecord) (string, error)
}

// EventPublisher forwards lifecycle events to an external system.
type EventPublisher interface {
	Publish(ctx context.Context, ev *domain.Event) error
}
