package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// TaskStore implements ports.TaskStore in memory: the task registry as map + mutex.
// Safe for concurrent use.
type TaskStore struct {
	data map[string]*domain.Task
	mu   sync.RWMutex
}

// NewTaskStore creates a new in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		data: make(map[string]*domain.Task),
	}
}

// Save stores a copy of the task.
func (s *TaskStore) Save(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[task.ID] = clone(task)
	return nil
}

// Load returns a copy of the task.
func (s *TaskStore) Load(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.data[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return clone(task), nil
}

// Delete removes the task.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns all task IDs, oldest first.
func (s *TaskStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*domain.Task, 0, len(s.data))
	for _, t := range s.data {
		tasks = append(tasks, t)
	}
	slices.SortFunc(tasks, func(a, b *domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids, nil
}

// clone copies the task and its agent records. Result trees are shared:
// they synchronize internally and are frozen once a run ends.
func clone(t *domain.Task) *domain.Task {
	c := *t
	c.Agents = make([]*domain.AgentRun, len(t.Agents))
	for i, a := range t.Agents {
		ac := *a
		c.Agents[i] = &ac
	}
	return &c
}
