package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// Store implements ports.TaskStore using the local filesystem.
// Tasks are kept as one JSON file each in a configured directory.
type Store struct {
	BasePath string
}

// NewStore creates a Store with the given base path.
// If basePath is empty, it defaults to ".stagecraft/tasks".
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".stagecraft", "tasks")
	}
	return &Store{BasePath: basePath}
}

// Save persists the task to a JSON file atomically.
func (s *Store) Save(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task id cannot be empty")
	}
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return writeAtomic(s.BasePath, task.ID+".json", data)
}

// Load reads a task from its JSON file.
func (s *Store) Load(ctx context.Context, id string) (*domain.Task, error) {
	data, err := os.ReadFile(filepath.Join(s.BasePath, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Delete removes the task file.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := os.Remove(filepath.Join(s.BasePath, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete task file: %w", err)
	}
	return nil
}

// List returns the ids of all stored tasks.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read task directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
