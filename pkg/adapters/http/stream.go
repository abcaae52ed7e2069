package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/domain"
)

// StreamManager fans task events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // task id -> set of channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for the events of a task. The returned func unsubscribes.
func (sm *StreamManager) Subscribe(taskID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[taskID]; !ok {
		sm.subscribers[taskID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[taskID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[taskID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, taskID)
			}
		}
	}
}

// Subscribers returns the number of subscribers of a task.
func (sm *StreamManager) Subscribers(taskID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[taskID])
}

// Broadcast sends msg to every subscriber of a task. Slow subscribers lose messages.
func (sm *StreamManager) Broadcast(taskID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[taskID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "task_id", taskID)
		}
	}
}

// Hooks broadcasts task status events to the task's subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskStatus: func(ctx context.Context, ev *domain.Event) {
			data, err := json.Marshal(ev)
			if err != nil {
				return
			}
			sm.Broadcast(ev.TaskID, string(data))
		},
	}
}
