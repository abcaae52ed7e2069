package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStageEnter EventType = "stage_enter"
	EventStageLeave EventType = "stage_leave"
	EventAction     EventType = "action"
	EventDecision   EventType = "decision"
	EventTaskStatus EventType = "task_status"
)

// Names of the configurable events.
const (
	OnStart   = "onstart"
	OnError   = "onerror"
	OnSuccess = "onsuccess"
)

// Event is emitted by the engine and the task layer for observers.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Item      string    `json:"item,omitempty"`
	Action    string    `json:"action,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Event     string    `json:"event,omitempty"`
	Directive string    `json:"directive,omitempty"`
	Trial     int       `json:"trial,omitempty"`
	Success   bool      `json:"success"`
	Status    Status    `json:"status,omitempty"`
	Duration  float64   `json:"duration_seconds,omitempty"`
	Err       string    `json:"err,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStageEnter func(context.Context, *Event)
	OnStageLeave func(context.Context, *Event)
	OnAction     func(context.Context, *Event)
	OnDecision   func(context.Context, *Event)
	OnTaskStatus func(context.Context, *Event)
}

// MergeHooks chains several hook sets; callbacks run in argument order.
func MergeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	chain := func(pick func(LifecycleHooks) func(context.Context, *Event)) func(context.Context, *Event) {
		var fns []func(context.Context, *Event)
		for _, h := range hooks {
			if fn := pick(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, ev *Event) {
			for _, fn := range fns {
				fn(ctx, ev)
			}
		}
	}
	return LifecycleHooks{
		OnStageEnter: chain(func(h LifecycleHooks) func(context.Context, *Event) { return h.OnStageEnter }),
		OnStageLeave: chain(func(h LifecycleHooks) func(context.Context, *Event) { return h.OnStageLeave }),
		OnAction:     chain(func(h LifecycleHooks) func(context.Context, *Event) { return h.OnAction }),
		OnDecision:   chain(func(h LifecycleHooks) func(context.Context, *Event) { return h.OnDecision }),
		OnTaskStatus: chain(func(h LifecycleHooks) func(context.Context, *Event) { return h.OnTaskStatus }),
	}
}

// Emit invokes fn when it is set, stamping the event first.
func Emit(ctx context.Context, fn func(context.Context, *Event), ev *Event) {
	if fn == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	fn(ctx, ev)
}
