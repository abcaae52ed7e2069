package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// Namespace prefixes every metric name.
const Namespace = "stagecraft"

// Metrics holds the collectors fed by lifecycle hooks.
type Metrics struct {
	registry *prometheus.Registry

	Actions        *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	Stages         *prometheus.CounterVec
	Decisions      *prometheus.CounterVec
	TaskStatus     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them, with the Go runtime collectors,
// on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "actions_total",
			Help:      "Executed actions by operation and outcome.",
		}, []string{"operation", "success"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		Stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stages_total",
			Help:      "Finished stages by agent and outcome.",
		}, []string{"agent", "success"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decisions_total",
			Help:      "Applied event directives by event and directive kind.",
		}, []string{"event", "directive"}),
		TaskStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "task_transitions_total",
			Help:      "Task status transitions.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.Actions, m.ActionDuration, m.Stages, m.Decisions, m.TaskStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks records lifecycle events.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAction: func(ctx context.Context, ev *domain.Event) {
			op := ev.Operation
			if op == "" {
				op = "unknown"
			}
			m.Actions.WithLabelValues(op, strconv.FormatBool(ev.Success)).Inc()
			m.ActionDuration.WithLabelValues(op).Observe(ev.Duration)
		},
		OnStageLeave: func(ctx context.Context, ev *domain.Event) {
			m.Stages.WithLabelValues(ev.Agent, strconv.FormatBool(ev.Success)).Inc()
		},
		OnDecision: func(ctx context.Context, ev *domain.Event) {
			m.Decisions.WithLabelValues(ev.Event, directiveKind(ev.Directive)).Inc()
		},
		OnTaskStatus: func(ctx context.Context, ev *domain.Event) {
			m.TaskStatus.WithLabelValues(string(ev.Status)).Inc()
		},
	}
}

// directiveKind keeps label cardinality bounded: "retry 2" and "retry 3" are both "retry".
func directiveKind(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "none"
	}
	switch fields[0] {
	case "continue", "fail", "retry", "run_stages":
		return fields[0]
	}
	return "action"
}
