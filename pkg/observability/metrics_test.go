package observability_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/observability"
)

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()

	domain.Emit(ctx, hooks.OnAction, &domain.Event{Operation: "pass", Success: true, Duration: 0.01})
	domain.Emit(ctx, hooks.OnAction, &domain.Event{Operation: "pass", Success: true, Duration: 0.02})
	domain.Emit(ctx, hooks.OnAction, &domain.Event{Operation: "fail"})
	domain.Emit(ctx, hooks.OnStageLeave, &domain.Event{Agent: "shop", Success: true})
	domain.Emit(ctx, hooks.OnDecision, &domain.Event{Event: domain.OnError, Directive: "retry 2"})
	domain.Emit(ctx, hooks.OnDecision, &domain.Event{Event: domain.OnError, Directive: "retry 3"})
	domain.Emit(ctx, hooks.OnDecision, &domain.Event{Event: domain.OnSuccess, Directive: "log done"})
	domain.Emit(ctx, hooks.OnTaskStatus, &domain.Event{Status: domain.StatusRunning})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Actions.WithLabelValues("pass", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("fail", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Stages.WithLabelValues("shop", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("onerror", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("onsuccess", "action")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskStatus.WithLabelValues("running")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ActionDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics()
	domain.Emit(context.Background(), m.Hooks().OnAction, &domain.Event{Operation: "pass", Success: true})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `stagecraft_actions_total{operation="pass",success="true"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
