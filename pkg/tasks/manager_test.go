package tasks_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/internal/runtime"
	"github.com/aretw0/stagecraft/pkg/adapters/memory"
	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/modules"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/registry"
	"github.com/aretw0/stagecraft/pkg/tasks"
)

var agents = map[string]string{
	"ok": `
stages:
  s:
    stage-items:
      i: {actions: [pass]}
`,
	"broken": `
stages:
  s:
    stage-items:
      i: {actions: [fail]}
`,
	"slow": `
stages:
  s:
    stage-items:
      i: {actions: [wait 300ms]}
  t:
    stage-items:
      j: {actions: [pass]}
`,
	"held": `
stages:
  s:
    stage-items:
      i: {actions: [hold]}
`,
}

// gauge tracks how many hold actions run at once.
type gauge struct {
	current atomic.Int32
	max     atomic.Int32
}

func (g *gauge) module() registry.Module {
	return registry.NewTable("gauge").Register("hold", func(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
		n := g.current.Add(1)
		defer g.current.Add(-1)
		for {
			m := g.max.Load()
			if n <= m || g.max.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		return domain.Succeeded(call.Action, nil), nil
	})
}

type fakeArchive struct {
	mu      sync.Mutex
	records []ports.ArchiveRecord
}

func (a *fakeArchive) Save(ctx context.Context, rec ports.ArchiveRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return "archive/" + rec.Agent, nil
}

func newManager(t *testing.T, g *gauge, opts ...tasks.Option) *tasks.Manager {
	t.Helper()
	if g == nil {
		g = &gauge{}
	}
	loader := config.NewLoader(memory.NewSource(agents))
	engine := runtime.New(loader, registry.NewChain(modules.Core(), g.module()))
	m := tasks.NewManager(loader, engine, memory.NewTaskStore(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitFor(t *testing.T, m *tasks.Manager, id string) *domain.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return task
}

func TestManager_RunsAgentsSequentially(t *testing.T) {
	archive := &fakeArchive{}
	m := newManager(t, nil, tasks.WithArchive(archive))

	task, err := m.Submit(context.Background(), []string{"ok", "held"}, nil)
	require.NoError(t, err)
	require.Len(t, task.Agents, 2)

	done := waitFor(t, m, task.ID)
	assert.Equal(t, domain.StatusSuccess, done.Status)
	for _, ar := range done.Agents {
		assert.Equal(t, domain.StatusSuccess, ar.Status, ar.Agent)
		require.NotNil(t, ar.Results)
		assert.True(t, ar.Results.IsSuccessful())
		assert.Equal(t, "archive/"+ar.Agent, ar.Archive)
		assert.False(t, ar.StartedAt.IsZero())
		assert.False(t, ar.FinishedAt.Before(ar.StartedAt))
	}
	assert.True(t, done.Agents[0].FinishedAt.Before(done.Agents[1].StartedAt) ||
		done.Agents[0].FinishedAt.Equal(done.Agents[1].StartedAt))

	require.Len(t, archive.records, 2)
	assert.NotEmpty(t, archive.records[0].Resolved)
	assert.Empty(t, m.Active())
}

func TestManager_StopsRemainingAgentsAfterFailure(t *testing.T) {
	m := newManager(t, nil)

	task, err := m.Submit(context.Background(), []string{"broken", "ok"}, nil)
	require.NoError(t, err)

	done := waitFor(t, m, task.ID)
	assert.Equal(t, domain.StatusFailure, done.Status)
	assert.Equal(t, domain.StatusFailure, done.Agents[0].Status)
	assert.Contains(t, done.Agents[0].Error, "failed")
	assert.Equal(t, domain.StatusStopped, done.Agents[1].Status)
	assert.Contains(t, done.Agents[1].Error, `"broken"`)
}

func TestManager_ContinueOnError(t *testing.T) {
	m := newManager(t, nil, tasks.ContinueOnError(true))

	task, err := m.Submit(context.Background(), []string{"broken", "ok"}, nil)
	require.NoError(t, err)

	done := waitFor(t, m, task.ID)
	assert.Equal(t, domain.StatusFailure, done.Status)
	assert.Equal(t, domain.StatusFailure, done.Agents[0].Status)
	assert.Equal(t, domain.StatusSuccess, done.Agents[1].Status)
}

func TestManager_UnknownAgentFailsToLoad(t *testing.T) {
	m := newManager(t, nil)

	task, err := m.Submit(context.Background(), []string{"ghost"}, nil)
	require.NoError(t, err)

	done := waitFor(t, m, task.ID)
	assert.Equal(t, domain.StatusFailure, done.Agents[0].Status)
	assert.Contains(t, done.Agents[0].Error, "agent not found")
	assert.Nil(t, done.Agents[0].Results)
}

func TestManager_Stop(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	task, err := m.Submit(ctx, []string{"slow", "ok"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, err := m.Get(ctx, task.ID)
		return err == nil && cur.Agents[0].Status == domain.StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop(ctx, task.ID))

	done := waitFor(t, m, task.ID)
	assert.True(t, done.Stopped)
	assert.Equal(t, domain.StatusFailure, done.Status)
	assert.Equal(t, domain.StatusStopped, done.Agents[0].Status)
	assert.Equal(t, domain.StatusStopped, done.Agents[1].Status)
	assert.Equal(t, domain.ErrTaskStopped.Error(), done.Agents[1].Error)

	require.NoError(t, m.Stop(ctx, task.ID), "stopping a finished task is a no-op")
}

func TestManager_WorkerPoolIsBounded(t *testing.T) {
	g := &gauge{}
	m := newManager(t, g, tasks.WithWorkers(2))

	var ids []string
	for i := 0; i < 6; i++ {
		task, err := m.Submit(context.Background(), []string{"held"}, nil)
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}
	for _, id := range ids {
		assert.Equal(t, domain.StatusSuccess, waitFor(t, m, id).Status)
	}
	assert.LessOrEqual(t, g.max.Load(), int32(2))
	assert.GreaterOrEqual(t, g.max.Load(), int32(1))
}

func TestManager_QueryAndList(t *testing.T) {
	m := newManager(t, nil)
	ctx := context.Background()

	_, err := m.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.ErrorIs(t, m.Stop(ctx, "nope"), domain.ErrTaskNotFound)

	_, err = m.Submit(ctx, nil, nil)
	assert.ErrorIs(t, err, tasks.ErrNoAgents)

	first, err := m.Submit(ctx, []string{"ok"}, nil)
	require.NoError(t, err)
	waitFor(t, m, first.ID)
	second, err := m.Submit(ctx, []string{"ok"}, map[string]any{"who": "me"})
	require.NoError(t, err)
	waitFor(t, m, second.ID)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestManager_TaskStatusHooks(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []domain.Status
	)
	hooks := domain.LifecycleHooks{
		OnTaskStatus: func(ctx context.Context, ev *domain.Event) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, ev.Status)
		},
	}
	m := newManager(t, nil, tasks.WithHooks(hooks))

	task, err := m.Submit(context.Background(), []string{"ok"}, nil)
	require.NoError(t, err)
	waitFor(t, m, task.ID)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.StatusPending, statuses[0])
	assert.Equal(t, domain.StatusSuccess, statuses[len(statuses)-1])
	assert.Contains(t, statuses, domain.StatusRunning)
}

func TestManager_ShutdownRejectsNewTasks(t *testing.T) {
	m := newManager(t, nil)
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.Submit(context.Background(), []string{"ok"}, nil)
	assert.ErrorIs(t, err, tasks.ErrShutdown)
}
