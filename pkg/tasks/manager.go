package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/internal/runtime"
	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// DefaultWorkers is the size of the worker pool when none is configured.
const DefaultWorkers = 4

// ErrNoAgents is returned when a task names no agent.
var ErrNoAgents = errors.New("task names no agents")

// ErrShutdown is returned by Submit after Shutdown.
var ErrShutdown = errors.New("task manager is shut down")

// Runner executes one loaded agent.
type Runner interface {
	RunAgent(ctx context.Context, cfg *config.Agent, req runtime.Request) (*runtime.Outcome, error)
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// handle is the in-process control block of an active task.
type handle struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
}

// signal marks the task stopped. In-flight actions are not interrupted; the run
// observes the stop at its next stage boundary.
func (h *handle) signal() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

func (h *handle) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// Manager runs tasks on a bounded worker pool and keeps their records in a TaskStore.
// Agents of one task run sequentially; tasks run concurrently.
type Manager struct {
	loader *config.Loader
	runner Runner
	store  ports.TaskStore

	archive         ports.RunArchive
	hooks           domain.LifecycleHooks
	locker          ports.DistributedLocker
	logger          *slog.Logger
	continueOnError bool
	workers         int
	lockTTL         time.Duration

	sem chan struct{}

	mu     sync.Mutex
	locks  map[string]*lockEntry
	active map[string]*handle
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures the Manager.
type Option func(*Manager)

// WithWorkers bounds the number of tasks running at once.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		m.workers = n
	}
}

// ContinueOnError keeps running the remaining agents of a task after one fails.
func ContinueOnError(enabled bool) Option {
	return func(m *Manager) {
		m.continueOnError = enabled
	}
}

// WithArchive persists every finished agent run.
func WithArchive(archive ports.RunArchive) Option {
	return func(m *Manager) {
		m.archive = archive
	}
}

// WithHooks registers observers for task status changes.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithLocker enables distributed locking of task records.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a task manager. The store is the task registry; it is never shared implicitly.
func NewManager(loader *config.Loader, runner Runner, store ports.TaskStore, opts ...Option) *Manager {
	m := &Manager{
		loader:  loader,
		runner:  runner,
		store:   store,
		workers: DefaultWorkers,
		lockTTL: 30 * time.Second,
		locks:   make(map[string]*lockEntry),
		active:  make(map[string]*handle),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers < 1 {
		m.workers = 1
	}
	m.sem = make(chan struct{}, m.workers)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Store returns the underlying task store.
func (m *Manager) Store() ports.TaskStore {
	return m.store
}

// Submit records a pending task and schedules it. vars seed the context of every agent run.
func (m *Manager) Submit(ctx context.Context, agents []string, vars map[string]any) (*domain.Task, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}

	task := domain.NewTask(uuid.NewString(), agents)
	if err := m.store.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to record task: %w", err)
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	h := &handle{stop: make(chan struct{}), done: make(chan struct{}), cancel: cancel}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = m.store.Delete(ctx, task.ID)
		return nil, ErrShutdown
	}
	m.active[task.ID] = h
	m.wg.Add(1)
	m.mu.Unlock()

	m.emit(ctx, task)
	m.logger.Info("Task submitted", "task_id", task.ID, "agents", agents)

	go m.execute(runCtx, h, task.ID, agents, vars)
	return m.store.Load(ctx, task.ID)
}

// Get returns the current record of a task.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Task, error) {
	return m.store.Load(ctx, id)
}

// List returns every task known to the store, oldest first.
func (m *Manager) List(ctx context.Context) ([]*domain.Task, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := m.store.Load(ctx, id)
		if errors.Is(err, domain.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b *domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Active lists the ids of the tasks this manager is running or about to run.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Stop asks a task to end. The running agent stops at its next boundary and the
// remaining agents are skipped. Stopping a finished task is a no-op.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		_, err := m.store.Load(ctx, id)
		return err
	}

	m.logger.Info("Stopping task", "task_id", id)
	err := m.update(ctx, id, func(t *domain.Task) {
		t.Stopped = true
	})
	h.signal()
	return err
}

// Wait blocks until the task finishes or ctx ends, then returns its record.
func (m *Manager) Wait(ctx context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	h, ok := m.active[id]
	m.mu.Unlock()

	if ok {
		select {
		case <-h.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.store.Load(ctx, id)
}

// Shutdown stops accepting tasks, stops the active ones and waits for them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	handles := make([]*handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.signal()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
}

func (m *Manager) execute(ctx context.Context, h *handle, id string, agents []string, vars map[string]any) {
	defer m.wg.Done()
	defer close(h.done)
	defer func() {
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		h.cancel()
	}()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-h.stop:
	}

	var failed string
	for i, name := range agents {
		switch {
		case h.stopped():
			m.skip(ctx, id, i, domain.ErrTaskStopped.Error())
		case failed != "" && !m.continueOnError:
			m.skip(ctx, id, i, fmt.Sprintf("skipped after failure of %q", failed))
		default:
			if !m.runAgent(ctx, h, id, i, name, vars) {
				failed = name
			}
		}
	}

	if t, err := m.store.Load(context.Background(), id); err == nil {
		m.logger.Info("Task finished", "task_id", id, "status", t.Status)
	}
}

// runAgent runs the i-th agent of a task and reports whether it succeeded.
func (m *Manager) runAgent(ctx context.Context, h *handle, id string, i int, name string, vars map[string]any) bool {
	log := m.logger.With("task_id", id, "agent", name)

	m.setAgent(ctx, id, i, func(ar *domain.AgentRun) {
		ar.Status = domain.StatusLoading
		ar.StartedAt = time.Now()
	})

	cfg, err := m.loader.Load(ctx, name)
	if err != nil {
		log.Warn("Agent failed to load", "err", err)
		m.setAgent(ctx, id, i, func(ar *domain.AgentRun) {
			ar.Status = domain.StatusFailure
			ar.Error = err.Error()
			ar.FinishedAt = time.Now()
		})
		return false
	}

	runID := uuid.NewString()
	m.setAgent(ctx, id, i, func(ar *domain.AgentRun) {
		ar.Status = domain.StatusRunning
		ar.RunID = runID
	})

	out, err := m.runner.RunAgent(ctx, cfg, runtime.Request{
		Agent:   name,
		RunID:   runID,
		Context: vars,
		Stop:    h.stop,
	})

	status := domain.StatusSuccess
	switch {
	case h.stopped():
		status = domain.StatusStopped
	case err != nil:
		status = domain.StatusFailure
	}

	var archived string
	if out != nil && m.archive != nil {
		archived = m.archiveRun(ctx, cfg, out, log)
	}

	m.setAgent(ctx, id, i, func(ar *domain.AgentRun) {
		ar.Status = status
		ar.FinishedAt = time.Now()
		ar.Archive = archived
		if out != nil {
			ar.Results = out.Results
		}
		if err != nil {
			ar.Error = err.Error()
		}
	})
	log.Info("Agent finished", "status", status)
	return status == domain.StatusSuccess
}

func (m *Manager) archiveRun(ctx context.Context, cfg *config.Agent, out *runtime.Outcome, log *slog.Logger) string {
	resolved, err := cfg.ResolvedYAML()
	if err != nil {
		log.Warn("Failed to render resolved configuration", "err", err)
	}
	path, err := m.archive.Save(ctx, ports.ArchiveRecord{
		RunID:    out.RunID,
		Agent:    cfg.Name,
		Time:     time.Now(),
		Success:  out.Success,
		Results:  out.Results,
		Resolved: resolved,
	})
	if err != nil {
		log.Warn("Failed to archive run", "err", err)
		return ""
	}
	return path
}

func (m *Manager) skip(ctx context.Context, id string, i int, reason string) {
	m.setAgent(ctx, id, i, func(ar *domain.AgentRun) {
		ar.Status = domain.StatusStopped
		ar.Error = reason
		ar.FinishedAt = time.Now()
	})
}

func (m *Manager) setAgent(ctx context.Context, id string, i int, fn func(*domain.AgentRun)) {
	// Record updates outlive the run context so a stopped task still reaches a terminal record.
	err := m.update(context.WithoutCancel(ctx), id, func(t *domain.Task) {
		if i < len(t.Agents) {
			fn(t.Agents[i])
		}
	})
	if err != nil {
		m.logger.Error("Failed to update task", "task_id", id, "err", err)
	}
}

// update applies fn to the stored task under the task lock and saves it.
func (m *Manager) update(ctx context.Context, id string, fn func(*domain.Task)) error {
	var task *domain.Task
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		t, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		fn(t)
		t.Refresh()
		task = t
		return m.store.Save(ctx, t)
	})
	if err == nil {
		m.emit(ctx, task)
	}
	return err
}

func (m *Manager) emit(ctx context.Context, t *domain.Task) {
	domain.Emit(ctx, m.hooks.OnTaskStatus, &domain.Event{
		Type:    domain.EventTaskStatus,
		TaskID:  t.ID,
		Status:  t.Status,
		Success: t.Status == domain.StatusSuccess,
	})
}

// acquire pins the lock entry of a task record so it outlives concurrent releases.
// Every acquire is paired with one release, issued once the entry's mutex is unlocked.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release unpins the entry and drops it once no caller holds it.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// WithLock executes fn while holding the lock for the task.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "task:"+id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Task lock not released, it expires with its TTL",
					"task_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
