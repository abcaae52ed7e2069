package stagecraft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/internal/runtime"
	"github.com/aretw0/stagecraft/pkg/adapters/file"
	"github.com/aretw0/stagecraft/pkg/adapters/memory"
	"github.com/aretw0/stagecraft/pkg/adapters/process"
	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/modules"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/registry"
	"github.com/aretw0/stagecraft/pkg/tasks"
)

// Version is the release of the library and the binary.
const Version = "0.1.0"

// ErrNothingToConfirm is returned by Confirm when the task has no running agent.
var ErrNothingToConfirm = errors.New("task has no running agent")

// App is the high-level entry point: it wires an agent source, the built-in
// modules, the engine and a task manager.
type App struct {
	loader   *config.Loader
	engine   *runtime.Engine
	manager  *tasks.Manager
	confirms *memory.Confirmations
	targets  *memory.Targets
	tools    *process.Runner

	source          ports.ConfigSource
	store           ports.TaskStore
	archive         ports.RunArchive
	locker          ports.DistributedLocker
	hooks           domain.LifecycleHooks
	logger          *slog.Logger
	extra           []registry.Module
	toolSet         map[string]process.ProcessConfig
	inlineShell     bool
	workspace       string
	workers         int
	continueOnError bool
	confirmTimeout  time.Duration
}

// Option configures the App.
type Option func(*App)

// WithSource reads agents from a custom source instead of the agents directory.
func WithSource(src ports.ConfigSource) Option {
	return func(a *App) {
		a.source = src
	}
}

// WithAgents serves agents from in-memory YAML documents.
func WithAgents(docs map[string]string) Option {
	return func(a *App) {
		a.source = memory.NewSource(docs)
	}
}

// WithStore sets the task registry. Defaults to an in-memory store.
func WithStore(store ports.TaskStore) Option {
	return func(a *App) {
		a.store = store
	}
}

// WithArchive persists every finished agent run.
func WithArchive(archive ports.RunArchive) Option {
	return func(a *App) {
		a.archive = archive
	}
}

// WithLocker enables distributed locking of task records.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(a *App) {
		a.locker = locker
	}
}

// WithLifecycleHooks registers observability hooks on both the engine and the task layer.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *App) {
		a.hooks = domain.MergeHooks(a.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithModules registers extra action modules. They are consulted after the built-in ones.
func WithModules(mods ...registry.Module) Option {
	return func(a *App) {
		a.extra = append(a.extra, mods...)
	}
}

// WithTools allow-lists external commands.
func WithTools(tools map[string]process.ProcessConfig) Option {
	return func(a *App) {
		a.toolSet = tools
	}
}

// WithInlineShell enables the shell operation.
func WithInlineShell(enabled bool) Option {
	return func(a *App) {
		a.inlineShell = enabled
	}
}

// WithWorkspace sets the root of file operations and the working directory of tools.
func WithWorkspace(dir string) Option {
	return func(a *App) {
		a.workspace = dir
	}
}

// WithWorkers bounds the number of tasks running at once.
func WithWorkers(n int) Option {
	return func(a *App) {
		a.workers = n
	}
}

// ContinueOnError keeps running the remaining agents of a task after one fails.
func ContinueOnError(enabled bool) Option {
	return func(a *App) {
		a.continueOnError = enabled
	}
}

// WithConfirmTimeout bounds confirm actions that carry no timeout argument.
func WithConfirmTimeout(d time.Duration) Option {
	return func(a *App) {
		a.confirmTimeout = d
	}
}

// New builds an App reading agents from agentsDir.
// agentsDir may be empty when WithSource or WithAgents is given.
func New(agentsDir string, opts ...Option) (*App, error) {
	a := &App{
		workers:   tasks.DefaultWorkers,
		workspace: ".",
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.source == nil {
		if agentsDir == "" {
			return nil, fmt.Errorf("agentsDir is required when no custom source is provided")
		}
		a.source = file.NewSource(agentsDir)
	}
	if a.logger == nil {
		a.logger = logging.NewNop()
	}
	if a.store == nil {
		a.store = memory.NewTaskStore()
	}

	a.confirms = memory.NewConfirmations()
	a.targets = memory.NewTargets(nil)
	a.tools = process.NewRunner(
		process.WithRegistry(a.toolSet),
		process.WithInlineExecution(a.inlineShell),
		process.WithBaseDir(a.workspace),
		process.WithLogger(a.logger),
	)

	chain := []registry.Module{
		modules.Core(
			modules.WithLogger(a.logger),
			modules.WithConfirmer(a.confirms),
			modules.WithNavigator(a.targets),
			modules.WithConfirmTimeout(a.confirmTimeout),
		),
		modules.File(a.workspace),
		a.tools,
	}
	chain = append(chain, a.extra...)

	a.loader = config.NewLoader(a.source, config.WithLogger(a.logger))
	a.engine = runtime.New(a.loader, registry.NewChain(chain...),
		runtime.WithLogger(a.logger),
		runtime.WithTargets(a.targets),
		runtime.WithHooks(a.hooks),
	)

	managerOpts := []tasks.Option{
		tasks.WithWorkers(a.workers),
		tasks.ContinueOnError(a.continueOnError),
		tasks.WithHooks(a.hooks),
		tasks.WithLogger(a.logger),
	}
	if a.archive != nil {
		managerOpts = append(managerOpts, tasks.WithArchive(a.archive))
	}
	if a.locker != nil {
		managerOpts = append(managerOpts, tasks.WithLocker(a.locker))
	}
	a.manager = tasks.NewManager(a.loader, a.engine, a.store, managerOpts...)
	return a, nil
}

// Submit schedules a task running agents in order.
func (a *App) Submit(ctx context.Context, agents []string, vars map[string]any) (*domain.Task, error) {
	return a.manager.Submit(ctx, agents, vars)
}

// Run submits a task and waits for it to finish.
func (a *App) Run(ctx context.Context, agents []string, vars map[string]any) (*domain.Task, error) {
	task, err := a.manager.Submit(ctx, agents, vars)
	if err != nil {
		return nil, err
	}
	return a.manager.Wait(ctx, task.ID)
}

// Get returns the current record of a task.
func (a *App) Get(ctx context.Context, id string) (*domain.Task, error) {
	return a.manager.Get(ctx, id)
}

// List returns every known task, oldest first.
func (a *App) List(ctx context.Context) ([]*domain.Task, error) {
	return a.manager.List(ctx)
}

// Stop asks a task to end at its next stage boundary.
func (a *App) Stop(ctx context.Context, id string) error {
	return a.manager.Stop(ctx, id)
}

// Confirm answers the pending confirmation of the agent a task is running.
func (a *App) Confirm(ctx context.Context, id string, approved bool) error {
	task, err := a.manager.Get(ctx, id)
	if err != nil {
		return err
	}
	cur := task.Current()
	if cur == nil || cur.RunID == "" {
		return ErrNothingToConfirm
	}
	return a.confirms.Resolve(cur.RunID, approved)
}

// Validate loads an agent and reports its configuration errors.
func (a *App) Validate(ctx context.Context, name string) error {
	return a.loader.Validate(ctx, name)
}

// Agents lists the agents of the source.
func (a *App) Agents(ctx context.Context) ([]string, error) {
	return a.loader.List(ctx)
}

// Shutdown stops accepting tasks and waits for the running ones.
func (a *App) Shutdown(ctx context.Context) error {
	return a.manager.Shutdown(ctx)
}

// Loader returns the configuration loader.
func (a *App) Loader() *config.Loader {
	return a.loader
}

// Manager returns the task manager.
func (a *App) Manager() *tasks.Manager {
	return a.manager
}

// Confirmations returns the board of pending confirmations.
func (a *App) Confirmations() *memory.Confirmations {
	return a.confirms
}

// Targets returns the registry of stage-item targets.
func (a *App) Targets() *memory.Targets {
	return a.targets
}

// Tools returns the names of the allow-listed tools.
func (a *App) Tools() []string {
	return a.tools.Tools()
}
