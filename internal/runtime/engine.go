package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/action"
	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/variables"
)

const tracerName = "github.com/aretw0/stagecraft/internal/runtime"

// Engine walks an agent configuration stage by stage and records what happened.
type Engine struct {
	loader     *config.Loader
	dispatcher ports.Dispatcher
	targets    ports.TargetSelector
	navigator  ports.Navigator
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTargets sets the selector used to find stage-item targets.
// When it also implements ports.Navigator it is used for navigation too.
func WithTargets(targets ports.TargetSelector) Option {
	return func(e *Engine) {
		e.targets = targets
	}
}

// WithNavigator sets the navigator used by target-based agents.
func WithNavigator(nav ports.Navigator) Option {
	return func(e *Engine) {
		e.navigator = nav
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// New creates an engine.
func New(loader *config.Loader, dispatcher ports.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		loader:     loader,
		dispatcher: dispatcher,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.navigator == nil {
		if nav, ok := e.targets.(ports.Navigator); ok {
			e.navigator = nav
		}
	}
	return e
}

// Request describes one run.
type Request struct {
	Agent   string
	RunID   string
	Context map[string]any
	// Stop, when closed, ends the run at the next stage or stage-item boundary.
	Stop <-chan struct{}
}

// Outcome is the result of a run.
type Outcome struct {
	RunID   string
	Agent   string
	Config  *config.Agent
	Results *domain.AgentResults
	// Success is false when the run was stopped before its last stage.
	Success bool
}

// Run loads the named agent and runs it.
// The returned outcome is nil only when the configuration could not be loaded.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	if e.loader == nil {
		return nil, errors.New("engine has no configuration loader")
	}
	cfg, err := e.loader.Load(ctx, req.Agent)
	if err != nil {
		return nil, err
	}
	return e.RunAgent(ctx, cfg, req)
}

// RunAgent runs an already loaded configuration.
func (e *Engine) RunAgent(ctx context.Context, cfg *config.Agent, req Request) (*Outcome, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	rc := newRun(req.RunID, cfg, req.Context, req.Stop)
	out := &Outcome{RunID: rc.id, Agent: cfg.Name, Config: cfg, Results: rc.results}
	defer rc.results.Close()

	log := e.logger.With("run_id", rc.id, "agent", cfg.Name)
	log.Info("Run started", "stages", len(cfg.StageOrder))

	for _, name := range cfg.StageOrder {
		if err := e.runStages(ctx, rc, cfg, name, ""); err != nil {
			log.Warn("Run stopped", "stage", name, "err", err)
			return out, err
		}
	}

	out.Success = true
	log.Info("Run finished", "successful", rc.results.IsSuccessful())
	return out, nil
}

// runStages runs every iteration of a stage. A non-empty alias marks a delegated run.
func (e *Engine) runStages(ctx context.Context, rc *runContext, a *config.Agent, name, alias string) error {
	stage, ok := a.Stages[name]
	if !ok {
		return domain.NewConfigError(a.Name+"."+name, "unknown stage", nil)
	}
	if err := config.ValidateIteration(stage.Iteration); err != nil {
		return err
	}

	for _, idx := range stage.Iteration.Indexes() {
		id := name
		if idx > 0 {
			id += strconv.Itoa(idx)
		}
		if alias != "" {
			id += "-" + alias
		}
		if stage.Iteration != nil && stage.Iteration.Index != "" {
			rc.store.Set(stage.Iteration.Index, idx)
		}

		sr := &stageRun{agent: a, name: name, id: id, index: idx, stage: stage}
		if err := e.runStage(ctx, rc, sr, 1); err != nil {
			return err
		}
	}
	return nil
}

// stageRun is one pass over a configured stage.
type stageRun struct {
	agent    *config.Agent
	stage    *config.Stage
	name     string // configured name
	id       string // iteration and delegation qualified identifier
	key      string // attempt key in the agent's stage results
	index    int
	elements *domain.ElementResults
}

func (sr *stageRun) path() domain.ConfigPath {
	return domain.StagePath(domain.NewName(sr.name).WithID(sr.key))
}

func (e *Engine) runStage(ctx context.Context, rc *runContext, sr *stageRun, attempt int) error {
	if err := rc.checkStop(sr.agent.Name, sr.path()); err != nil {
		return err
	}

	sr.key = domain.AttemptKey(sr.id, attempt)
	log := e.logger.With("run_id", rc.id, "agent", sr.agent.Name, "stage", sr.key)

	if attempt == 1 && !sr.stage.When.Empty() {
		open, err := e.gate(ctx, rc, sr, "", sr.stage.When, "", 0)
		if err != nil {
			return err
		}
		if !open {
			log.Debug("Stage skipped by when condition")
			return nil
		}
	}

	sr.elements = domain.NewElementResults()
	if err := rc.stageResults(sr.agent.Name).Set(sr.key, sr.elements); err != nil {
		return err
	}

	ctx, span := e.startStageSpan(ctx, rc, sr, attempt)
	defer span.End()

	domain.Emit(ctx, e.hooks.OnStageEnter, &domain.Event{
		Type: domain.EventStageEnter, RunID: rc.id, Agent: sr.agent.Name, Stage: sr.key, Trial: attempt,
	})

	if err := e.decide(ctx, rc, &decision{
		run:        sr,
		path:       sr.path(),
		event:      domain.OnStart,
		directives: sr.stage.Events[domain.OnStart],
		trial:      attempt,
	}); err != nil {
		return e.leaveStage(ctx, rc, sr, span, err)
	}

	if sr.agent.TargetBased && sr.stage.Location != "" && e.navigator != nil {
		location, err := e.expander(rc, sr, "").Expand(sr.stage.Location, variables.Strict)
		if err != nil {
			return e.leaveStage(ctx, rc, sr, span, domain.NewConfigError(sr.stage.Location, "cannot resolve location", err))
		}
		log.Debug("Navigating", "location", location)
		if err := e.navigator.Navigate(ctx, sr.agent.Name, location); err != nil {
			return e.leaveStage(ctx, rc, sr, span, &domain.RunStoppedError{
				Agent: sr.agent.Name, Path: sr.path(), Reason: "navigation failed", Results: rc.results, Err: err,
			})
		}
	}

	for _, itemName := range sr.stage.ItemOrder {
		if err := e.runItem(ctx, rc, sr, itemName, 1); err != nil {
			return e.leaveStage(ctx, rc, sr, span, err)
		}
	}

	// Every stage-item was gated out and onstart recorded nothing.
	if attempt == 1 && sr.elements.Len() == 0 {
		log.Debug("Stage skipped, no stage-item passed its when condition")
		err := rc.stageResults(sr.agent.Name).Remove(sr.key)
		domain.Emit(ctx, e.hooks.OnStageLeave, &domain.Event{
			Type: domain.EventStageLeave, RunID: rc.id, Agent: sr.agent.Name, Stage: sr.key, Success: err == nil,
		})
		return err
	}

	successful := domain.IsPathSuccessful(sr.elements, sr.path(), sr.agent)
	event := chooseEvent(nil, successful)
	err := e.decide(ctx, rc, &decision{
		run:        sr,
		path:       sr.path(),
		event:      event,
		directives: sr.stage.Events[event],
		trial:      attempt,
		retry: func(ctx context.Context, next int) error {
			if err := rc.stageResults(sr.agent.Name).Supersede(sr.key); err != nil {
				return err
			}
			return e.runStage(ctx, rc, sr, next)
		},
	})
	return e.leaveStage(ctx, rc, sr, span, err)
}

func (e *Engine) leaveStage(ctx context.Context, rc *runContext, sr *stageRun, span trace.Span, err error) error {
	ev := &domain.Event{
		Type:    domain.EventStageLeave,
		RunID:   rc.id,
		Agent:   sr.agent.Name,
		Stage:   sr.key,
		Success: err == nil && domain.IsPathSuccessful(sr.elements, sr.path(), sr.agent),
	}
	if err != nil {
		ev.Err = err.Error()
		recordSpanError(span, err)
	}
	domain.Emit(ctx, e.hooks.OnStageLeave, ev)
	return err
}

func (e *Engine) runItem(ctx context.Context, rc *runContext, sr *stageRun, name string, attempt int) error {
	if err := rc.checkStop(sr.agent.Name, sr.path()); err != nil {
		return err
	}

	item := sr.stage.Items[name]
	key := domain.AttemptKey(name, attempt)
	path := domain.ItemPath(domain.NewName(sr.name).WithID(sr.key), domain.NewName(name).WithID(key))
	log := e.logger.With("run_id", rc.id, "agent", sr.agent.Name, "stage", sr.key, "item", key)
	timeout := item.TimeoutDuration()

	if attempt == 1 && !item.When.Empty() {
		open, err := e.gate(ctx, rc, sr, name, item.When, item.Target, timeout)
		if err != nil {
			return err
		}
		if !open {
			log.Debug("Stage-item skipped by when condition")
			return nil
		}
	}

	ctx, span := e.startItemSpan(ctx, rc, sr, key, attempt)
	defer span.End()

	itemCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	exp := e.expander(rc, sr, name)
	pos := actionPosition(sr, key)

	var (
		results domain.ActionResults
		cause   error
	)
	target, err := e.selectTarget(itemCtx, rc, sr, name, item.Target, timeout)
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}
	if err != nil {
		results = append(results, selectionFailure(pos, item.Target, err))
		cause = err
	} else {
		results, cause, err = e.performAll(itemCtx, rc, item.Actions, pos, exp, target)
		if err != nil {
			recordSpanError(span, err)
			return err
		}
	}

	if cause == nil && !item.Expected.Empty() {
		if err := e.expect(itemCtx, rc, sr, name, item, pos, target, &results); err != nil {
			recordSpanError(span, err)
			return err
		}
	}

	if err := sr.elements.Set(key, results); err != nil {
		return err
	}

	successful := domain.IsPathSuccessful(sr.elements, path, sr.agent)
	if cause != nil {
		log.Warn("Stage-item raised", "err", cause)
		recordSpanError(span, cause)
	}
	event := chooseEvent(cause, successful)
	return e.decide(ctx, rc, &decision{
		run:        sr,
		path:       path,
		event:      event,
		directives: item.Events[event],
		trial:      attempt,
		base:       key,
		item:       name,
		target:     target,
		cause:      cause,
		retry: func(ctx context.Context, next int) error {
			if err := sr.elements.Supersede(key); err != nil {
				return err
			}
			return e.runItem(ctx, rc, sr, name, next)
		},
	})
}

// performAll runs signatures in order. A failing result does not stop the list;
// an exception does, and is returned as cause. Configuration errors are returned as err.
func (e *Engine) performAll(ctx context.Context, rc *runContext, signatures []string, pos action.Position, exp *variables.Expander, target *ports.Target) (domain.ActionResults, error, error) {
	var results domain.ActionResults
	for _, sig := range signatures {
		res, cause, err := e.perform(ctx, rc, sig, pos, exp, target)
		if err != nil {
			return results, nil, err
		}
		results = append(results, res)
		if cause != nil {
			return results, cause, nil
		}
	}
	return results, nil, nil
}

func (e *Engine) selectTarget(ctx context.Context, rc *runContext, sr *stageRun, item, locator string, timeout time.Duration) (*ports.Target, error) {
	if locator == "" || e.targets == nil {
		return &ports.Target{Locator: locator}, nil
	}
	resolved, err := e.expander(rc, sr, item).Expand(locator, variables.Strict)
	if err != nil {
		return nil, domain.NewConfigError(locator, "cannot resolve target", err)
	}
	target, err := e.targets.Select(ctx, ports.TargetRequest{
		Agent:   sr.agent.Name,
		Stage:   sr.key,
		Item:    item,
		Locator: resolved,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("select target %q: %w", resolved, err)
	}
	return target, nil
}

// chooseEvent picks onerror when an exception occurred or the path is not successful.
func chooseEvent(cause error, successful bool) string {
	if cause != nil || !successful {
		return domain.OnError
	}
	return domain.OnSuccess
}
