// Package modules provides the built-in action handler modules.
//
// Each module is a registry.Table: a lookup from operation name to handler.
// Handlers receive the un-negated operation; the engine flips negated results.
package modules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/condition"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/registry"
	"github.com/aretw0/stagecraft/pkg/variables"
)

// DefaultConfirmTimeout bounds confirm when no timeout argument is given.
const DefaultConfirmTimeout = 5 * time.Minute

type core struct {
	logger    *slog.Logger
	confirmer ports.Confirmer
	navigator ports.Navigator
	timeout   time.Duration
}

// Option configures the core module.
type Option func(*core)

// WithLogger sets the logger used by the log operation.
func WithLogger(logger *slog.Logger) Option {
	return func(c *core) {
		c.logger = logger
	}
}

// WithConfirmer enables the confirm operation.
func WithConfirmer(confirmer ports.Confirmer) Option {
	return func(c *core) {
		c.confirmer = confirmer
	}
}

// WithConfirmTimeout replaces DefaultConfirmTimeout. Non-positive values are ignored.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *core) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithNavigator enables the navigate operation.
func WithNavigator(nav ports.Navigator) Option {
	return func(c *core) {
		c.navigator = nav
	}
}

// Core returns the module of general purpose operations.
func Core(opts ...Option) *registry.Table {
	c := &core{timeout: DefaultConfirmTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}

	t := registry.NewTable("core").
		Register("pass", c.pass).
		Register("fail", c.fail).
		Register("log", c.log).
		Register("wait", c.wait).
		Register("set", c.set).
		Register("unset", c.unset).
		Register("equals", c.equals).
		Register("contains", c.contains).
		Register("matches", c.matches).
		Register("assert", c.assert)
	if c.confirmer != nil {
		t.Register("confirm", c.confirm)
	}
	if c.navigator != nil {
		t.Register("navigate", c.navigate)
	}
	return t
}

func (c *core) pass(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	return domain.Succeeded(call.Action, targetValue(call)), nil
}

func (c *core) fail(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	res := domain.NewResult(call.Action, false, nil)
	res.Error = strings.Join(call.Action.Args, " ")
	return res, nil
}

func (c *core) log(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	msg := strings.Join(call.Action.Args, " ")
	attrs := []any{"agent", call.Action.Agent, "stage", call.Action.Stage, "item", call.Action.Item}
	if call.Run != nil {
		attrs = append(attrs, "run_id", call.Run.RunID())
	}
	c.logger.InfoContext(ctx, msg, attrs...)
	return domain.Succeeded(call.Action, msg), nil
}

func (c *core) wait(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 1, 1); err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(call.Action.Arg(0))
	if err != nil {
		return nil, fmt.Errorf("wait: %w", err)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return domain.Succeeded(call.Action, d.String()), nil
	}
}

func (c *core) set(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 1, 2); err != nil {
		return nil, err
	}
	if call.Run == nil {
		return nil, fmt.Errorf("set: no run context")
	}
	key := call.Action.Arg(0)
	var value any = call.Action.Arg(1)
	if len(call.Action.Args) == 1 {
		value = targetValue(call)
	}
	call.Run.Context().Set(key, value)
	return domain.Succeeded(call.Action, value), nil
}

func (c *core) unset(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 1, 1); err != nil {
		return nil, err
	}
	if call.Run == nil {
		return nil, fmt.Errorf("unset: no run context")
	}
	call.Run.Context().Delete(call.Action.Arg(0))
	return domain.Succeeded(call.Action, nil), nil
}

func (c *core) equals(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	got, want, err := operands(call)
	if err != nil {
		return nil, err
	}
	return domain.NewResult(call.Action, got == want, got), nil
}

func (c *core) contains(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	got, want, err := operands(call)
	if err != nil {
		return nil, err
	}
	return domain.NewResult(call.Action, strings.Contains(got, want), got), nil
}

func (c *core) matches(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	got, pattern, err := operands(call)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("matches: %w", err)
	}
	found := re.FindStringSubmatch(got)
	if found == nil {
		return domain.NewResult(call.Action, false, got), nil
	}
	return domain.Succeeded(call.Action, found[len(found)-1]), nil
}

func (c *core) assert(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 1, -1); err != nil {
		return nil, err
	}
	env := condition.Env{
		Agent: call.Action.Agent,
		Stage: call.Action.Stage,
		Item:  call.Action.Item,
	}
	if call.Run != nil {
		env.Context = call.Run.Context().Snapshot()
	}
	ok, err := condition.Eval(strings.Join(call.Action.Args, " "), env)
	if err != nil {
		return nil, err
	}
	return domain.NewResult(call.Action, ok, ok), nil
}

func (c *core) confirm(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 1, 2); err != nil {
		return nil, err
	}
	timeout := c.timeout
	if raw := call.Action.Arg(1); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("confirm: %w", err)
		}
		timeout = d
	}
	runID := ""
	if call.Run != nil {
		runID = call.Run.RunID()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	approved, err := c.confirmer.Confirm(ctx, runID, call.Action.Arg(0))
	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	return domain.NewResult(call.Action, approved, approved), nil
}

func (c *core) navigate(ctx context.Context, call ports.Call) (*domain.ActionResult, error) {
	if err := arity(call, 1, 1); err != nil {
		return nil, err
	}
	if err := c.navigator.Navigate(ctx, call.Action.Agent, call.Action.Arg(0)); err != nil {
		return nil, err
	}
	return domain.Succeeded(call.Action, call.Action.Arg(0)), nil
}

// operands returns the compared value and the reference.
// With a single argument the compared value is the target's.
func operands(call ports.Call) (string, string, error) {
	if err := arity(call, 1, 2); err != nil {
		return "", "", err
	}
	if len(call.Action.Args) == 1 {
		return variables.Format(targetValue(call)), call.Action.Arg(0), nil
	}
	return call.Action.Arg(0), call.Action.Arg(1), nil
}

func targetValue(call ports.Call) any {
	if call.Target == nil {
		return nil
	}
	return call.Target.Value
}

// arity checks the argument count; hi < 0 means unbounded.
func arity(call ports.Call, lo, hi int) error {
	n := len(call.Action.Args)
	if n < lo || (hi >= 0 && n > hi) {
		return fmt.Errorf("%s: unexpected number of arguments (%d)", call.Action.Operation(), n)
	}
	return nil
}
