package runtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aretw0/stagecraft/pkg/action"
	"github.com/aretw0/stagecraft/pkg/condition"
	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/variables"
)

// perform parses and dispatches one signature.
// cause is set when the handler raised; err only for configuration errors.
func (e *Engine) perform(ctx context.Context, rc *runContext, sig string, pos action.Position, exp *variables.Expander, target *ports.Target) (res *domain.ActionResult, cause error, err error) {
	act, err := action.Parse(sig, pos, exp)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	res, err = e.dispatcher.Dispatch(ctx, ports.Call{Action: act, Target: target, Run: rc})
	switch {
	case err != nil:
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, nil, err
		}
		res = domain.Failed(act, err)
		cause = &domain.ActionError{Action: act, Err: err}
	case res == nil:
		res = domain.Succeeded(act, nil)
	case act.Negated():
		res = res.Flip()
	}

	ev := &domain.Event{
		Type:      domain.EventAction,
		RunID:     rc.id,
		Agent:     act.Agent,
		Stage:     act.Stage,
		Item:      act.Item,
		Action:    act.String(),
		Operation: act.Operation(),
		Success:   res.Success,
		Duration:  time.Since(start).Seconds(),
	}
	if cause != nil {
		ev.Err = cause.Error()
	}
	domain.Emit(ctx, e.hooks.OnAction, ev)
	return res, cause, nil
}

// gate evaluates a when block. Nothing is recorded and no events fire.
// A false result, a raised action or a missing target closes the gate. Malformed
// signatures, unknown operations and broken expressions are configuration errors.
func (e *Engine) gate(ctx context.Context, rc *runContext, sr *stageRun, item string, g *config.Gate, locator string, timeout time.Duration) (bool, error) {
	log := e.logger.With("run_id", rc.id, "agent", sr.agent.Name, "stage", sr.key)
	if item != "" {
		log = log.With("item", item)
	}

	if len(g.Actions) > 0 {
		if g.Target != "" {
			locator = g.Target
		}
		target, err := e.selectTarget(ctx, rc, sr, item, locator, timeout)
		if err != nil {
			var cfgErr *domain.ConfigError
			if errors.As(err, &cfgErr) {
				return false, err
			}
			log.Warn("When condition could not select its target", "err", err)
			return false, nil
		}
		exp := e.expander(rc, sr, item)
		pos := actionPosition(sr, item)
		for _, sig := range g.Actions {
			act, err := action.Parse(sig, pos, exp)
			if err != nil {
				return false, err
			}
			res, err := e.dispatcher.Dispatch(ctx, ports.Call{Action: act, Target: target, Run: rc})
			if err != nil {
				var cfgErr *domain.ConfigError
				switch {
				case errors.As(err, &cfgErr):
					return false, err
				case errors.Is(err, domain.ErrUnsupportedOperation):
					return false, domain.NewConfigError(sig, "unknown operation in when condition", err)
				}
				log.Warn("When condition raised", "signature", sig, "err", err)
				return false, nil
			}
			if res == nil {
				res = domain.Succeeded(act, nil)
			} else if act.Negated() {
				res = res.Flip()
			}
			if !res.Success {
				return false, nil
			}
		}
	}

	if src := strings.TrimSpace(g.Expr); src != "" {
		ok, err := condition.Eval(src, e.conditionEnv(rc, sr, item))
		if err != nil {
			return false, domain.NewConfigError(src, "cannot evaluate when expression", err)
		}
		return ok, nil
	}
	return true, nil
}

// expect runs the expected block of an item, appending to the item's pending results.
// References to the item's own results see the pending entry.
func (e *Engine) expect(ctx context.Context, rc *runContext, sr *stageRun, item string, cfg *config.Item, pos action.Position, target *ports.Target, results *domain.ActionResults) error {
	g := cfg.Expected
	exp := e.expander(rc, sr, item)
	exp.Results = variables.Pending{Scope: exp.Results, At: exp.Here, Results: results}

	if len(g.Actions) > 0 {
		if g.Target != "" && g.Target != cfg.Target {
			other, err := e.selectTarget(ctx, rc, sr, item, g.Target, cfg.TimeoutDuration())
			if err != nil {
				var cfgErr *domain.ConfigError
				if errors.As(err, &cfgErr) {
					return err
				}
				*results = append(*results, selectionFailure(pos, g.Target, err))
				return nil
			}
			target = other
		}
		for _, sig := range g.Actions {
			res, cause, err := e.perform(ctx, rc, sig, pos, exp, target)
			if err != nil {
				return err
			}
			*results = append(*results, res)
			if cause != nil {
				return nil
			}
		}
	}

	if src := strings.TrimSpace(g.Expr); src != "" {
		act := &domain.Action{Agent: pos.Agent, Stage: pos.Stage, Item: pos.Item, Name: "expect", Args: []string{src}, Signature: "expect " + src}
		ok, err := condition.Eval(src, e.conditionEnv(rc, sr, item))
		if err != nil {
			*results = append(*results, domain.Failed(act, err))
		} else {
			*results = append(*results, domain.NewResult(act, ok, ok))
		}
	}
	return nil
}

func (e *Engine) conditionEnv(rc *runContext, sr *stageRun, item string) condition.Env {
	return condition.Env{
		Context: rc.store.Snapshot(),
		Agent:   sr.agent.Name,
		Stage:   sr.key,
		Item:    item,
		Index:   sr.index,
	}
}

func selectionFailure(pos action.Position, locator string, err error) *domain.ActionResult {
	act := &domain.Action{
		Agent:     pos.Agent,
		Stage:     pos.Stage,
		Item:      pos.Item,
		Name:      "select",
		Args:      []string{locator},
		Signature: "select " + locator,
	}
	return domain.Failed(act, err)
}
