package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// defaultDirective applies when an event has no directives or none of them is terminal.
var defaultDirective = map[string]string{
	domain.OnError:   config.DirectiveFail,
	domain.OnSuccess: config.DirectiveContinue,
	domain.OnStart:   domain.NoopName,
}

// decision is one pass of the decision engine over an event.
type decision struct {
	run        *stageRun
	path       domain.ConfigPath
	event      string
	directives config.Directives
	trial      int
	// base is the element key the event belongs to; empty for stage events.
	base   string
	item   string
	target *ports.Target
	cause  error
	// retry runs the next attempt. Nil when the event cannot be retried.
	retry func(ctx context.Context, next int) error
}

// decide runs the directives of an event in order and returns the error that stops the run, if any.
// All retry bookkeeping lives here: the trial number travels with the decision.
func (e *Engine) decide(ctx context.Context, rc *runContext, d *decision) error {
	for pos, raw := range d.directives {
		dir, err := config.ParseDirective(raw, d.run.agent.Name)
		if err != nil {
			return domain.NewConfigError(raw, "malformed directive", err)
		}
		if done, err := e.apply(ctx, rc, d, dir, pos); done || err != nil {
			return err
		}
	}

	fallback, ok := defaultDirective[d.event]
	if !ok || fallback == domain.NoopName {
		return nil
	}
	dir, _ := config.ParseDirective(fallback, d.run.agent.Name)
	_, err := e.apply(ctx, rc, d, dir, -1)
	return err
}

// apply executes one directive. done reports whether processing of the event ends here.
func (e *Engine) apply(ctx context.Context, rc *runContext, d *decision, dir config.Directive, pos int) (done bool, err error) {
	sr := d.run
	log := e.logger.With("run_id", rc.id, "agent", sr.agent.Name, "path", d.path.String(), "event", d.event)

	ev := &domain.Event{
		Type:      domain.EventDecision,
		RunID:     rc.id,
		Agent:     sr.agent.Name,
		Stage:     sr.key,
		Item:      d.base,
		Event:     d.event,
		Directive: dir.Raw,
		Trial:     d.trial,
		Success:   d.event != domain.OnError,
	}
	if d.cause != nil {
		ev.Err = d.cause.Error()
	}
	domain.Emit(ctx, e.hooks.OnDecision, ev)

	switch dir.Kind {
	case config.DirectiveContinue:
		if d.event == domain.OnError {
			log.Warn("Continuing past failure", "trial", d.trial)
		}
		return true, nil

	case config.DirectiveFail:
		if d.event != domain.OnError {
			log.Info("Failing on request")
		}
		return true, e.stop(rc, d, "failed")

	case config.DirectiveRetry:
		if d.retry == nil {
			return true, e.stop(rc, d, "retry is not applicable to "+d.event)
		}
		if d.trial > dir.Retries {
			return true, e.stop(rc, d, fmt.Sprintf("retries exhausted after %d attempts", d.trial))
		}
		log.Info("Retrying", "attempt", d.trial+1, "of", dir.Retries+1)
		return true, d.retry(ctx, d.trial+1)

	case config.DirectiveRunStages:
		return false, e.delegate(ctx, rc, d, dir)

	default:
		return false, e.directiveAction(ctx, rc, d, dir, pos)
	}
}

func (e *Engine) stop(rc *runContext, d *decision, reason string) error {
	return &domain.RunStoppedError{
		Agent:   d.run.agent.Name,
		Path:    d.path,
		Reason:  reason,
		Results: rc.results,
		Err:     d.cause,
	}
}

// delegate runs the stages named by a run_stages directive, grouped by agent in order of appearance.
// Delegated stage identifiers carry the caller's identifier as an alias.
func (e *Engine) delegate(ctx context.Context, rc *runContext, d *decision, dir config.Directive) error {
	alias := d.run.key
	if d.base != "" {
		alias += "-" + d.base
	}

	var agents []string
	byAgent := make(map[string][]string)
	for _, ref := range dir.Targets {
		if _, seen := byAgent[ref.Agent]; !seen {
			agents = append(agents, ref.Agent)
		}
		byAgent[ref.Agent] = append(byAgent[ref.Agent], ref.Stage)
	}

	for _, name := range agents {
		cfg, ok := d.run.agent.Lookup(name)
		if !ok {
			cfg, ok = rc.config.Lookup(name)
		}
		if !ok {
			return domain.NewConfigError(dir.Raw, fmt.Sprintf("unknown agent %q", name), domain.ErrAgentNotFound)
		}
		for _, stage := range byAgent[name] {
			e.logger.Debug("Running delegated stage", "run_id", rc.id, "agent", name, "stage", stage, "alias", alias)
			if err := e.runStages(ctx, rc, cfg, stage, alias); err != nil {
				return err
			}
		}
	}
	return nil
}

// directiveAction runs an arbitrary action as a directive and records it under an event key.
func (e *Engine) directiveAction(ctx context.Context, rc *runContext, d *decision, dir config.Directive, pos int) error {
	sr := d.run
	key := domain.EventKey(d.base, d.event, pos)
	exp := e.expander(rc, sr, d.item)

	res, _, err := e.perform(ctx, rc, dir.Raw, actionPosition(sr, key), exp, d.target)
	if err != nil {
		return err
	}
	return sr.elements.Set(key, domain.ActionResults{res})
}
