package runtime

import (
	"maps"

	"github.com/aretw0/stagecraft/pkg/action"
	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/variables"
)

// runContext carries the state of one run. It is passed explicitly down the call chain.
type runContext struct {
	id      string
	config  *config.Agent
	store   *variables.Context
	results *domain.AgentResults
	stop    <-chan struct{}
}

var _ ports.RunState = (*runContext)(nil)

func newRun(id string, cfg *config.Agent, initial map[string]any, stop <-chan struct{}) *runContext {
	seed := make(map[string]any, len(cfg.Context)+len(initial))
	maps.Copy(seed, cfg.Context)
	maps.Copy(seed, initial)
	return &runContext{
		id:      id,
		config:  cfg,
		store:   variables.NewContext(seed),
		results: domain.NewAgentResults(),
		stop:    stop,
	}
}

func (rc *runContext) RunID() string                 { return rc.id }
func (rc *runContext) Agent() string                 { return rc.config.Name }
func (rc *runContext) Context() *variables.Context   { return rc.store }
func (rc *runContext) Results() *domain.AgentResults { return rc.results }

// stageResults returns the stage container of agent, creating it on first use.
func (rc *runContext) stageResults(agent string) *domain.StageResults {
	if stages, ok := rc.results.Get(agent); ok {
		return stages
	}
	stages := domain.NewStageResults()
	// A run is single-threaded, so Get followed by Set cannot race.
	_ = rc.results.Set(agent, stages)
	return stages
}

func (rc *runContext) checkStop(agent string, path domain.ConfigPath) error {
	if rc.stop == nil {
		return nil
	}
	select {
	case <-rc.stop:
		return &domain.RunStoppedError{
			Agent:   agent,
			Path:    path,
			Reason:  "stopped",
			Results: rc.results,
			Err:     domain.ErrTaskStopped,
		}
	default:
		return nil
	}
}

// expander builds the variable expander for a position. An empty item addresses the stage.
func (e *Engine) expander(rc *runContext, sr *stageRun, item string) *variables.Expander {
	roots := variables.Self{}
	if item != "" {
		roots = append(roots, sr.agent.ItemTree(sr.name, item))
	}
	roots = append(roots, sr.agent.StageTree(sr.name), sr.agent.Tree)
	return &variables.Expander{
		Self:    roots,
		Context: rc.store,
		Results: variables.Results{Tree: rc.results},
		Here:    variables.Here{Agent: sr.agent.Name, Stage: sr.key, Item: item},
	}
}

func actionPosition(sr *stageRun, key string) action.Position {
	return action.Position{Agent: sr.agent.Name, Stage: sr.key, Item: key}
}
