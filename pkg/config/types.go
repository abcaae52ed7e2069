package config

import (
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// Agent is the decoded configuration of one agent.
type Agent struct {
	Name        string            `json:"name,omitempty" mapstructure:"name"`
	Description string            `json:"description,omitempty" mapstructure:"description"`
	Depends     []string          `json:"depends,omitempty" mapstructure:"depends"`
	TargetBased bool              `json:"target-based,omitempty" mapstructure:"target-based"`
	Context     map[string]any    `json:"context,omitempty" mapstructure:"context"`
	Defaults    *Item             `json:"defaults,omitempty" mapstructure:"defaults"`
	Stages      map[string]*Stage `json:"stages" mapstructure:"stages"`

	// StageOrder lists stage names in declaration order.
	StageOrder []string `json:"-" mapstructure:"-"`
	// Tree is the self-resolved configuration tree.
	Tree map[string]any `json:"-" mapstructure:"-"`
	// Origin describes where the document was read from.
	Origin string `json:"-" mapstructure:"-"`
	// Dependencies holds the loaded configurations of Depends.
	Dependencies map[string]*Agent `json:"-" mapstructure:"-"`
}

// Stage is one named phase of an agent.
type Stage struct {
	Location  string           `json:"location,omitempty" mapstructure:"location"`
	Iteration *Iteration       `json:"iteration,omitempty" mapstructure:"iteration"`
	When      *Gate            `json:"when,omitempty" mapstructure:"when"`
	Events    Events           `json:"events,omitempty" mapstructure:"events"`
	Items     map[string]*Item `json:"stage-items,omitempty" mapstructure:"stage-items"`

	ItemOrder []string       `json:"-" mapstructure:"-"`
	Extra     map[string]any `json:"-" mapstructure:",remain"`
}

// Item is one stage-item.
type Item struct {
	Target   string   `json:"target,omitempty" mapstructure:"target"`
	Actions  []string `json:"actions,omitempty" mapstructure:"actions"`
	When     *Gate    `json:"when,omitempty" mapstructure:"when"`
	Expected *Gate    `json:"expected,omitempty" mapstructure:"expected"`
	Timeout  string   `json:"timeout,omitempty" mapstructure:"timeout"`
	Events   Events   `json:"events,omitempty" mapstructure:"events"`

	Extra map[string]any `json:"-" mapstructure:",remain"`
}

// Gate is a block of checks: a when condition or an expected block.
// Actions run against the item's target (or Target when set); Expr is an expr-lang
// boolean expression. Both must hold.
type Gate struct {
	Target  string   `json:"target,omitempty" mapstructure:"target"`
	Actions []string `json:"actions,omitempty" mapstructure:"actions"`
	Expr    string   `json:"expr,omitempty" mapstructure:"expr"`
}

// Empty reports whether the gate has nothing to check.
func (g *Gate) Empty() bool {
	return g == nil || (len(g.Actions) == 0 && strings.TrimSpace(g.Expr) == "")
}

// Iteration describes repeated passes over a stage.
type Iteration struct {
	Start int    `json:"start,omitempty" mapstructure:"start"`
	Step  int    `json:"step,omitempty" mapstructure:"step"`
	End   int    `json:"end,omitempty" mapstructure:"end"`
	Index string `json:"index,omitempty" mapstructure:"index"`
}

// Indexes returns the iteration values in ascending pass order.
// A nil iteration yields a single pass at index 0.
func (it *Iteration) Indexes() []int {
	if it == nil {
		return []int{0}
	}
	var out []int
	switch {
	case it.Step > 0:
		for i := it.Start; i < it.End; i += it.Step {
			out = append(out, i)
		}
	case it.Step < 0:
		for i := it.Start; i > it.End; i += it.Step {
			out = append(out, i)
		}
	}
	return out
}

// Directives is an ordered list of event directives.
// Configuration may give a single string or a list.
type Directives []string

// JSONSchema accepts a string or a list of strings.
func (Directives) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	}
}

// Events maps event names to directives.
type Events map[string]Directives

// TimeoutDuration returns the parsed per-item timeout, or zero.
func (it *Item) TimeoutDuration() time.Duration {
	if it == nil || it.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(it.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Stage returns the named stage of the agent or of one of its dependencies.
func (a *Agent) Stage(agent, name string) (*Stage, bool) {
	target := a
	if agent != "" && agent != a.Name {
		dep, ok := a.Dependencies[agent]
		if !ok {
			return nil, false
		}
		target = dep
	}
	s, ok := target.Stages[name]
	return s, ok
}

// Lookup returns the configuration of the named agent: a itself or one of its dependencies.
func (a *Agent) Lookup(agent string) (*Agent, bool) {
	if agent == "" || agent == a.Name {
		return a, true
	}
	for _, dep := range a.Dependencies {
		if found, ok := dep.Lookup(agent); ok {
			return found, true
		}
	}
	return nil, false
}

// ContinuesOnError implements domain.ContinuePolicy.
func (a *Agent) ContinuesOnError(stage, item string) bool {
	s, ok := a.Stages[stage]
	if !ok {
		return false
	}
	it, ok := s.Items[item]
	if !ok {
		return false
	}
	for _, d := range it.Events[domain.OnError] {
		if strings.TrimSpace(d) == DirectiveContinue {
			return true
		}
	}
	return false
}

// StageTree returns the self-resolved tree of a stage.
func (a *Agent) StageTree(stage string) map[string]any {
	return subtree(a.Tree, domain.KeyStages, stage)
}

// ItemTree returns the self-resolved tree of a stage-item.
func (a *Agent) ItemTree(stage, item string) map[string]any {
	return subtree(a.StageTree(stage), domain.KeyStageItems, item)
}

func subtree(node map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if node == nil {
			return nil
		}
		next, _ := node[k].(map[string]any)
		node = next
	}
	return node
}

// Directive keywords.
const (
	DirectiveContinue  = "continue"
	DirectiveFail      = "fail"
	DirectiveRetry     = "retry"
	DirectiveRunStages = "run_stages"
)
