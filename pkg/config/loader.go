// Package config loads, validates and resolves agent configurations.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/schema"
)

// Loader reads agent documents from a source and turns them into validated Agents.
type Loader struct {
	source ports.ConfigSource
	logger *slog.Logger
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithLogger configures a logger for the Loader.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader over the given source.
func NewLoader(source ports.ConfigSource, opts ...LoaderOption) *Loader {
	l := &Loader{
		source: source,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Source returns the underlying configuration source.
func (l *Loader) Source() ports.ConfigSource {
	return l.source
}

// List returns the names of the agents known to the source.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	return l.source.List(ctx)
}

// Load reads the named agent and, transitively, its dependencies.
// Dependency cycles are rejected before anything is linked.
func (l *Loader) Load(ctx context.Context, name string) (*Agent, error) {
	agents := make(map[string]*Agent)
	graph := make(map[string][]string)

	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, seen := agents[current]; seen {
			continue
		}

		doc, err := l.source.Read(ctx, current)
		if err != nil {
			if current != name && errors.Is(err, domain.ErrAgentNotFound) {
				return nil, domain.NewConfigError(name, fmt.Sprintf("unknown dependency %q", current), err)
			}
			return nil, err
		}
		a, err := l.Parse(doc)
		if err != nil {
			return nil, err
		}
		agents[current] = a
		graph[current] = a.Depends
		queue = append(queue, a.Depends...)
	}

	if err := checkMutualDependencies(graph); err != nil {
		return nil, domain.NewConfigError(name, "invalid dependencies", err)
	}
	if err := checkCycles(graph); err != nil {
		return nil, domain.NewConfigError(name, "invalid dependencies", err)
	}

	for _, a := range agents {
		a.Dependencies = make(map[string]*Agent, len(a.Depends))
		for _, dep := range a.Depends {
			a.Dependencies[dep] = agents[dep]
		}
	}
	for _, a := range agents {
		if errs := validateDelegations(a); len(errs) > 0 {
			return nil, domain.NewConfigError(a.Origin, "invalid configuration", schema.Join(errs))
		}
	}

	l.logger.Debug("Agent loaded", "agent", name, "dependencies", len(agents)-1)
	return agents[name], nil
}

// Parse validates one document in three phases: structural (parse and decode),
// semantic (JSON Schema) and domain. Self references are resolved in between.
func (l *Loader) Parse(doc *ports.Document) (*Agent, error) {
	origin := doc.Origin
	if origin == "" {
		origin = doc.Agent
	}
	fail := func(errs ...error) error {
		return domain.NewConfigError(origin, "invalid configuration", schema.Join(errs))
	}

	tree, ord, err := parseTree(doc.Data, doc.Format)
	if err != nil {
		return nil, fail(&schema.ValidationError{Phase: "structural", Message: err.Error()})
	}

	schemaJSON, err := JSONSchema()
	if err != nil {
		return nil, fmt.Errorf("generate agent schema: %w", err)
	}
	if err := schema.Validate(schemaJSON, tree); err != nil {
		if errs := schema.ValidationErrors(err); errs != nil {
			return nil, fail(errs...)
		}
		return nil, fail(err)
	}

	resolved, errs := resolveSelf(inheritDefaults(tree))
	if len(errs) > 0 {
		return nil, fail(errs...)
	}

	a, err := decodeAgent(resolved, ord)
	if err != nil {
		return nil, fail(&schema.ValidationError{Phase: "structural", Message: err.Error()})
	}
	if a.Name == "" {
		a.Name = doc.Agent
	} else if doc.Agent != "" && a.Name != doc.Agent {
		l.logger.Warn("Agent name differs from its document name, using document name",
			"agent", doc.Agent, "declared", a.Name)
		a.Name = doc.Agent
	}
	a.Origin = origin

	if errs := validateAgent(a); len(errs) > 0 {
		return nil, fail(errs...)
	}
	return a, nil
}

// Validate loads the agent and reports every configuration problem found.
func (l *Loader) Validate(ctx context.Context, name string) error {
	_, err := l.Load(ctx, name)
	return err
}

// ResolvedYAML renders the self-resolved configuration tree.
func (a *Agent) ResolvedYAML() ([]byte, error) {
	return yaml.Marshal(a.Tree)
}
