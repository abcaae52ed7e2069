package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// Source implements ports.ConfigSource over in-memory documents.
type Source struct {
	mu   sync.RWMutex
	docs map[string]ports.Document
}

// NewSource creates a source of YAML documents keyed by agent name.
func NewSource(yamlDocs map[string]string) *Source {
	s := &Source{docs: make(map[string]ports.Document)}
	for agent, data := range yamlDocs {
		s.Put(agent, "yaml", []byte(data))
	}
	return s
}

// Put adds or replaces a document.
func (s *Source) Put(agent, format string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[agent] = ports.Document{
		Agent:  agent,
		Format: format,
		Origin: fmt.Sprintf("memory:%s", agent),
		Data:   append([]byte(nil), data...),
	}
}

// Read implements ports.ConfigSource.
func (s *Source) Read(ctx context.Context, agent string) (*ports.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[agent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agent)
	}
	return &doc, nil
}

// List implements ports.ConfigSource.
func (s *Source) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.docs))
	for k := range s.docs {
		names = append(names, k)
	}
	slices.Sort(names)
	return names, nil
}
