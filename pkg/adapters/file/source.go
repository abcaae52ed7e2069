package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// Source implements ports.ConfigSource over a directory of agent documents.
// An agent named "deploy" lives in deploy.yaml, deploy.yml, deploy.json or deploy.toml.
type Source struct {
	Dir string
}

// NewSource creates a Source reading from dir. An empty dir means "agents".
func NewSource(dir string) *Source {
	if dir == "" {
		dir = "agents"
	}
	return &Source{Dir: dir}
}

var extensions = []string{".yaml", ".yml", ".json", ".toml"}

// Read implements ports.ConfigSource.
func (s *Source) Read(ctx context.Context, agent string) (*ports.Document, error) {
	if agent == "" || strings.ContainsAny(agent, `/\`) || agent == "." || agent == ".." {
		return nil, fmt.Errorf("%w: invalid agent name %q", domain.ErrAgentNotFound, agent)
	}
	for _, ext := range extensions {
		path := filepath.Join(s.Dir, agent+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		format, _ := config.FormatFromExt(ext)
		return &ports.Document{Agent: agent, Format: format, Origin: path, Data: data}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agent)
}

// List implements ports.ConfigSource.
func (s *Source) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if _, ok := config.FormatFromExt(ext); !ok {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
