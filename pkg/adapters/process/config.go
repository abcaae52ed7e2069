package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ProcessConfig describes one allow-listed tool.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name" toml:"name"`
	Command     string            `yaml:"command" json:"command" toml:"command"`
	Args        []string          `yaml:"args" json:"args" toml:"args"`
	Environment map[string]string `yaml:"env" json:"env" toml:"env"`
	Description string            `yaml:"description" json:"description" toml:"description"`
}

// ConfigFile is the structure of a tools file.
type ConfigFile struct {
	Tools []ProcessConfig `yaml:"tools" json:"tools" toml:"tools"`
}

// LoadTools reads a tools file (YAML, JSON or TOML) and returns the tools by name.
// A missing file yields no tools. Environment references in commands and arguments are expanded.
func LoadTools(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".toml":
		_, err = toml.Decode(string(data), &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	tools := make(map[string]ProcessConfig)
	for _, tool := range cfg.Tools {
		if tool.Name == "" {
			continue
		}
		if tool.Command == "" {
			return nil, fmt.Errorf("tool %q has no command", tool.Name)
		}
		tool.Command = os.ExpandEnv(tool.Command)
		for i, arg := range tool.Args {
			tool.Args[i] = os.ExpandEnv(arg)
		}
		tools[tool.Name] = tool
	}
	return tools, nil
}
