// Package settings holds the application settings of the stagecraft binary.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the settings file looked up in the working directory.
const DefaultFile = "stagecraft.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STAGECRAFT_"

// Settings configures the binary. Zero values are replaced by New's defaults.
type Settings struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	AgentsDir string `toml:"agents_dir"`
	OutputDir string `toml:"output_dir"`
	TasksDir  string `toml:"tasks_dir"`
	ToolsFile string `toml:"tools_file"`
	Workspace string `toml:"workspace"`

	Workers         int      `toml:"workers"`
	ContinueOnError bool     `toml:"continue_on_error"`
	ConfirmTimeout  Duration `toml:"confirm_timeout"`
	InlineShell     bool     `toml:"inline_shell"`

	HTTP     HTTP     `toml:"http"`
	Redis    Redis    `toml:"redis"`
	NATS     NATS     `toml:"nats"`
	Security Security `toml:"security"`
}

// Security configures how task records are stored at rest.
type Security struct {
	// EncryptionKey is a base64 AES-256 key. Empty stores tasks in clear.
	EncryptionKey string   `toml:"encryption_key"`
	FallbackKeys  []string `toml:"fallback_keys"`
	// MaskPatterns are regular expressions of keys whose values are masked in stored results.
	MaskPatterns []string `toml:"mask_patterns"`
}

// HTTP configures the control surface.
type HTTP struct {
	Addr string `toml:"addr"`
}

// Redis configures the shared task registry. An empty Addr keeps tasks in memory.
type Redis struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Prefix   string   `toml:"prefix"`
	TTL      Duration `toml:"ttl"`
}

// NATS configures event publishing. An empty URL disables it.
type NATS struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// Duration decodes "5m"-style TOML strings.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// New returns the default settings.
func New() *Settings {
	return &Settings{
		LogLevel:       "info",
		LogFormat:      "text",
		AgentsDir:      "agents",
		OutputDir:      ".stagecraft/runs",
		TasksDir:       ".stagecraft/tasks",
		ToolsFile:      "tools.yaml",
		Workspace:      ".",
		Workers:        4,
		ConfirmTimeout: Duration{5 * time.Minute},
		HTTP:           HTTP{Addr: ":8080"},
		Redis:          Redis{Prefix: "stagecraft:"},
		NATS:           NATS{Subject: "stagecraft.events"},
	}
}

// Load returns the defaults, overlaid by path (if it exists) and then by the environment.
func Load(path string) (*Settings, error) {
	s := New()
	if path != "" {
		if err := s.LoadFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile overlays the TOML file at path.
func (s *Settings) LoadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%s: unknown setting %q", path, undecoded[0].String())
	}
	return nil
}

// ApplyEnv overlays STAGECRAFT_* variables.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("LOG_LEVEL", &s.LogLevel)
	str("LOG_FORMAT", &s.LogFormat)
	str("AGENTS_DIR", &s.AgentsDir)
	str("OUTPUT_DIR", &s.OutputDir)
	str("TASKS_DIR", &s.TasksDir)
	str("TOOLS_FILE", &s.ToolsFile)
	str("WORKSPACE", &s.Workspace)
	str("HTTP_ADDR", &s.HTTP.Addr)
	str("REDIS_ADDR", &s.Redis.Addr)
	str("REDIS_PASSWORD", &s.Redis.Password)
	str("REDIS_PREFIX", &s.Redis.Prefix)
	str("NATS_URL", &s.NATS.URL)
	str("NATS_SUBJECT", &s.NATS.Subject)
	str("ENCRYPTION_KEY", &s.Security.EncryptionKey)

	if v, ok := lookup(EnvPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}
		s.Workers = n
	}
	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		s.Redis.DB = n
	}
	for name, dst := range map[string]*bool{
		"CONTINUE_ON_ERROR": &s.ContinueOnError,
		"INLINE_SHELL":      &s.InlineShell,
	} {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}
	for name, dst := range map[string]*Duration{
		"CONFIRM_TIMEOUT": &s.ConfirmTimeout,
		"REDIS_TTL":       &s.Redis.TTL,
	} {
		if v, ok := lookup(EnvPrefix + name); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
		}
	}
	return s.Validate()
}

// Validate rejects settings the binary cannot run with.
func (s *Settings) Validate() error {
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.AgentsDir == "" {
		return errors.New("agents_dir must not be empty")
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", s.LogFormat)
	}
	return nil
}
