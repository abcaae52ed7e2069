package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// ShellOperation runs an ad-hoc command line when inline execution is enabled.
const ShellOperation = "shell"

// EnvPrefix prefixes the environment variables carrying action arguments.
const EnvPrefix = "STAGECRAFT_ARG_"

// Runner is a handler module that executes local processes.
// Operations are the names of allow-listed tools; arguments travel as environment
// variables, never as command flags.
type Runner struct {
	mu          sync.RWMutex
	registry    map[string]RegisteredProcess
	allowInline bool
	baseDir     string
	waitDelay   time.Duration
	logger      *slog.Logger
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(tools map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, tool := range tools {
			r.registry[name] = RegisteredProcess{Command: tool.Command, Args: tool.Args, Env: tool.Environment}
		}
	}
}

// WithInlineExecution enables the shell operation (Dangerous).
func WithInlineExecution(allow bool) RunnerOption {
	return func(r *Runner) {
		r.allowInline = allow
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:  make(map[string]RegisteredProcess),
		waitDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = RegisteredProcess{Command: command, Args: args}
}

// Tools lists the registered tool names.
func (r *Runner) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name implements registry.Module.
func (r *Runner) Name() string {
	return "process"
}

// TryHandle implements registry.Module.
func (r *Runner) TryHandle(ctx context.Context, call ports.Call) (*domain.ActionResult, bool, error) {
	op := call.Action.Operation()

	r.mu.RLock()
	proc, ok := r.registry[op]
	r.mu.RUnlock()

	args := call.Action.Args
	if !ok {
		if op != ShellOperation || !r.allowInline {
			return nil, false, nil
		}
		if len(args) == 0 {
			return nil, true, fmt.Errorf("shell: missing command line")
		}
		proc = RegisteredProcess{Command: "sh", Args: []string{"-c", strings.Join(args, " ")}}
		args = nil
	}

	res, err := r.execute(ctx, call, proc, args)
	return res, true, err
}

func (r *Runner) execute(ctx context.Context, call ports.Call, proc RegisteredProcess, args []string) (*domain.ActionResult, error) {
	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.WaitDelay = r.waitDelay
	cmd.Cancel = func() error {
		return interrupt(cmd)
	}
	cmd.Env = append(cmd.Environ(), environment(call, proc, args)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("Process finished", "command", proc.Command, "duration", time.Since(start), "err", err)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res := domain.NewResult(call.Action, false, strings.TrimSpace(stdout.String()))
			res.Error = fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
			return res, nil
		}
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	return domain.Succeeded(call.Action, decodeOutput(stdout.String())), nil
}

// environment renders arguments as variables: key=value tokens by key, the others by position.
func environment(call ports.Call, proc RegisteredProcess, args []string) []string {
	var env []string
	for k, v := range proc.Env {
		env = append(env, k+"="+v)
	}
	pos := 0
	for _, arg := range args {
		if key, value, ok := strings.Cut(arg, "="); ok && key != "" {
			env = append(env, EnvPrefix+strings.ToUpper(key)+"="+value)
			continue
		}
		pos++
		env = append(env, EnvPrefix+strconv.Itoa(pos)+"="+arg)
	}
	if call.Target != nil && call.Target.Locator != "" {
		env = append(env, "STAGECRAFT_TARGET="+call.Target.Locator)
	}
	if call.Run != nil {
		env = append(env, "STAGECRAFT_RUN_ID="+call.Run.RunID())
	}
	env = append(env,
		"STAGECRAFT_AGENT="+call.Action.Agent,
		"STAGECRAFT_STAGE="+call.Action.Stage,
		"STAGECRAFT_ITEM="+call.Action.Item,
	)
	return env
}

// decodeOutput returns JSON documents decoded and anything else as trimmed text.
func decodeOutput(output string) any {
	trimmed := strings.TrimSpace(output)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
