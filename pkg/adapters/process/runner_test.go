//go:build !windows

package process_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/pkg/action"
	"github.com/aretw0/stagecraft/pkg/adapters/process"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/registry"
)

func dispatch(t *testing.T, r *process.Runner, sig string) (*domain.ActionResult, error) {
	t.Helper()
	act, err := action.Parse(sig, action.Position{Agent: "ops", Stage: "deploy", Item: "check"}, nil)
	require.NoError(t, err)
	return registry.NewChain(r).Dispatch(context.Background(), ports.Call{Action: act, Target: &ports.Target{Locator: "#main"}})
}

func TestRunner_RegisteredTools(t *testing.T) {
	r := process.NewRunner()
	r.Register("hello", "echo", "hello")
	r.Register("echo_env", "sh", "-c", `echo "$STAGECRAFT_ARG_MSG $STAGECRAFT_ARG_1 $STAGECRAFT_TARGET $STAGECRAFT_ITEM"`)
	r.Register("json", "sh", "-c", `echo '{"status": "ok", "count": 2}'`)
	r.Register("broken", "sh", "-c", "echo oops >&2; exit 3")

	t.Run("Executes Registered Command", func(t *testing.T) {
		res, err := dispatch(t, r, "hello")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "hello", res.Payload)
	})

	t.Run("Passes Arguments via Env Vars", func(t *testing.T) {
		res, err := dispatch(t, r, `echo_env msg=SecretMessage positional`)
		require.NoError(t, err)
		assert.Equal(t, "SecretMessage positional #main check", res.Payload)
	})

	t.Run("Decodes JSON Output", func(t *testing.T) {
		res, err := dispatch(t, r, "json")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"status": "ok", "count": float64(2)}, res.Payload)
	})

	t.Run("Non-zero Exit Is A Failed Result", func(t *testing.T) {
		res, err := dispatch(t, r, "broken")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "exit status 3")
		assert.Contains(t, res.Error, "oops")
	})

	t.Run("Unregistered Tool Falls Through", func(t *testing.T) {
		_, err := dispatch(t, r, "hacker_script")
		assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	})

	assert.Equal(t, []string{"broken", "echo_env", "hello", "json"}, r.Tools())
}

func TestRunner_InlineShell(t *testing.T) {
	_, err := dispatch(t, process.NewRunner(), `shell "echo hi"`)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation, "shell is disabled by default")

	r := process.NewRunner(process.WithInlineExecution(true), process.WithBaseDir(t.TempDir()))
	res, err := dispatch(t, r, `shell "echo hi && echo there"`)
	require.NoError(t, err)
	assert.Equal(t, "hi\nthere", res.Payload)
}

func TestLoadTools(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STAGECRAFT_TEST_GREETING", "howdy")

	yamlPath := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
tools:
  - name: greet
    command: echo
    args: ["$STAGECRAFT_TEST_GREETING"]
  - command: ignored-without-name
`), 0644))

	tools, err := process.LoadTools(yamlPath)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, []string{"howdy"}, tools["greet"].Args)

	tomlPath := filepath.Join(dir, "tools.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[[tools]]
name = "list"
command = "ls"
args = ["-1"]
`), 0644))
	tools, err = process.LoadTools(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "ls", tools["list"].Command)

	tools, err = process.LoadTools(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, tools)

	r := process.NewRunner(process.WithRegistry(map[string]process.ProcessConfig{"greet": {Command: "echo", Args: []string{"hey"}}}))
	res, err := dispatch(t, r, "greet")
	require.NoError(t, err)
	assert.Equal(t, "hey", res.Payload)
}
