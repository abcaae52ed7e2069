package stagecraft_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft"
	"github.com/aretw0/stagecraft/pkg/domain"
)

func shutdown(t *testing.T, app *stagecraft.App) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
}

func TestApp_RunFromDirectory(t *testing.T) {
	dir := t.TempDir()
	agents := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(agents, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(agents, "greet.yaml"), []byte(`
stages:
  hello:
    stage-items:
      say:
        actions:
          - set greeting hello-${context.who}
          - write_file out.txt ${context.greeting}
`), 0644))

	app, err := stagecraft.New(agents, stagecraft.WithWorkspace(dir))
	require.NoError(t, err)
	shutdown(t, app)

	names, err := app.Agents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, names)
	require.NoError(t, app.Validate(context.Background(), "greet"))

	task, err := app.Run(context.Background(), []string{"greet"}, map[string]any{"who": "world"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, task.Status, task.Agents[0].Error)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello-world", string(data))
}

func TestApp_RequiresSource(t *testing.T) {
	_, err := stagecraft.New("")
	assert.Error(t, err)
}

func TestApp_Confirm(t *testing.T) {
	app, err := stagecraft.New("", stagecraft.WithAgents(map[string]string{
		"gated": `
stages:
  release:
    stage-items:
      ask: {actions: ['confirm "Ship it?"']}
`,
	}))
	require.NoError(t, err)
	shutdown(t, app)
	ctx := context.Background()

	task, err := app.Submit(ctx, []string{"gated"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(app.Confirmations().Pending()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, app.Confirm(ctx, task.ID, true))

	done, err := app.Manager().Wait(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, done.Status)
	assert.ErrorIs(t, app.Confirm(ctx, task.ID, true), stagecraft.ErrNothingToConfirm)

	_, err = app.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}
