package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/internal/runtime"
	"github.com/aretw0/stagecraft/pkg/adapters/memory"
	"github.com/aretw0/stagecraft/pkg/config"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/modules"
	"github.com/aretw0/stagecraft/pkg/registry"
	"github.com/aretw0/stagecraft/pkg/tasks"
)

var agents = map[string]string{
	"ok": `
stages:
  s:
    stage-items:
      i: {actions: [pass]}
`,
	"broken": `
stages:
  s:
    iteration: {start: 0, step: 0, end: 2}
    stage-items:
      i: {actions: [pass]}
`,
}

func setup(t *testing.T) (*Server, *tasks.Manager) {
	t.Helper()
	loader := config.NewLoader(memory.NewSource(agents))
	engine := runtime.New(loader, registry.NewChain(modules.Core()))
	manager := tasks.NewManager(loader, engine, memory.NewTaskStore())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})
	return NewServer(manager, loader, "test"), manager
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestServer_SubmitAndGet(t *testing.T) {
	s, manager := setup(t)
	ctx := context.Background()

	resp, err := s.handleSubmit(ctx, call(nil), map[string]any{"agents": "ok, ok", "context": `{"who": "me"}`})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.Status)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = manager.Wait(waitCtx, resp.ID)
	require.NoError(t, err)

	res, err := s.handleGet(ctx, call(map[string]any{"id": resp.ID}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	var task domain.Task
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &task))
	assert.Equal(t, domain.StatusSuccess, task.Status)
	assert.Len(t, task.Agents, 2)

	res, err = s.handleList(ctx, call(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", text(t, res))

	res, err = s.handleStop(ctx, call(map[string]any{"id": resp.ID}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestServer_Errors(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	_, err := s.handleSubmit(ctx, call(nil), map[string]any{"agents": " , "})
	assert.ErrorIs(t, err, tasks.ErrNoAgents)

	_, err = s.handleSubmit(ctx, call(nil), map[string]any{"agents": "ok", "context": "{"})
	assert.ErrorContains(t, err, "invalid context")

	res, err := s.handleGet(ctx, call(map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGet(ctx, call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleStop(ctx, call(map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_ValidateAgent(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	res, err := s.handleValidate(ctx, call(map[string]any{"agent": "ok"}))
	require.NoError(t, err)
	var ok ValidateResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &ok))
	assert.True(t, ok.Valid)

	res, err = s.handleValidate(ctx, call(map[string]any{"agent": "broken"}))
	require.NoError(t, err)
	var bad ValidateResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &bad))
	assert.False(t, bad.Valid)
	assert.NotEmpty(t, bad.Errors)

	res, err = s.handleValidate(ctx, call(map[string]any{"agent": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
