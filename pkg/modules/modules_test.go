package modules_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/pkg/action"
	"github.com/aretw0/stagecraft/pkg/adapters/memory"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/modules"
	"github.com/aretw0/stagecraft/pkg/ports"
	"github.com/aretw0/stagecraft/pkg/registry"
	"github.com/aretw0/stagecraft/pkg/variables"
)

type fakeRun struct {
	store   *variables.Context
	results *domain.AgentResults
}

func (f *fakeRun) RunID() string                 { return "run-1" }
func (f *fakeRun) Agent() string                 { return "a" }
func (f *fakeRun) Context() *variables.Context   { return f.store }
func (f *fakeRun) Results() *domain.AgentResults { return f.results }

func newRun(initial map[string]any) *fakeRun {
	return &fakeRun{store: variables.NewContext(initial), results: domain.NewAgentResults()}
}

func call(t *testing.T, d ports.Dispatcher, sig string, run ports.RunState, target *ports.Target) (*domain.ActionResult, error) {
	t.Helper()
	act, err := action.Parse(sig, action.Position{Agent: "a", Stage: "s", Item: "i"}, nil)
	require.NoError(t, err)
	return d.Dispatch(context.Background(), ports.Call{Action: act, Target: target, Run: run})
}

func TestCore_Comparisons(t *testing.T) {
	chain := registry.NewChain(modules.Core())
	run := newRun(nil)

	tests := []struct {
		sig     string
		target  *ports.Target
		success bool
	}{
		{`equals a a`, nil, true},
		{`equals a b`, nil, false},
		{`equals ready`, &ports.Target{Value: "ready"}, true},
		{`contains "hello world" world`, nil, true},
		{`contains abc z`, nil, false},
		{`matches order-42 "order-([0-9]+)"`, nil, true},
		{`matches nothing "[0-9]+"`, nil, false},
		{`pass`, nil, true},
		{`fail "not today"`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			res, err := call(t, chain, tt.sig, run, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
		})
	}

	res, err := call(t, chain, `matches order-42 "order-([0-9]+)"`, run, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", res.Payload)

	res, err = call(t, chain, `fail "not today"`, run, nil)
	require.NoError(t, err)
	assert.Equal(t, "not today", res.Error)
}

func TestCore_SetUnsetAndAssert(t *testing.T) {
	chain := registry.NewChain(modules.Core())
	run := newRun(map[string]any{"count": 3})

	_, err := call(t, chain, `set mode fast`, run, nil)
	require.NoError(t, err)
	v, ok := run.store.Get("mode")
	require.True(t, ok)
	assert.Equal(t, "fast", v)

	res, err := call(t, chain, `assert "context.mode == 'fast' && context.count > 2"`, run, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = call(t, chain, `unset mode`, run, nil)
	require.NoError(t, err)
	_, ok = run.store.Get("mode")
	assert.False(t, ok)

	res, err = call(t, chain, `assert "context.count > 5"`, run, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)

	_, err = call(t, chain, `assert "context.count >"`, run, nil)
	assert.Error(t, err)
}

func TestCore_ArityErrors(t *testing.T) {
	chain := registry.NewChain(modules.Core())
	_, err := call(t, chain, `equals`, newRun(nil), nil)
	assert.Error(t, err)
	_, err = call(t, chain, `wait`, newRun(nil), nil)
	assert.Error(t, err)
	_, err = call(t, chain, `wait soon`, newRun(nil), nil)
	assert.Error(t, err)
}

func TestCore_WaitHonoursContext(t *testing.T) {
	chain := registry.NewChain(modules.Core())
	act, err := action.Parse("wait 1h", action.Position{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = chain.Dispatch(ctx, ports.Call{Action: act, Run: newRun(nil)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCore_ConfirmAndNavigate(t *testing.T) {
	confirmations := memory.NewConfirmations()
	targets := memory.NewTargets(nil)
	chain := registry.NewChain(modules.Core(modules.WithConfirmer(confirmations), modules.WithNavigator(targets)))

	act, err := action.Parse(`confirm "ship it?" 5s`, action.Position{Agent: "a"}, nil)
	require.NoError(t, err)

	done := make(chan *domain.ActionResult, 1)
	go func() {
		res, err := chain.Dispatch(context.Background(), ports.Call{Action: act, Run: newRun(nil)})
		if err == nil {
			done <- res
		}
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := confirmations.Prompt("run-1")
		return ok
	}, time.Second, 5*time.Millisecond)
	prompt, _ := confirmations.Prompt("run-1")
	assert.Equal(t, "ship it?", prompt)
	require.NoError(t, confirmations.Resolve("run-1", true))

	res := <-done
	require.NotNil(t, res)
	assert.True(t, res.Success)

	_, err = call(t, chain, `navigate https://shop.test/cart`, newRun(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/cart", targets.Location("a"))
}

func TestCore_ConfirmUnavailableWithoutConfirmer(t *testing.T) {
	chain := registry.NewChain(modules.Core())
	_, err := call(t, chain, `confirm ok?`, newRun(nil), nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}

func TestFile_ReadWriteExists(t *testing.T) {
	root := t.TempDir()
	chain := registry.NewChain(modules.File(root))
	run := newRun(nil)

	res, err := call(t, chain, `exists notes/today.txt`, run, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)

	_, err = call(t, chain, `write_file notes/today.txt "all good"`, run, nil)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "notes", "today.txt"))
	require.NoError(t, err)
	assert.Equal(t, "all good", string(data))

	res, err = call(t, chain, `read_file notes/today.txt`, run, nil)
	require.NoError(t, err)
	assert.Equal(t, "all good", res.Payload)

	res, err = call(t, chain, `exists notes/today.txt`, run, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = call(t, chain, `read_file ../outside.txt`, run, nil)
	assert.Error(t, err)
}
