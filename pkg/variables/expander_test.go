package variables_test

import (
	"testing"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentConfig() map[string]any {
	return map[string]any{
		"name":  "shop",
		"owner": "ops",
		"stages": map[string]any{
			"login": map[string]any{
				"location": "https://shop.test/login",
				"stage-items": map[string]any{
					"user": map[string]any{
						"value": "bob",
						"tags":  []any{"a", "b", "c"},
					},
				},
			},
		},
	}
}

func tree(t *testing.T) *domain.AgentResults {
	t.Helper()
	elements := domain.NewElementResults()
	act := &domain.Action{Name: "read"}
	require.NoError(t, elements.Set("I", domain.ActionResults{
		domain.Succeeded(act, "zero"),
		domain.Succeeded(act, "one"),
	}))
	stages := domain.NewStageResults()
	require.NoError(t, stages.Set("S", elements))
	agent := domain.NewAgentResults()
	require.NoError(t, agent.Set("A", stages))
	return agent
}

func TestExpand_Self(t *testing.T) {
	cfg := agentConfig()
	login := cfg["stages"].(map[string]any)["login"].(map[string]any)
	user := login["stage-items"].(map[string]any)["user"].(map[string]any)

	e := &variables.Expander{Self: variables.Self{user, login, cfg}}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Bare", "hello $value", "hello bob"},
		{"Braced", "hello ${value}!", "hello bob!"},
		{"Stage field from item", "go to ${location}", "go to https://shop.test/login"},
		{"Structural keys skipped", "${login.user.value}", "bob"},
		{"Agent field", "$owner", "ops"},
		{"Index", "${tags[0]}", "a"},
		{"Negative index", "${tags[-2]}", "b"},
		{"Omitted index takes last", "${tags}", "c"},
		{"Unknown left alone", "keep ${nothing}", "keep ${nothing}"},
		{"Runtime left alone", "${results.me[0]} ${context.x}", "${results.me[0]} ${context.x}"},
		{"Dollar amount untouched", "costs $5", "costs $5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Expand(tt.in, variables.Tolerant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand_Modes(t *testing.T) {
	e := &variables.Expander{
		Self:    variables.Self{{"value": "bob"}},
		Context: variables.NewContext(nil),
		Results: variables.Results{},
	}

	_, err := e.Expand("${missing}", variables.Validate)
	assert.ErrorIs(t, err, domain.ErrUnresolvedVariable)

	got, err := e.Expand("${context.later} $value", variables.Validate)
	require.NoError(t, err)
	assert.Equal(t, "${context.later} bob", got)

	_, err = e.Expand("${context.later}", variables.Strict)
	assert.ErrorIs(t, err, domain.ErrUnresolvedVariable)
}

func TestExpand_Context(t *testing.T) {
	ctx := variables.NewContext(map[string]any{"page": 2})
	ctx.Set("user", map[string]any{"name": "alice", "ids": []any{10, 20}})

	e := &variables.Expander{Context: ctx}

	got, err := e.Expand("${context.user.name} on page $context.page, id ${context.user.ids[0]}", variables.Strict)
	require.NoError(t, err)
	assert.Equal(t, "alice on page 2, id 10", got)

	ctx.Delete("page")
	_, err = e.Expand("$context.page", variables.Strict)
	assert.ErrorIs(t, err, domain.ErrUnresolvedVariable)
}

func TestExpand_ResultsMe(t *testing.T) {
	e := &variables.Expander{
		Results: variables.Results{Tree: tree(t)},
		Here:    variables.Here{Agent: "A", Stage: "S", Item: "I"},
	}

	viaMe, err := e.Expand("${results.me[1]}", variables.Strict)
	require.NoError(t, err)
	explicit, err := e.Expand("${results.A.S.I[1]}", variables.Strict)
	require.NoError(t, err)

	assert.Equal(t, explicit, viaMe)
	assert.Equal(t, "one", viaMe)

	last, err := e.Expand("${results.A.S.I}", variables.Strict)
	require.NoError(t, err)
	assert.Equal(t, "one", last)

	_, err = e.Expand("${results.A.S}", variables.Strict)
	assert.Error(t, err)
}

func TestExpand_PendingEntry(t *testing.T) {
	act := &domain.Action{Name: "read"}
	pending := domain.ActionResults{domain.Succeeded(act, "fresh")}
	here := variables.Here{Agent: "A", Stage: "S", Item: "J"}
	e := &variables.Expander{
		Results: variables.Pending{Scope: variables.Results{Tree: tree(t)}, At: here, Results: &pending},
		Here:    here,
	}

	got, err := e.Expand("${results.me[0]}", variables.Strict)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)

	pending = append(pending, domain.Succeeded(act, "later"))
	got, err = e.Expand("${results.me}", variables.Strict)
	require.NoError(t, err)
	assert.Equal(t, "later", got, "appended results are visible")

	got, err = e.Expand("${results.A.S.I[0]}", variables.Strict)
	require.NoError(t, err)
	assert.Equal(t, "zero", got, "other entries fall through to the tree")
}

func TestExpand_NoReexpansion(t *testing.T) {
	ctx := variables.NewContext(map[string]any{"a": "${context.b}", "b": "nope"})
	e := &variables.Expander{Context: ctx}

	got, err := e.Expand("${context.a}", variables.Strict)
	require.NoError(t, err)
	assert.Equal(t, "${context.b}", got)
}

func TestExpand_IndexErrors(t *testing.T) {
	e := &variables.Expander{Self: variables.Self{{"name": "x", "list": []any{}}}}

	_, err := e.Expand("${name[0]}", variables.Strict)
	assert.Error(t, err)

	_, err = e.Expand("${list}", variables.Strict)
	assert.Error(t, err)
}

func TestReferences(t *testing.T) {
	refs := variables.References("type ${results.me[1]} then $value and ${context.a.b}")
	require.Len(t, refs, 3)

	assert.Equal(t, variables.ScopeResults, refs[0].Scope)
	assert.Equal(t, []string{"me"}, refs[0].Path)
	require.NotNil(t, refs[0].Index)
	assert.Equal(t, 1, *refs[0].Index)

	assert.Equal(t, variables.ScopeSelf, refs[1].Scope)
	assert.Nil(t, refs[1].Index)
	assert.False(t, refs[1].Runtime())

	assert.Equal(t, []string{"a", "b"}, refs[2].Path)
	assert.True(t, refs[2].Runtime())

	_, err := variables.ParseReference("${results}")
	assert.Error(t, err)
}
