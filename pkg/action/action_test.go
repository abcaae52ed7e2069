package action_test

import (
	"testing"

	"github.com/aretw0/stagecraft/pkg/action"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"Quoted spans", `first " " $v "#tag"`, []string{"first", " ", "$v", "#tag"}},
		{"Plain", "click  #submit", []string{"click", "#submit"}},
		{"Quoted with spaces", `type "hello world" now`, []string{"type", "hello world", "now"}},
		{"Empty quoted", `set key ""`, []string{"set", "key", ""}},
		{"Empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := action.Tokenize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := action.Tokenize(`type "open`)
	assert.Error(t, err)
}

func TestParse_Negation(t *testing.T) {
	act, err := action.Parse("not X a b", action.Position{Agent: "A"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "not X", act.Name)
	assert.Equal(t, []string{"a", "b"}, act.Args)
	assert.Equal(t, "X", act.Operation())
	assert.True(t, act.Negated())
	assert.Equal(t, "A", act.Agent)
}

func TestParse_None(t *testing.T) {
	act, err := action.Parse(" none ", action.Position{}, nil)
	require.NoError(t, err)
	assert.Same(t, domain.NoopAction, act)
}

func TestParse_ResolvesOnce(t *testing.T) {
	ctx := variables.NewContext(map[string]any{"user": "bob"})
	exp := &variables.Expander{Context: ctx, Self: variables.Self{{"greeting": "hi"}}}

	act, err := action.Parse(`type "${greeting} ${context.user}"`, action.Position{Item: "I"}, exp)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi bob"}, act.Args)

	ctx.Set("user", "alice")
	assert.Equal(t, []string{"hi bob"}, act.Args, "args are fixed at construction")
}

func TestParse_Errors(t *testing.T) {
	exp := &variables.Expander{Context: variables.NewContext(nil)}

	_, err := action.Parse("type ${context.missing}", action.Position{}, exp)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "type ${context.missing}", cfgErr.Source)
	assert.ErrorIs(t, err, domain.ErrUnresolvedVariable)

	_, err = action.Parse("not", action.Position{}, exp)
	assert.ErrorAs(t, err, &cfgErr)

	_, err = action.Parse(`log "unterminated`, action.Position{}, exp)
	assert.ErrorAs(t, err, &cfgErr)
}
