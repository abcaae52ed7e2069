package condition_test

import (
	"testing"

	"github.com/aretw0/stagecraft/pkg/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	env := condition.Env{
		Context: map[string]any{"enabled": "yes", "count": 2},
		Agent:   "shop",
		Index:   1,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`context.enabled == "yes"`, true},
		{`context.count > 3`, false},
		{`agent == "shop" && index < 2`, true},
		{`"missing" in context`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := condition.Eval(tt.expr, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := condition.Compile(`index + 1`)
	assert.Error(t, err, "non-boolean expressions are rejected")

	_, err = condition.Compile(`unknown_var == 1`)
	assert.Error(t, err)
}
