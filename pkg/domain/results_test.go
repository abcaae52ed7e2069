package domain_test

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"testing"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(success ...bool) domain.ActionResults {
	var out domain.ActionResults
	for i, s := range success {
		act := &domain.Action{Name: "op", Args: []string{string(rune('a' + i))}}
		out = append(out, domain.NewResult(act, s, i))
	}
	return out
}

func TestContainer_SetOnce(t *testing.T) {
	c := domain.NewElementResults()

	require.NoError(t, c.Set("user", results(true)))
	err := c.Set("user", results(true))
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.Equal(t, []string{"user"}, c.Keys())
}

func TestContainer_Remove(t *testing.T) {
	c := domain.NewElementResults()
	require.NoError(t, c.Set("a", results(true)))
	require.NoError(t, c.Set("b", results(false)))

	require.NoError(t, c.Remove("b"))
	require.NoError(t, c.Remove("missing"))
	assert.Equal(t, []string{"a"}, c.Keys())
	assert.True(t, c.IsSuccessful())
	require.NoError(t, c.Set("b", results(true)), "a removed key can be set again")

	c.Close()
	assert.ErrorIs(t, c.Remove("a"), domain.ErrContainerClosed)
}

func TestContainer_CloseCascades(t *testing.T) {
	agent := domain.NewAgentResults()
	stages := domain.NewStageResults()
	elements := domain.NewElementResults()

	require.NoError(t, elements.Set("user", results(true)))
	require.NoError(t, stages.Set("login", elements))
	require.NoError(t, agent.Set("shop", stages))

	agent.Close()

	assert.True(t, agent.Closed())
	assert.True(t, stages.Closed())
	assert.True(t, elements.Closed())
	assert.ErrorIs(t, agent.Set("other", domain.NewStageResults()), domain.ErrContainerClosed)
	assert.ErrorIs(t, elements.Set("pass", results(true)), domain.ErrContainerClosed)
}

func TestContainer_Success(t *testing.T) {
	t.Run("Empty is never successful", func(t *testing.T) {
		assert.False(t, domain.NewElementResults().IsSuccessful())
		assert.False(t, domain.NewAgentResults().IsSuccessful())
		assert.False(t, domain.ActionResults{}.IsSuccessful())
	})

	t.Run("One failing entry fails the container", func(t *testing.T) {
		c := domain.NewElementResults()
		require.NoError(t, c.Set("a", results(true, true)))
		assert.True(t, c.IsSuccessful())
		require.NoError(t, c.Set("b", results(true, false)))
		assert.False(t, c.IsSuccessful())
		assert.Equal(t, []string{"b"}, c.Failing())
	})

	t.Run("Superseded entries do not count", func(t *testing.T) {
		c := domain.NewElementResults()
		require.NoError(t, c.Set("a", results(false)))
		require.NoError(t, c.Supersede("a"))
		assert.False(t, c.IsSuccessful(), "only superseded entries means empty")
		require.NoError(t, c.Set(domain.AttemptKey("a", 2), results(true)))
		assert.True(t, c.IsSuccessful())
		assert.True(t, c.Superseded("a"))
	})

	t.Run("Nested failure propagates", func(t *testing.T) {
		stages := domain.NewStageResults()
		elements := domain.NewElementResults()
		require.NoError(t, elements.Set("x", results(false)))
		require.NoError(t, stages.Set("s", elements))
		assert.False(t, stages.IsSuccessful())
	})
}

type continuePolicy map[string]bool

func (p continuePolicy) ContinuesOnError(stage, item string) bool {
	return p[stage+"/"+item]
}

func TestIsPathSuccessful(t *testing.T) {
	stage := domain.NewName("login")
	c := domain.NewElementResults()
	require.NoError(t, c.Set("ok", results(true)))
	require.NoError(t, c.Set("optional", results(false)))
	require.NoError(t, c.Set("optional.onerror#0", results(true)))

	policy := continuePolicy{"login/optional": true}

	assert.True(t, domain.IsPathSuccessful(c, domain.StagePath(stage), policy))
	assert.False(t, domain.IsPathSuccessful(c, domain.ItemPath(stage, domain.NewName("optional")), policy))
	assert.True(t, domain.IsPathSuccessful(c, domain.ItemPath(stage, domain.NewName("ok")), policy))

	require.NoError(t, c.Set("mandatory", results(false)))
	assert.False(t, domain.IsPathSuccessful(c, domain.StagePath(stage), policy))

	// The ignored failure is still recorded.
	assert.ElementsMatch(t, []string{"optional", "mandatory"}, c.Failing())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "user", domain.AttemptKey("user", 1))
	assert.Equal(t, "user@3", domain.AttemptKey("user", 3))
	assert.Equal(t, "user@2.onerror#1", domain.EventKey("user@2", "onerror", 1))
	assert.Equal(t, "onstart#0", domain.EventKey("", "onstart", 0))

	assert.Equal(t, "user", domain.KeyOwner("user"))
	assert.Equal(t, "user", domain.KeyOwner("user@2"))
	assert.Equal(t, "user", domain.KeyOwner("user@2.onerror#1"))
	assert.Equal(t, "", domain.KeyOwner("onstart#0"))

	c := domain.NewElementResults()
	_, ok := domain.LatestAttempt(c, "user")
	assert.False(t, ok)
	require.NoError(t, c.Set("user", results(false)))
	require.NoError(t, c.Set("user@2", results(false)))
	latest, ok := domain.LatestAttempt(c, "user")
	assert.True(t, ok)
	assert.Equal(t, "user@2", latest)
}

func buildTree(t *testing.T) *domain.AgentResults {
	t.Helper()
	agent := domain.NewAgentResults()
	stages := domain.NewStageResults()
	elements := domain.NewElementResults()
	require.NoError(t, elements.Set("user", results(true, false)))
	require.NoError(t, elements.Supersede("user"))
	require.NoError(t, elements.Set("user@2", results(true)))
	require.NoError(t, stages.Set("login", elements))
	require.NoError(t, agent.Set("shop", stages))
	agent.Close()
	return agent
}

func TestContainer_Gob(t *testing.T) {
	agent := buildTree(t)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(agent))

	decoded := domain.NewAgentResults()
	require.NoError(t, gob.NewDecoder(&buf).Decode(decoded))

	assert.True(t, decoded.Closed())
	assert.Equal(t, agent.IsSuccessful(), decoded.IsSuccessful())

	stages, ok := decoded.Get("shop")
	require.True(t, ok)
	elements, ok := stages.Get("login")
	require.True(t, ok)
	assert.Equal(t, []string{"user", "user@2"}, elements.Keys())
	assert.True(t, elements.Superseded("user"))
	first, _ := elements.Get("user")
	require.Len(t, first, 2)
	assert.Equal(t, "op", first[0].Action.Name)
	assert.False(t, first[1].Success)
}

func TestContainer_JSON(t *testing.T) {
	agent := buildTree(t)

	data, err := json.Marshal(agent)
	require.NoError(t, err)

	decoded := domain.NewAgentResults()
	require.NoError(t, json.Unmarshal(data, decoded))

	stages, ok := decoded.Get("shop")
	require.True(t, ok)
	elements, ok := stages.Get("login")
	require.True(t, ok)
	assert.Equal(t, []string{"user", "user@2"}, elements.Keys())
	assert.True(t, decoded.IsSuccessful())
}
