package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/stagecraft/pkg/domain"
)

func TestTask_Refresh(t *testing.T) {
	task := domain.NewTask("t", []string{"a", "b"})
	assert.Equal(t, domain.StatusPending, task.Status)
	assert.Nil(t, task.Current())

	task.Agents[0].Status = domain.StatusRunning
	task.Refresh()
	assert.Equal(t, domain.StatusRunning, task.Status)
	assert.Equal(t, "a", task.Current().Agent)
	assert.False(t, task.Done())

	task.Agents[0].Status = domain.StatusSuccess
	task.Agents[1].Status = domain.StatusSuccess
	task.Refresh()
	assert.Equal(t, domain.StatusSuccess, task.Status)
	assert.True(t, task.Done())

	task.Agents[1].Status = domain.StatusStopped
	task.Refresh()
	assert.Equal(t, domain.StatusFailure, task.Status)
	assert.Same(t, task.Agents[1], task.Agent("b"))
	assert.Nil(t, task.Agent("c"))
	assert.Equal(t, []string{"a", "b"}, task.AgentNames())
}
