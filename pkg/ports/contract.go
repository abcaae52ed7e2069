package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTaskStoreContract verifies that a TaskStore implementation honours the interface contract.
func RunTaskStoreContract(t *testing.T, store TaskStore) {
	ctx := context.Background()
	taskID := "contract-task-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		task := domain.NewTask(taskID, []string{"shop", "auth"})
		task.Agents[0].Status = domain.StatusSuccess
		task.Agents[1].Error = "boom"
		task.Refresh()

		require.NoError(t, store.Save(ctx, task), "Save should not return error")

		loaded, err := store.Load(ctx, taskID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, task.ID, loaded.ID)
		assert.Equal(t, task.Status, loaded.Status)
		require.Len(t, loaded.Agents, 2)
		assert.Equal(t, domain.StatusSuccess, loaded.Agents[0].Status)
		assert.Equal(t, "boom", loaded.Agents[1].Error)
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, taskID)
		require.NoError(t, err)
		loaded.Agents[0].Status = domain.StatusFailure

		again, err := store.Load(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, again.Agents[0].Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+taskID)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("List", func(t *testing.T) {
		other := taskID + "-2"
		require.NoError(t, store.Save(ctx, domain.NewTask(other, []string{"x"})))
		defer func() { _ = store.Delete(ctx, other) }()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, taskID)
		assert.Contains(t, ids, other)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, taskID), "Delete should not return error")

		_, err := store.Load(ctx, taskID)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound, "Load after Delete should return ErrTaskNotFound")
	})
}
