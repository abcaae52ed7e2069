package tasks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/pkg/adapters/memory"
	"github.com/aretw0/stagecraft/pkg/ports"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nil, nil, memory.NewTaskStore())
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("task-%d", i)
		_ = mgr.WithLock(ctx, id, func(ctx context.Context) error { return nil })
	}

	// Every entry must be released once its last holder is done.
	assert.Empty(t, mgr.locks, "locks leaked after WithLock returned")
}

func TestManager_WithLockSerializes(t *testing.T) {
	mgr := NewManager(nil, nil, memory.NewTaskStore())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, "same", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return func(ctx context.Context) error { return nil }, nil
}

func TestManager_WithLockUsesDistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	mgr := NewManager(nil, nil, memory.NewTaskStore(), WithLocker(locker))

	require.NoError(t, mgr.WithLock(context.Background(), "abc", func(ctx context.Context) error { return nil }))
	assert.Equal(t, []string{"task:abc"}, locker.keys)
}
