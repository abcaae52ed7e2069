package nats_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/pkg/adapters/nats"
	"github.com/aretw0/stagecraft/pkg/domain"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu      sync.Mutex
	msgs    []message
	fail    error
	flushed bool
	drained bool
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.msgs = append(c.msgs, message{subj, data})
	return nil
}

func (c *fakeConn) FlushWithContext(ctx context.Context) error {
	c.flushed = true
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := nats.NewPublisher(conn, nats.WithSubject("ops.stagecraft."))

	ev := &domain.Event{Type: domain.EventTaskStatus, TaskID: "t1", Status: domain.StatusRunning}
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "ops.stagecraft.task_status", conn.msgs[0].subject)

	var got domain.Event
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &got))
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, domain.StatusRunning, got.Status)
}

func TestPublisher_Hooks(t *testing.T) {
	conn := &fakeConn{}
	p := nats.NewPublisher(conn)
	hooks := p.Hooks()
	ctx := context.Background()

	domain.Emit(ctx, hooks.OnStageEnter, &domain.Event{Type: domain.EventStageEnter})
	domain.Emit(ctx, hooks.OnAction, &domain.Event{Type: domain.EventAction})
	domain.Emit(ctx, hooks.OnDecision, &domain.Event{Type: domain.EventDecision})

	require.Len(t, conn.msgs, 3)
	assert.Equal(t, "stagecraft.events.stage_enter", conn.msgs[0].subject)
	assert.Equal(t, "stagecraft.events.decision", conn.msgs[2].subject)

	conn.fail = errors.New("nats: connection closed")
	assert.NotPanics(t, func() {
		domain.Emit(ctx, hooks.OnStageLeave, &domain.Event{Type: domain.EventStageLeave})
	})
	assert.ErrorContains(t, p.Publish(ctx, &domain.Event{Type: domain.EventAction}), "connection closed")

	require.NoError(t, p.Close(ctx))
	assert.True(t, conn.flushed)
	assert.True(t, conn.drained)
}
