package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestInMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(4)

	msg := NewMessage("attendance.marked", []byte(`{"key":"a"}`))
	require.NoError(t, q.Publish(ctx, msg))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg, receive(t, ch))

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestInMemoryPublishFull(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), NewMessage("x", nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, NewMessage("x", nil)), context.DeadlineExceeded)
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := NewRedisQueue(client, "test:events", nil)
	q.wait = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := NewMessage("attendance.marked", []byte(`{"key":"a"}`))
	second := NewMessage("attendance.marked", []byte(`{"key":"b"}`))
	require.NoError(t, q.Publish(ctx, first))
	_, err := mr.Lpush("test:events", "not json")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, second))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, receive(t, ch))
	assert.Equal(t, second, receive(t, ch))

	cancel()
	for range ch {
	}
}
