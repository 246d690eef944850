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

func TestSerializeRoundTrip(t *testing.T) {
	msg := RecomputeWarnings("class|with|pipes")
	got := deserialize(serialize(msg))
	assert.Equal(t, TypeWarningsRecompute, got.Type)
	assert.Equal(t, "class|with|pipes", string(got.Body))

	raw := deserialize("no-separator")
	assert.Empty(t, raw.Type)
	assert.Equal(t, "no-separator", string(raw.Body))
}

func TestInMemoryQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(4)

	require.NoError(t, q.Publish(ctx, RecomputeWarnings("c1")))
	out, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-out:
		assert.Equal(t, "c1", string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), RecomputeWarnings("c1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Publish(ctx, RecomputeWarnings("c2")), context.DeadlineExceeded)
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewRedisQueue(client, "")

	require.NoError(t, q.Publish(ctx, RecomputeWarnings("c1")))
	require.NoError(t, q.Publish(ctx, RecomputeWarnings("c2")))
	n, err := client.LLen(ctx, "attendance:queue").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	out, err := q.Consume(ctx)
	require.NoError(t, err)
	for _, want := range []string{"c1", "c2"} {
		select {
		case msg := <-out:
			assert.Equal(t, TypeWarningsRecompute, msg.Type)
			assert.Equal(t, want, string(msg.Body))
		case <-time.After(2 * time.Second):
			t.Fatalf("message %s not delivered", want)
		}
	}
}
