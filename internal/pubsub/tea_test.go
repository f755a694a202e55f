package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListener_DeliversInOrder(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := Listen(ctx, broker.Subscribe(ctx))
	broker.Publish(testEvent, 1)
	broker.Publish(testEvent, 2)
	broker.Publish(testEvent, 3)

	for want := 1; want <= 3; want++ {
		ev, ok := l.Next()().(Event[int])
		require.True(t, ok)
		require.Equal(t, testEvent, ev.Type)
		require.Equal(t, want, ev.Payload)
	}
}

func TestListener_NilOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Nil(t, Listen(ctx, make(chan Event[string])).Next()())
}

func TestListener_NilOnClosedChannel(t *testing.T) {
	ch := make(chan Event[string])
	close(ch)

	require.Nil(t, Listen(context.Background(), ch).Next()())
}

func TestListener_ReadsLosslessSubscription(t *testing.T) {
	broker := NewLosslessBroker[string]()
	defer broker.Close()

	ch, unsubscribe := broker.SubscribeWithCancel(context.Background())
	defer unsubscribe()
	broker.Publish(testEvent, "hello world")

	ev, ok := Listen(context.Background(), ch).Next()().(Event[string])
	require.True(t, ok)
	require.Equal(t, "hello world", ev.Payload)
}
