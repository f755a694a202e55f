package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testEvent EventType = "test"

func recv[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for event")
	}
	return Event[T]{}
}

func TestBroker_DeliversToEverySubscriber(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	chans := make([]<-chan Event[int], 3)
	for i := range chans {
		chans[i] = broker.Subscribe(context.Background())
	}
	require.Equal(t, 3, broker.SubscriberCount())

	broker.Publish(testEvent, 42)

	for i, ch := range chans {
		ev := recv(t, ch)
		require.Equal(t, 42, ev.Payload, "subscriber %d", i)
		require.Equal(t, testEvent, ev.Type, "subscriber %d", i)
		require.False(t, ev.Timestamp.IsZero())
	}
}

func TestBroker_ContextCancellationClosesChannel(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_UnsubscribeIsSynchronous(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ch, unsubscribe := broker.SubscribeWithCancel(context.Background())
	unsubscribe()
	require.Equal(t, 0, broker.SubscriberCount())

	broker.Publish(testEvent, "late")
	_, ok := <-ch
	require.False(t, ok, "no event may arrive after unsubscribe")

	unsubscribe() // second call is a no-op
}

func TestBroker_PublishDropsWhenFull(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		broker.Publish(testEvent, 1)
		broker.Publish(testEvent, 2)
		broker.Publish(testEvent, 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Publish blocked")
	}

	require.Equal(t, 1, recv(t, ch).Payload)
	require.Equal(t, uint64(2), broker.Dropped())
}

func TestBroker_CloseClosesSubscribers(t *testing.T) {
	broker := NewBroker[string]()

	ch1 := broker.Subscribe(context.Background())
	ch2, unsubscribe := broker.SubscribeWithCancel(context.Background())

	broker.Close()
	broker.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
	require.Equal(t, 0, broker.SubscriberCount())

	unsubscribe() // must not double-close

	late := broker.Subscribe(context.Background())
	_, ok := <-late
	require.False(t, ok, "subscribing to a closed broker yields a closed channel")

	broker.Publish(testEvent, "ignored")
}

func TestBroker_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	broker := NewBrokerWithBuffer[int](8)
	defer broker.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		ch, unsubscribe := broker.SubscribeWithCancel(context.Background())
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		go func(n int) {
			defer wg.Done()
			broker.Publish(testEvent, n)
			unsubscribe()
		}(i)
	}
	wg.Wait()
	require.Equal(t, 0, broker.SubscriberCount())
}
