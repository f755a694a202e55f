package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 64

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and Dropped counts it.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[*subscriber[T]]struct{}
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

type subscriber[T any] struct {
	ch        chan Event[T]
	stopAfter func() bool // detaches the context.AfterFunc
}

// NewBroker creates a broker with the default per-subscriber buffer (64).
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a broker whose subscribers buffer size events.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return &Broker[T]{
		subs:   make(map[*subscriber[T]]struct{}),
		buffer: max(size, 1),
	}
}

// Subscribe returns a channel that receives events until ctx is cancelled
// or the broker is closed, at which point it is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch, _ := b.SubscribeWithCancel(ctx)
	return ch
}

// SubscribeWithCancel is Subscribe plus an unsubscribe func. Once the func
// returns, no further events are delivered and the channel is closed.
// Calling it more than once is safe.
func (b *Broker[T]) SubscribeWithCancel(ctx context.Context) (<-chan Event[T], func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event[T])
		close(ch)
		return ch, func() {}
	}

	s := &subscriber[T]{ch: make(chan Event[T], b.buffer)}
	b.subs[s] = struct{}{}
	s.stopAfter = context.AfterFunc(ctx, func() { b.remove(s) })

	return s.ch, func() {
		s.stopAfter()
		b.remove(s)
	}
}

// remove detaches s and closes its channel unless Close already did.
func (b *Broker[T]) remove(s *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Publish sends an event to every subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	ev := Event[T]{Type: eventType, Payload: payload, Timestamp: time.Now()}
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored and
// later subscriptions receive an already closed channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.stopAfter()
		close(s.ch)
	}
	clear(b.subs)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
