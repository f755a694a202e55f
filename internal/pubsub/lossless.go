package pubsub

import (
	"context"
	"sync"
	"time"
)

// LosslessBroker delivers every published event to every subscriber, in
// publish order. Each subscriber owns an unbounded backlog drained by its own
// goroutine, so Publish never waits on a slow reader.
type LosslessBroker[T any] struct {
	mu     sync.Mutex
	subs   map[*queue[T]]struct{}
	closed bool
}

// NewLosslessBroker creates an empty broker.
func NewLosslessBroker[T any]() *LosslessBroker[T] {
	return &LosslessBroker[T]{subs: make(map[*queue[T]]struct{})}
}

// SubscribeWithCancel returns a channel receiving every event published after
// this call. Cancelling ctx or calling the returned func stops delivery and
// closes the channel; events still queued are discarded. The func is
// idempotent.
func (b *LosslessBroker[T]) SubscribeWithCancel(ctx context.Context) (<-chan Event[T], func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event[T])
		close(ch)
		return ch, func() {}
	}

	q := newQueue[T]()
	b.subs[q] = struct{}{}
	go q.drain()

	stopAfter := context.AfterFunc(ctx, func() { b.remove(q) })
	return q.out, func() {
		stopAfter()
		b.remove(q)
	}
}

func (b *LosslessBroker[T]) remove(q *queue[T]) {
	b.mu.Lock()
	delete(b.subs, q)
	b.mu.Unlock()
	q.stop()
}

// Publish queues an event for every current subscriber.
func (b *LosslessBroker[T]) Publish(eventType EventType, payload T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	ev := Event[T]{Type: eventType, Payload: payload, Timestamp: time.Now()}
	for q := range b.subs {
		q.push(ev)
	}
}

// Close ignores later publishes. Each subscriber still receives its backlog
// before its channel closes, unless it unsubscribes first.
func (b *LosslessBroker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for q := range b.subs {
		q.finish()
	}
	clear(b.subs)
}

// SubscriberCount returns the number of active subscribers.
func (b *LosslessBroker[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type queue[T any] struct {
	mu       sync.Mutex
	pending  []Event[T]
	finished bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
	out  chan Event[T]
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan Event[T]),
	}
}

func (q *queue[T]) push(ev Event[T]) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()
	q.signal()
}

// finish lets drain exit once the backlog is empty.
func (q *queue[T]) finish() {
	q.mu.Lock()
	q.finished = true
	q.mu.Unlock()
	q.signal()
}

// stop makes drain exit now.
func (q *queue[T]) stop() {
	q.once.Do(func() { close(q.done) })
}

func (q *queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue[T]) drain() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			finished := q.finished
			q.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.pending[0]
		q.pending[0] = Event[T]{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}
