// Package notify fans out "algorithm starting" notifications to any number
// of subscribers.
package notify

import (
	"context"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/pubsub"
)

// StartingEvent is the event type of every Starting notification.
const StartingEvent pubsub.EventType = "starting"

// Starting is published once per run, before the algorithm body starts.
type Starting = algorithm.StartInfo

// Event is what subscribers receive.
type Event = pubsub.Event[Starting]

// Hub is safe for concurrent use. Every subscriber receives every Starting
// event published while it is subscribed, in order. PublishStarting never
// waits on a reader; a subscriber that falls behind accumulates a backlog.
type Hub struct {
	broker *pubsub.LosslessBroker[Starting]
}

var _ algorithm.Publisher = (*Hub)(nil)

// NewHub returns a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{broker: pubsub.NewLosslessBroker[Starting]()}
}

// Subscribe registers a subscriber until ctx is cancelled or the returned
// func is called.
func (h *Hub) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch, unsubscribe := h.broker.SubscribeWithCancel(ctx)
	log.Debug(log.CatHub, "Subscriber added", "subscribers", h.broker.SubscriberCount())
	return ch, unsubscribe
}

// PublishStarting delivers ev to every current subscriber.
func (h *Hub) PublishStarting(ev Starting) {
	h.broker.Publish(StartingEvent, ev)
	log.Debug(log.CatHub, "Published starting", "handle", ev.HandleID, "name", ev.Name, "version", ev.Version, "run", ev.RunID)
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	return h.broker.SubscriberCount()
}

// Close ignores later publishes. Subscribers still receive what was already
// published before their channels close.
func (h *Hub) Close() {
	h.broker.Close()
}
