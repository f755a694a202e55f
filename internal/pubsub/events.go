// Package pubsub is a generic, non-blocking publish/subscribe broker. The
// starting-notification hub and the log tail are both built on it.
package pubsub

import "time"

// EventType labels a published event. Each broker user declares its own.
type EventType string

// Event is one delivery. Publish stamps Timestamp.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}
