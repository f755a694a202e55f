package algorithm

import "time"

// NotificationKind identifies an observer notification.
type NotificationKind string

const (
	NotifyStarted  NotificationKind = "started"
	NotifyProgress NotificationKind = "progress"
	NotifyFinished NotificationKind = "finished"
	NotifyError    NotificationKind = "error"
)

// Notification is delivered synchronously to every observer of a running worker.
type Notification struct {
	Kind     NotificationKind
	HandleID HandleID
	Name     string
	Version  int
	RunID    string
	Progress float64
	Message  string
	Err      error
	At       time.Time
}

// Observer receives per-worker notifications. Observers are compared by
// identity, so keep the pointer to remove one later.
type Observer struct {
	fn func(Notification)
}

// NewObserver wraps fn as an Observer.
func NewObserver(fn func(Notification)) *Observer {
	return &Observer{fn: fn}
}

// Notify delivers n. A nil observer or callback ignores it.
func (o *Observer) Notify(n Notification) {
	if o == nil || o.fn == nil {
		return
	}
	o.fn(n)
}
