package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Listener feeds one subscription into a Bubble Tea update loop. Re-arm it
// with Next after every event it delivers.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// Listen wraps the subscription channel ch.
func Listen[T any](ctx context.Context, ch <-chan Event[T]) *Listener[T] {
	return &Listener[T]{ctx: ctx, ch: ch}
}

// Next waits for one event and returns it as the message. The message is
// nil once ctx is done or ch is closed, which ends the loop.
func (l *Listener[T]) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-l.ctx.Done():
		case ev, ok := <-l.ch:
			if ok {
				return ev
			}
		}
		return nil
	}
}
