// Package algorithm defines the Worker contract that every runnable
// algorithm satisfies, plus Algorithm, the reference implementation that
// wraps a user supplied Body.
package algorithm

import (
	"context"
	"errors"
)

var (
	// ErrUnknownProperty is returned when setting or reading an undeclared property.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrMissingProperty is returned when a mandatory property has no value at run time.
	ErrMissingProperty = errors.New("missing mandatory property")
	// ErrCancelled is returned by a run that stopped at a cancellation checkpoint.
	ErrCancelled = errors.New("algorithm cancelled")
	// ErrPanicked wraps a panic recovered from an algorithm body.
	ErrPanicked = errors.New("algorithm panicked")
	// ErrAlreadyRunning is returned when a run is started while another is in flight.
	ErrAlreadyRunning = errors.New("algorithm already running")
)

// HandleID identifies a managed handle. Zero means "not managed".
type HandleID uint64

// StartInfo describes a run that is about to begin.
type StartInfo struct {
	HandleID HandleID
	Name     string
	Version  int
	RunID    string
}

// Publisher receives one StartInfo per run, after configuration and observer
// registration and before the body executes.
type Publisher interface {
	PublishStarting(StartInfo)
}

// Configurable is anything that exposes declared properties.
type Configurable interface {
	Properties() *Properties
}

// Worker is the contract a catalog constructor must produce.
type Worker interface {
	Configurable

	Name() string
	Version() int
	Category() string
	Summary() string

	Initialize() error
	IsInitialized() bool

	Execute(ctx context.Context) (bool, error)
	ExecuteAsync(ctx context.Context) *Result
	IsExecuted() bool
	IsRunning() bool
	IsRunningAsync() bool
	Cancel()

	AddObserver(o *Observer)
	RemoveObserver(o *Observer)

	CopyPropertiesFrom(src Configurable) error
	Attach(id HandleID, pub Publisher)
}

type runIDKey struct{}

// WithRunID returns a context carrying the id the next run should use.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id set by WithRunID, if any.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
