package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/tracing"
)

// Kind distinguishes the two handle implementations.
type Kind int

const (
	// KindDirect handles own one Worker for their whole life.
	KindDirect Kind = iota
	// KindProxy handles build a fresh Worker for every run.
	KindProxy
)

func (k Kind) String() string {
	if k == KindProxy {
		return "proxy"
	}
	return "direct"
}

// State is a handle's run state.
type State int

const (
	StateConfigured State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle is what Manager.Create returns. Callers may keep using a handle
// after the manager has evicted it.
type Handle interface {
	ID() algorithm.HandleID
	Kind() Kind
	Name() string
	Version() int
	Category() string
	Summary() string

	State() State
	LastError() error
	LastRunID() string

	Initialize() error
	IsInitialized() bool

	Execute(ctx context.Context) (bool, error)
	ExecuteAsync(ctx context.Context) *algorithm.Result
	IsExecuted() bool
	IsRunning() bool
	IsRunningAsync() bool
	Cancel()

	AddObserver(o *algorithm.Observer)
	RemoveObserver(o *algorithm.Observer)

	Properties() *algorithm.Properties
	SetProperty(name, value string) error
}

// lifecycle is the identity and run bookkeeping shared by both handle kinds.
type lifecycle struct {
	id       algorithm.HandleID
	name     string
	version  int
	category string
	summary  string
	env      *execEnv

	mu      sync.Mutex
	state   State
	lastErr error
	lastRun string
	active  *runScope
}

func newLifecycle(id algorithm.HandleID, w algorithm.Worker, env *execEnv) lifecycle {
	return lifecycle{
		id:       id,
		name:     w.Name(),
		version:  w.Version(),
		category: w.Category(),
		summary:  w.Summary(),
		env:      env,
	}
}

func (l *lifecycle) ID() algorithm.HandleID { return l.id }
func (l *lifecycle) Name() string           { return l.name }
func (l *lifecycle) Version() int           { return l.version }
func (l *lifecycle) Category() string       { return l.category }
func (l *lifecycle) Summary() string        { return l.summary }

// LastError returns the error of the most recent finished run.
func (l *lifecycle) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// LastRunID returns the id of the most recent run, finished or not.
func (l *lifecycle) LastRunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRun
}

func (l *lifecycle) lifecycleState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *lifecycle) start(s *runScope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != nil {
		return fmt.Errorf("%w: handle %d (%s)", algorithm.ErrAlreadyRunning, l.id, l.name)
	}
	l.active = s
	l.state = StateRunning
	l.lastRun = s.rec.RunID
	return nil
}

func (l *lifecycle) finish(s *runScope, executed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != s {
		return
	}
	l.active = nil
	l.lastErr = err
	if executed {
		l.state = StateCompleted
	} else {
		l.state = StateFailed
	}
}

// noteCancel marks the active run's span.
func (l *lifecycle) noteCancel() {
	l.mu.Lock()
	s := l.active
	l.mu.Unlock()
	if s != nil {
		s.span.AddEvent(tracing.EventCancelRequested)
	}
}
