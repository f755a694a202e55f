package algorithm

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/algomgr/internal/log"
)

// Body is the user supplied part of an algorithm.
type Body interface {
	Name() string
	Version() int
	Category() string
	// Declare registers the properties the body reads.
	Declare(p *Properties)
	// Exec performs one run. Long running bodies should call
	// rc.Checkpoint regularly so Cancel can stop them.
	Exec(rc *RunContext) error
}

// Describer is implemented by bodies that carry a one-paragraph summary.
type Describer interface {
	Summary() string
}

// Algorithm adapts a Body to the Worker contract.
type Algorithm struct {
	body  Body
	props *Properties

	mu          sync.RWMutex
	initialized bool
	handleID    HandleID
	publisher   Publisher
	observers   []*Observer
	running     bool
	async       bool
	executed    bool
	cancel      context.CancelFunc
}

var _ Worker = (*Algorithm)(nil)

// New wraps body. The result is uninitialized until Initialize or the first run.
func New(body Body) *Algorithm {
	return &Algorithm{body: body, props: NewProperties()}
}

func (a *Algorithm) Name() string     { return a.body.Name() }
func (a *Algorithm) Version() int     { return a.body.Version() }
func (a *Algorithm) Category() string { return a.body.Category() }

// Summary returns the body's summary, if it has one.
func (a *Algorithm) Summary() string {
	if d, ok := a.body.(Describer); ok {
		return d.Summary()
	}
	return ""
}

// Properties returns the live property set.
func (a *Algorithm) Properties() *Properties { return a.props }

// Initialize declares the body's properties. Repeated calls are no-ops.
func (a *Algorithm) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	a.body.Declare(a.props)
	a.initialized = true
	return nil
}

func (a *Algorithm) IsInitialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initialized
}

func (a *Algorithm) IsExecuted() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.executed
}

func (a *Algorithm) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *Algorithm) IsRunningAsync() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running && a.async
}

// Attach binds the worker to a handle id and a Starting publisher.
func (a *Algorithm) Attach(id HandleID, pub Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handleID = id
	a.publisher = pub
}

// AddObserver registers o. Adding the same observer twice has no effect.
func (a *Algorithm) AddObserver(o *Observer) {
	if o == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !slices.Contains(a.observers, o) {
		a.observers = append(a.observers, o)
	}
}

func (a *Algorithm) RemoveObserver(o *Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = slices.DeleteFunc(a.observers, func(x *Observer) bool { return x == o })
}

// CopyPropertiesFrom copies explicitly set values from src for every
// property this worker declares.
func (a *Algorithm) CopyPropertiesFrom(src Configurable) error {
	if src == nil || src.Properties() == nil {
		return nil
	}
	if err := a.Initialize(); err != nil {
		return err
	}
	a.props.CopyValuesFrom(src.Properties())
	return nil
}

// Cancel requests cooperative cancellation of the current run, if any.
func (a *Algorithm) Cancel() {
	a.mu.RLock()
	cancel := a.cancel
	a.mu.RUnlock()
	if cancel != nil {
		log.Debug(log.CatAlgorithm, "Cancel requested", "name", a.Name(), "handle", a.handleID)
		cancel()
	}
}

// Execute runs the body on the calling goroutine and reports whether it
// completed successfully.
func (a *Algorithm) Execute(ctx context.Context) (bool, error) {
	r, err := a.begin(ctx, false)
	if err != nil {
		return false, err
	}
	return a.finish(r)
}

// ExecuteAsync starts a run on a new goroutine. The worker reports running
// before ExecuteAsync returns.
func (a *Algorithm) ExecuteAsync(ctx context.Context) *Result {
	r, err := a.begin(ctx, true)
	if err != nil {
		return Resolved(false, err)
	}

	res := NewResult()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error(log.CatAlgorithm, "Async run panicked",
					"name", a.Name(), "panic", p, "stack", string(debug.Stack()))
				a.settle(fmt.Errorf("%w: %v", ErrPanicked, p))
				res.Resolve(false, fmt.Errorf("%w: %s: %v", ErrPanicked, a.Name(), p))
			}
		}()
		res.Resolve(a.finish(r))
	}()
	return res
}

type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	info   StartInfo
	pub    Publisher
}

// begin rejects a run before it starts. A rejected run publishes nothing.
func (a *Algorithm) begin(ctx context.Context, async bool) (*run, error) {
	if err := a.Initialize(); err != nil {
		return nil, err
	}
	if err := a.props.Validate(); err != nil {
		return nil, fmt.Errorf("%s v%d: %w", a.Name(), a.Version(), err)
	}

	runID, ok := RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
	}
	runCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, a.Name())
	}
	a.running = true
	a.async = async
	a.executed = false
	a.cancel = cancel

	return &run{
		ctx:    runCtx,
		cancel: cancel,
		pub:    a.publisher,
		info: StartInfo{
			HandleID: a.handleID,
			Name:     a.Name(),
			Version:  a.Version(),
			RunID:    runID,
		},
	}, nil
}

func (a *Algorithm) finish(r *run) (bool, error) {
	defer r.cancel()

	if r.pub != nil {
		r.pub.PublishStarting(r.info)
	}
	a.notify(r.info, Notification{Kind: NotifyStarted})

	start := time.Now()
	err := a.invoke(r)
	a.settle(err)

	if err != nil {
		log.Debug(log.CatAlgorithm, "Run failed", "name", r.info.Name, "run", r.info.RunID, "error", err)
		a.notify(r.info, Notification{Kind: NotifyError, Err: err, Message: err.Error()})
		return false, err
	}
	log.Debug(log.CatAlgorithm, "Run finished", "name", r.info.Name, "run", r.info.RunID, "elapsed", time.Since(start))
	a.notify(r.info, Notification{Kind: NotifyFinished, Progress: 1})
	return true, nil
}

func (a *Algorithm) settle(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.async = false
	a.cancel = nil
	a.executed = err == nil
}

func (a *Algorithm) invoke(r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error(log.CatAlgorithm, "Algorithm body panicked",
				"name", r.info.Name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %s: %v", ErrPanicked, r.info.Name, p)
		}
	}()

	err = a.body.Exec(&RunContext{ctx: r.ctx, props: a.props, algo: a, info: r.info})
	if err != nil && errors.Is(err, context.Canceled) && !errors.Is(err, ErrCancelled) {
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}

func (a *Algorithm) notify(info StartInfo, n Notification) {
	a.mu.RLock()
	observers := slices.Clone(a.observers)
	a.mu.RUnlock()
	if len(observers) == 0 {
		return
	}

	n.HandleID = info.HandleID
	n.Name = info.Name
	n.Version = info.Version
	n.RunID = info.RunID
	n.At = time.Now()

	for _, o := range observers {
		deliver(o, n)
	}
}

func deliver(o *Observer, n Notification) {
	defer func() {
		if p := recover(); p != nil {
			log.Error(log.CatAlgorithm, "Observer panicked", "kind", n.Kind, "panic", p, "stack", string(debug.Stack()))
		}
	}()
	o.Notify(n)
}
