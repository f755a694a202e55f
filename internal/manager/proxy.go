package manager

import (
	"context"
	"slices"
	"sync"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/log"
)

// ProxyHandle holds an algorithm's configuration and builds a fresh Worker
// for every run, releasing it afterwards. Observers added while no Worker is
// live are buffered and replayed onto the next one.
type ProxyHandle struct {
	lifecycle
	props *algorithm.Properties

	wmu      sync.Mutex
	worker   algorithm.Worker
	pending  []*algorithm.Observer
	executed bool
}

var _ Handle = (*ProxyHandle)(nil)

// newProxyHandle copies metadata and declared properties from an
// initialized template. The template is not retained.
func newProxyHandle(id algorithm.HandleID, template algorithm.Worker, env *execEnv) *ProxyHandle {
	props := algorithm.NewProperties()
	props.CopyFrom(template.Properties())
	return &ProxyHandle{lifecycle: newLifecycle(id, template, env), props: props}
}

func (p *ProxyHandle) Kind() Kind          { return KindProxy }
func (p *ProxyHandle) State() State        { return p.lifecycleState() }
func (p *ProxyHandle) Initialize() error   { return nil }
func (p *ProxyHandle) IsInitialized() bool { return true }

func (p *ProxyHandle) Properties() *algorithm.Properties { return p.props }

// SetProperty sets a value that flows into the next run's Worker.
func (p *ProxyHandle) SetProperty(name, value string) error {
	return p.props.Set(name, value)
}

// Execute runs a fresh Worker on the calling goroutine. Errors are returned
// unchanged; the handle stays usable.
func (p *ProxyHandle) Execute(ctx context.Context) (ok bool, err error) {
	ctx, s, err := p.env.begin(ctx, &p.lifecycle, KindProxy, ModeSync)
	if err != nil {
		return false, err
	}
	defer func() { s.end(ok, err) }()

	w, err := p.materialize()
	if err != nil {
		return false, err
	}
	defer p.release(w)

	return w.Execute(ctx)
}

// ExecuteAsync starts a fresh Worker asynchronously. Every failure
// resolves the Result to false.
func (p *ProxyHandle) ExecuteAsync(ctx context.Context) *algorithm.Result {
	ctx, s, err := p.env.begin(ctx, &p.lifecycle, KindProxy, ModeAsync)
	if err != nil {
		return algorithm.Resolved(false, err)
	}

	w, err := p.materialize()
	if err != nil {
		s.end(false, err)
		return algorithm.Resolved(false, err)
	}
	return settleAsync(w.ExecuteAsync(ctx), s, func() { p.release(w) })
}

// materialize builds the run's Worker: configuration is copied, the worker
// is bound to this handle's id, then buffered observers are replayed.
func (p *ProxyHandle) materialize() (algorithm.Worker, error) {
	w, err := p.env.workers.CreateUnmanaged(p.name, p.version)
	if err != nil {
		log.ErrorErr(log.CatProxy, "Failed to create worker", err, "handle", p.id, "name", p.name)
		return nil, err
	}
	if err := w.CopyPropertiesFrom(p); err != nil {
		return nil, err
	}
	w.Attach(p.id, p.env.hub)

	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.worker = w
	for _, o := range p.pending {
		w.AddObserver(o)
	}
	log.Debug(log.CatProxy, "Worker materialized", "handle", p.id, "name", p.name, "replayed", len(p.pending))
	p.pending = nil
	return w, nil
}

func (p *ProxyHandle) release(w algorithm.Worker) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.worker != w {
		return
	}
	p.executed = w.IsExecuted()
	p.worker = nil
	log.Debug(log.CatProxy, "Worker released", "handle", p.id, "executed", p.executed)
}

func (p *ProxyHandle) live() algorithm.Worker {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.worker
}

// IsExecuted reports the outcome of the last finished run.
func (p *ProxyHandle) IsExecuted() bool {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.executed
}

func (p *ProxyHandle) IsRunning() bool {
	w := p.live()
	return w != nil && w.IsRunning()
}

func (p *ProxyHandle) IsRunningAsync() bool {
	w := p.live()
	return w != nil && w.IsRunningAsync()
}

// Cancel forwards to the live Worker. Without one it does nothing.
func (p *ProxyHandle) Cancel() {
	p.noteCancel()
	if w := p.live(); w != nil {
		w.Cancel()
	}
}

func (p *ProxyHandle) AddObserver(o *algorithm.Observer) {
	if o == nil {
		return
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.worker != nil {
		p.worker.AddObserver(o)
		return
	}
	if !slices.Contains(p.pending, o) {
		p.pending = append(p.pending, o)
	}
}

func (p *ProxyHandle) RemoveObserver(o *algorithm.Observer) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.worker != nil {
		p.worker.RemoveObserver(o)
		return
	}
	p.pending = slices.DeleteFunc(p.pending, func(x *algorithm.Observer) bool { return x == o })
}

// PendingObservers returns how many observers wait for the next run.
func (p *ProxyHandle) PendingObservers() int {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return len(p.pending)
}
