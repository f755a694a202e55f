package manager

import (
	"context"

	"github.com/zjrosen/algomgr/internal/algorithm"
)

// DirectHandle wraps a single Worker that lives as long as the handle.
type DirectHandle struct {
	lifecycle
	worker algorithm.Worker
}

var _ Handle = (*DirectHandle)(nil)

func newDirectHandle(id algorithm.HandleID, w algorithm.Worker, env *execEnv) *DirectHandle {
	w.Attach(id, env.hub)
	return &DirectHandle{lifecycle: newLifecycle(id, w, env), worker: w}
}

func (h *DirectHandle) Kind() Kind { return KindDirect }

// Worker returns the wrapped worker.
func (h *DirectHandle) Worker() algorithm.Worker { return h.worker }

// State reports StateRunning whenever the worker does, even for runs not
// started through this handle.
func (h *DirectHandle) State() State {
	if h.worker.IsRunning() {
		return StateRunning
	}
	return h.lifecycleState()
}

func (h *DirectHandle) Initialize() error   { return h.worker.Initialize() }
func (h *DirectHandle) IsInitialized() bool { return h.worker.IsInitialized() }

func (h *DirectHandle) Execute(ctx context.Context) (ok bool, err error) {
	ctx, s, err := h.env.begin(ctx, &h.lifecycle, KindDirect, ModeSync)
	if err != nil {
		return false, err
	}
	defer func() { s.end(ok, err) }()

	return h.worker.Execute(ctx)
}

func (h *DirectHandle) ExecuteAsync(ctx context.Context) *algorithm.Result {
	ctx, s, err := h.env.begin(ctx, &h.lifecycle, KindDirect, ModeAsync)
	if err != nil {
		return algorithm.Resolved(false, err)
	}
	return settleAsync(h.worker.ExecuteAsync(ctx), s, nil)
}

func (h *DirectHandle) IsExecuted() bool     { return h.worker.IsExecuted() }
func (h *DirectHandle) IsRunning() bool      { return h.worker.IsRunning() }
func (h *DirectHandle) IsRunningAsync() bool { return h.worker.IsRunningAsync() }

func (h *DirectHandle) Cancel() {
	h.noteCancel()
	h.worker.Cancel()
}

func (h *DirectHandle) AddObserver(o *algorithm.Observer)    { h.worker.AddObserver(o) }
func (h *DirectHandle) RemoveObserver(o *algorithm.Observer) { h.worker.RemoveObserver(o) }

func (h *DirectHandle) Properties() *algorithm.Properties { return h.worker.Properties() }

func (h *DirectHandle) SetProperty(name, value string) error {
	return h.worker.Properties().Set(name, value)
}
