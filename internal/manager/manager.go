// Package manager owns algorithm handles: it creates them from the catalog,
// retains a bounded number of them and never evicts one that is running.
package manager

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/catalog"
	"github.com/zjrosen/algomgr/internal/config"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/notify"
)

// Option configures a Manager.
type Option func(*Manager)

// WithCapacity sets the retention pool capacity. It is required.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		m.capacity = n
	}
}

// WithTracer wraps every handle run in a span from t.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		m.env.tracer = t
	}
}

// WithRunRecorder reports every finished handle run to r.
func WithRunRecorder(r RunRecorder) Option {
	return func(m *Manager) {
		m.env.recorder = r
	}
}

// CreateOption configures a single Create call.
type CreateOption func(*createOptions)

type createOptions struct {
	proxy bool
	props map[string]string
}

// WithProxy selects a proxy handle (the default) or a direct one.
func WithProxy(proxy bool) CreateOption {
	return func(o *createOptions) {
		o.proxy = proxy
	}
}

// WithProperties sets property values on the new worker before the handle is
// retained. A value the worker rejects fails Create and leaves the pool as it was.
func WithProperties(values map[string]string) CreateOption {
	return func(o *createOptions) {
		o.props = values
	}
}

// Manager is safe for concurrent use.
type Manager struct {
	catalog *catalog.Catalog
	hub     *notify.Hub
	env     *execEnv

	mu       sync.RWMutex
	pool     *retentionPool
	capacity int

	nextID atomic.Uint64
}

// New returns a manager creating handles from cat. Runs publish their
// Starting notification on hub.
func New(cat *catalog.Catalog, hub *notify.Hub, opts ...Option) (*Manager, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: nil catalog", config.ErrInvalidConfig)
	}
	if hub == nil {
		hub = notify.NewHub()
	}

	m := &Manager{
		catalog: cat,
		hub:     hub,
		env:     &execEnv{hub: hub},
		pool:    newRetentionPool(),
	}
	m.env.workers = m
	for _, opt := range opts {
		opt(m)
	}
	if err := config.ValidateCapacity(m.capacity); err != nil {
		return nil, err
	}
	if m.env.tracer == nil {
		m.env.tracer = noop.NewTracerProvider().Tracer("algomgr")
	}

	log.Info(log.CatManager, "Manager created", "capacity", m.capacity)
	return m, nil
}

// Create resolves (name, version) in the catalog, wraps a new worker in a
// handle and retains it. version may be catalog.LatestVersion.
func (m *Manager) Create(name string, version int, opts ...CreateOption) (Handle, error) {
	o := createOptions{proxy: true}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := m.instantiate(name, version, o)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.pool.push(h)
	evicted := m.pool.evict(m.capacity)
	size := m.pool.len()
	m.mu.Unlock()

	handlesCreatedTotal.WithLabelValues(h.Kind().String()).Inc()
	m.noteEvictions(evicted, size)
	log.Debug(log.CatManager, "Handle created",
		"handle", h.ID(), "name", h.Name(), "version", h.Version(), "kind", h.Kind(), "size", size)
	return h, nil
}

// CreateProxy creates a proxy handle for the latest version of name.
func (m *Manager) CreateProxy(name string) (Handle, error) {
	return m.Create(name, catalog.LatestVersion, WithProxy(true))
}

// CreateUnmanaged returns a new initialized worker that the manager does not
// track. It carries handle id 0.
func (m *Manager) CreateUnmanaged(name string, version int) (algorithm.Worker, error) {
	w, err := m.catalog.Create(name, version)
	if err != nil {
		return nil, err
	}
	if err := w.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize %s v%d: %w", w.Name(), w.Version(), err)
	}
	w.Attach(0, m.hub)
	return w, nil
}

func (m *Manager) instantiate(name string, version int, o createOptions) (Handle, error) {
	w, err := m.catalog.Create(name, version)
	if err != nil {
		return nil, err
	}
	if err := w.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize %s v%d: %w", w.Name(), w.Version(), err)
	}
	if len(o.props) > 0 {
		if err := w.Properties().SetAll(o.props); err != nil {
			return nil, err
		}
	}

	id := algorithm.HandleID(m.nextID.Add(1))
	if o.proxy {
		return newProxyHandle(id, w, m.env), nil
	}
	return newDirectHandle(id, w, m.env), nil
}

func (m *Manager) noteEvictions(evicted []Handle, size int) {
	poolSize.Set(float64(size))
	if len(evicted) == 0 {
		return
	}
	evictionsTotal.Add(float64(len(evicted)))
	for _, h := range evicted {
		log.Debug(log.CatManager, "Handle evicted", "handle", h.ID(), "name", h.Name())
	}
}

// GetAlgorithm returns the retained handle with id. Evicted and unknown ids
// report false.
func (m *Manager) GetAlgorithm(id algorithm.HandleID) (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool.get(id)
}

// RunningInstancesOf returns the retained handles of name that are running now.
func (m *Manager) RunningInstancesOf(name string) []Handle {
	var running []Handle
	for _, h := range m.Handles() {
		if h.Name() == name && h.IsRunning() {
			running = append(running, h)
		}
	}
	return running
}

// Handles returns the retained handles, oldest first.
func (m *Manager) Handles() []Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool.snapshot()
}

// Clear drops every retained handle. Runs in flight are not affected.
func (m *Manager) Clear() {
	m.mu.Lock()
	n := m.pool.len()
	m.pool.clear()
	m.mu.Unlock()

	poolSize.Set(0)
	log.Info(log.CatManager, "Pool cleared", "dropped", n)
}

// Size returns the number of retained handles.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool.len()
}

// Capacity returns the current retention capacity.
func (m *Manager) Capacity() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capacity
}

// SetCapacity changes the retention capacity and evicts down to it.
func (m *Manager) SetCapacity(n int) error {
	if err := config.ValidateCapacity(n); err != nil {
		return err
	}

	m.mu.Lock()
	old := m.capacity
	m.capacity = n
	evicted := m.pool.evict(n)
	size := m.pool.len()
	m.mu.Unlock()

	m.noteEvictions(evicted, size)
	log.Info(log.CatManager, "Capacity changed", "from", old, "to", n, "evicted", len(evicted))
	return nil
}

// NamesAndCategories lists every catalog name with its latest category.
func (m *Manager) NamesAndCategories() []catalog.NameCategory {
	return m.catalog.NamesAndCategories()
}

// Catalog returns the catalog handles are created from.
func (m *Manager) Catalog() *catalog.Catalog { return m.catalog }

// Hub returns the hub runs publish on.
func (m *Manager) Hub() *notify.Hub { return m.hub }
