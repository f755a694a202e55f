// Package app assembles the catalog, hub, tracing, journal and manager
// from a Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/algomgr/internal/api"
	"github.com/zjrosen/algomgr/internal/builtin"
	"github.com/zjrosen/algomgr/internal/catalog"
	"github.com/zjrosen/algomgr/internal/config"
	"github.com/zjrosen/algomgr/internal/journal"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/manager"
	"github.com/zjrosen/algomgr/internal/notify"
	"github.com/zjrosen/algomgr/internal/tracing"
)

// App owns every long-lived service of one algomgr process.
type App struct {
	Config  config.Config
	Catalog *catalog.Catalog
	Hub     *notify.Hub
	Manager *manager.Manager
	Journal *journal.Journal // nil when the journal is disabled

	tracing *tracing.Provider
}

// New validates cfg and wires the services. The built-in algorithms are
// always registered.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cat := catalog.New()
	if err := builtin.Register(cat); err != nil {
		return nil, fmt.Errorf("registering built-in algorithms: %w", err)
	}

	provider, err := tracing.NewProvider(tracingConfig(cfg.Tracing))
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	a := &App{
		Config:  cfg,
		Catalog: cat,
		Hub:     notify.NewHub(),
		tracing: provider,
	}

	opts := []manager.Option{
		manager.WithCapacity(cfg.Algorithms.Retained),
		manager.WithTracer(provider.Tracer()),
	}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, journal.WithCacheTTL(cfg.Journal.CacheTTL))
		if err != nil {
			_ = provider.Shutdown(context.Background())
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		a.Journal = j
		opts = append(opts, manager.WithRunRecorder(j))
	}

	mgr, err := manager.New(cat, a.Hub, opts...)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	a.Manager = mgr

	log.Info(log.CatManager, "Services ready",
		"retained", cfg.Algorithms.Retained,
		"algorithms", len(cat.Keys()),
		"journal", cfg.Journal.Enabled,
		"tracing", provider.Enabled())
	return a, nil
}

func tracingConfig(c config.TracingConfig) tracing.Config {
	return tracing.Config{
		Enabled:      c.Enabled,
		Exporter:     c.Exporter,
		FilePath:     c.FilePath,
		OTLPEndpoint: c.OTLPEndpoint,
		SampleRate:   c.SampleRate,
		ServiceName:  c.ServiceName,
	}
}

// History returns the journal as the API's read side, or nil when the
// journal is disabled.
func (a *App) History() api.History {
	if a.Journal == nil {
		return nil
	}
	return a.Journal
}

// Close flushes traces, closes the journal and the hub.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(ctx))
	}
	if a.Journal != nil {
		errs = append(errs, a.Journal.Close())
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	return errors.Join(errs...)
}
