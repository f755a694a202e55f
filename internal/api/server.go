// Package api serves the manager over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zjrosen/algomgr/internal/journal"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/manager"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// History is the read side of the run journal.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	ForHandle(ctx context.Context, id uint64) ([]journal.Entry, error)
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router  *chi.Mux
	mgr     *manager.Manager
	history History
	addr    string
}

// Config holds server options.
type Config struct {
	Addr        string
	CORSOrigins []string
}

// NewServer creates and configures a new HTTP server. history may be nil when
// the journal is disabled.
func NewServer(cfg Config, mgr *manager.Manager, history History) *Server {
	srv := &Server{
		router:  chi.NewRouter(),
		mgr:     mgr,
		history: history,
		addr:    cfg.Addr,
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/algorithms", s.handleListAlgorithms)
	s.router.Get("/v1/running", s.handleRunning)
	s.router.Get("/v1/runs", s.handleListRuns)

	s.router.Route("/v1/handles", func(r chi.Router) {
		r.Post("/", s.handleCreateHandle)
		r.Get("/", s.handleListHandles)
		r.Delete("/", s.handleClearHandles)
		r.Get("/{id}", s.handleGetHandle)
		r.Get("/{id}/runs", s.handleHandleRuns)
		r.Post("/{id}/execute", s.handleExecute)
		r.Post("/{id}/cancel", s.handleCancel)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(log.CatAPI, "Server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info(log.CatAPI, "Shutting down", "reason", context.Cause(ctx))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info(log.CatAPI, "Server stopped")
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug(log.CatAPI, "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
