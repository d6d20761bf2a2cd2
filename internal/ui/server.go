// Package ui provides the HTTP server for lineage projection and the
// live explorer sessions.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaplineage/internal/explorer"
	"github.com/leapstack-labs/leaplineage/internal/layout"
	"github.com/leapstack-labs/leaplineage/internal/metrics"
	graphFeature "github.com/leapstack-labs/leaplineage/internal/ui/features/graph"
	"github.com/leapstack-labs/leaplineage/internal/ui/notifier"
	"github.com/leapstack-labs/leaplineage/internal/ui/router"
)

// Server is the lineage HTTP server.
type Server struct {
	manager      *explorer.Manager
	sessionStore *sessions.CookieStore
	notifier     *notifier.Notifier
	metrics      *metrics.Registry
	layout       layout.Options
	port         int
	sessionIdle  time.Duration
	logger       *slog.Logger
}

// DefaultSessionIdle is how long an unused explorer session is kept.
const DefaultSessionIdle = 30 * time.Minute

// Config holds configuration for the server.
type Config struct {
	// Fetcher reads lineage for explorer sessions. Without one, sessions
	// cannot load or expand.
	Fetcher explorer.Fetcher
	// Persister writes edits back. Without one, edits stay in memory.
	Persister       explorer.Persister
	Layout          layout.Options
	UpstreamDepth   int
	DownstreamDepth int
	Port            int
	SessionSecret   string
	// SessionIdle is how long an unused explorer session is kept.
	SessionIdle time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Registry
}

// NewServer creates a new server instance.
func NewServer(cfg Config) *Server {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	idle := cfg.SessionIdle
	if idle <= 0 {
		idle = DefaultSessionIdle
	}

	s := &Server{
		sessionStore: sessionStore,
		notifier:     notifier.New(),
		metrics:      cfg.Metrics,
		layout:       cfg.Layout,
		port:         cfg.Port,
		sessionIdle:  idle,
		logger:       logger,
	}
	s.manager = explorer.NewManager(func(id string) explorer.Options {
		return explorer.Options{
			Fetcher:         cfg.Fetcher,
			Persister:       cfg.Persister,
			Layout:          cfg.Layout,
			UpstreamDepth:   cfg.UpstreamDepth,
			DownstreamDepth: cfg.DownstreamDepth,
			Logger:          logger.With("session", id),
			Metrics:         cfg.Metrics,
			OnChange:        func() { s.notifier.Broadcast(id) },
		}
	})
	return s
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	deps := graphFeature.Deps{
		Manager:      s.manager,
		SessionStore: s.sessionStore,
		Notifier:     s.notifier,
		Metrics:      s.metrics,
		Layout:       s.layout,
		Logger:       s.logger,
	}
	if err := router.SetupRoutes(r, deps); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting lineage server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Drop idle explorer sessions
	eg.Go(func() error {
		interval := max(s.sessionIdle/4, time.Second)
		return s.manager.RunSweeper(egctx, interval, s.sessionIdle, func(ids []string) {
			s.logger.Debug("closed idle sessions", "count", len(ids))
		})
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down lineage server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Manager returns the server's explorer sessions.
func (s *Server) Manager() *explorer.Manager {
	return s.manager
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}
