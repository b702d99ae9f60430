// Package internal holds the threadlinking configuration and the HTTP serve runtime.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/threadlinking/internal/api"
	"github.com/starford/threadlinking/internal/sse"
	"github.com/starford/threadlinking/internal/watch"
)

const (
	analyticsThrottle = 2 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Serve runs the HTTP API until ctx is cancelled. Store changes made by any
// process are pushed to /api/events subscribers.
func Serve(ctx context.Context, opts ...Option) error {
	s := &server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.config == nil {
		return fmt.Errorf("config is required")
	}
	if s.svc == nil {
		return fmt.Errorf("service is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	cfg, logger := s.config, s.logger

	// The home watcher needs the directory before the first write.
	if err := os.MkdirAll(s.svc.Home(), 0o700); err != nil {
		return fmt.Errorf("create home dir: %w", err)
	}

	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.HTTP.Address())
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", ln.Addr().String()),
		slog.String("home", s.svc.Home()),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(analyticsThrottle)
	defer broker.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	r.Mount("/api", api.NewRouter(s.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, logger))

	httpServer := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Store watcher feeding SSE subscribers.
	g.Go(func() error {
		err := watch.WatchHome(gCtx, s.svc.Home(), logger, broker.PublishStoreChange)
		if err != nil {
			logger.Warn("store watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// requestLogger logs each request through logger instead of chi's stdlib logger.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
