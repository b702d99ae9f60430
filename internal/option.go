package internal

import (
	"log/slog"
	"net"

	"github.com/starford/threadlinking/internal/threadservice"
)

// Option is a functional option for configuring the server.
type Option func(*server)

type server struct {
	config   *Config
	svc      *threadservice.Service
	logger   *slog.Logger
	listener net.Listener
}

// WithConfig sets the server configuration.
func WithConfig(cfg *Config) Option {
	return func(s *server) {
		s.config = cfg
	}
}

// WithService sets the thread service the API operates on.
func WithService(svc *threadservice.Service) Option {
	return func(s *server) {
		s.svc = svc
	}
}

// WithLogger sets the server logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *server) {
		s.logger = logger
	}
}

// WithListener serves on ln instead of listening on the configured port.
func WithListener(ln net.Listener) Option {
	return func(s *server) {
		s.listener = ln
	}
}
