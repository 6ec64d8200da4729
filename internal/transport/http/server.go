// Package httptransport builds and runs the HTTP servers of the fittrack binaries.
package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the timeouts used by the API.
func DefaultServerConfig(address string) ServerConfig {
	return ServerConfig{
		Address:         address,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server pairs an *http.Server with its shutdown grace period.
type Server struct {
	*http.Server
	shutdownTimeout time.Duration
}

// NewServer creates a Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *Server {
	grace := cfg.ShutdownTimeout
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Server{
		Server: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		shutdownTimeout: grace,
	}
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
// It returns the listener error if the server fails to start.
func (s *Server) Run(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "address", s.Addr, "error", err)
		return err
	}
	return nil
}
