package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"agora/internal/observability"
)

// Start wires the invalidation stream and listens on the configured port.
// A stream that fails to wire leaves the HTTP API serving.
func (s *Server) Start() error {
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.app = s.App()

	if s.hub != nil {
		if err := s.hub.StartWiring(s.shutdownCtx, s.subscriber); err != nil {
			observability.Logger.Warn("invalidation stream not wired", slog.String("error", err.Error()))
		}
	}

	observability.Logger.Info("server starting", slog.String("port", s.config.Port), slog.String("env", s.config.Env))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests, then closes subscribers, the database
// and Redis. Every step runs even if an earlier one fails; the errors are joined.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			observability.Logger.Error("shutdown step failed", slog.String("step", name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if s.app != nil {
		step("http", func() error { return s.app.ShutdownWithContext(ctx) })
	}
	if s.hub != nil {
		step("invalidation hub", func() error { return s.hub.Shutdown(ctx) })
	}
	step("database", func() error {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if s.redis != nil {
		step("redis", s.redis.Close)
	}

	observability.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
