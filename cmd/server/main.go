// Command server is the entry point for the agora engagement API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"agora/internal/bootstrap"
	"agora/internal/config"
	"agora/internal/observability"
	"agora/internal/server"
)

var version = "dev"

const drainTimeout = 10 * time.Second

// @title Agora API
// @version 1.0
// @description Boards, posts and threaded comments with likes, votes and cache invalidation.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@agora.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Anonymous visitors use the session cookie instead.

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := bootstrap.InitTracing(cfg, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SeedBuiltIns: true})
	if err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}
	srv, err := server.NewServerWithDeps(cfg, db, rdb)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	listenErr := make(chan error, 1)
	go func() { listenErr <- srv.Start() }()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	observability.Logger.Info("signal received, draining", slog.String("version", version))
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return errors.Join(srv.Shutdown(drainCtx), shutdownTracing(drainCtx))
}
