// Package bootstrap wires configuration into the runtime dependencies shared by
// the server and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"agora/internal/cache"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/identity"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/seed"
	"agora/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedBuiltIns bool
	// SkipRedis leaves the client nil even when REDIS_URL is set.
	SkipRedis bool
}

// InitRuntime connects to the database, applies the schema and connects to
// Redis. An unreachable Redis is not an error: the returned client is nil.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	observability.Configure(cfg.Env, cfg.LogLevel)

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	var r *redis.Client
	if !opts.SkipRedis && cfg.RedisURL != "" {
		r = cache.InitRedis(cfg.RedisURL)
	}

	if opts.SeedBuiltIns {
		n, err := seed.EnsureBuiltInBoards(ctx, db)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to seed built-in boards: %w", err)
		}
		observability.Logger.Info("built-in boards ensured", slog.Int("created", n))
	}

	return db, r, nil
}

// NewCore builds the engagement core over db. A nil redis client yields a core
// that neither caches listings nor publishes invalidations.
func NewCore(cfg *config.Config, db *gorm.DB, r *redis.Client, resolver *identity.Resolver) *service.Core {
	if resolver == nil {
		resolver = identity.NewResolver(identity.WithSessionMaxAge(cfg.SessionMaxAge()))
	}

	var sink service.InvalidationSink = service.NopSink
	if r != nil {
		sink = cache.NewRedisSink(r)
	}

	return service.NewCore(
		repository.NewContentStore(db),
		repository.NewBoardStore(db),
		resolver,
		sink,
		cache.NewAside(r),
		service.Options{
			Limits:              cfg.ContentLimits(),
			ToggleMaxAttempts:   cfg.ToggleMaxAttempts,
			ToggleRetryBase:     cfg.ToggleRetryBase(),
			InvalidationTimeout: cfg.InvalidationTimeout(),
			CommentsCacheTTL:    cfg.CommentsCacheTTL(),
		},
	)
}

// InitTracing starts the tracer provider described by cfg.
func InitTracing(cfg *config.Config, version string) (func(context.Context) error, error) {
	return observability.InitTracing(observability.TracingConfig{
		ServiceName:    "agora",
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
}
