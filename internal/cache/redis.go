// Package cache holds the Redis side of the engagement core: the
// invalidation sink, the comment-tree cache-aside and client setup.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agora/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

const (
	connectAttempts = 3
	pingTimeout     = 2 * time.Second
)

// errorCounter counts failed commands per command name. Cache misses are not failures.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(op string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrorRate.WithLabelValues(op).Inc()
	}
}

func parseOptions(addr string) (*redis.Options, error) {
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
	}
	return opts, nil
}

// NewClient builds a client from a bare host:port or a redis:// URL and pings
// it, retrying a few times with backoff while Redis comes up.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := parseOptions(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	c.AddHook(errorCounter{})

	ping := func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return struct{}{}, c.Ping(pctx).Err()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	if _, err := backoff.Retry(ctx, ping, backoff.WithBackOff(policy), backoff.WithMaxTries(connectAttempts)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return c, nil
}

// InitRedis connects to addr. When Redis is unreachable it returns nil and
// the application runs uncached, without invalidation delivery.
func InitRedis(addr string) *redis.Client {
	c, err := NewClient(context.Background(), addr)
	if err != nil {
		observability.Logger.Warn("redis unavailable, continuing without cache", slog.String("error", err.Error()))
		return nil
	}
	observability.Logger.Info("redis connected", slog.String("addr", c.Options().Addr))
	return c
}
