package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"agora/internal/observability"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Aside is a cache-aside reader. Concurrent misses on the same key share one load.
// A nil client disables caching and every call loads directly.
type Aside struct {
	client *redis.Client
	group  singleflight.Group
}

func NewAside(client *redis.Client) *Aside {
	return &Aside{client: client}
}

// Get fills dest from Redis, or from load on a miss, storing the loaded value
// with ttl. Redis failures degrade to a direct load; load errors are returned as-is.
func (a *Aside) Get(ctx context.Context, key string, dest any, ttl time.Duration, load func(context.Context) (any, error)) error {
	found, err := a.lookup(ctx, key, dest)
	switch {
	case err != nil:
		observability.CacheLookups.WithLabelValues("error").Inc()
		observability.Logger.WarnContext(ctx, "cache read failed, loading from store",
			slog.String("key", key), slog.String("error", err.Error()))
	case found:
		observability.CacheLookups.WithLabelValues("hit").Inc()
		return nil
	case a.client != nil:
		observability.CacheLookups.WithLabelValues("miss").Inc()
	}

	raw, err, shared := a.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if a.client != nil {
			if err := a.client.Set(ctx, key, b, ttl).Err(); err != nil {
				observability.LogAsyncOperationError(ctx, "cache_set", err, slog.String("key", key))
			}
		}
		return b, nil
	})
	if err != nil {
		return err
	}
	if shared {
		observability.CacheLookups.WithLabelValues("shared").Inc()
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// lookup reports found=false with no error on a miss or when caching is off.
func (a *Aside) lookup(ctx context.Context, key string, dest any) (bool, error) {
	if a.client == nil {
		return false, nil
	}
	raw, err := a.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, json.Unmarshal(raw, dest)
}
