package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"agora/internal/models"
	"agora/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

var errNoStore = errors.New("rate limit store unavailable")

// RateLimiter enforces fixed-window quotas on write actions, one counter per
// (action, principal). Limits are off outside staging and production.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewRateLimiter builds a limiter for the given APP_ENV.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	switch env {
	case "", "test", "development", "stress":
		return &RateLimiter{rdb: rdb}
	}
	return &RateLimiter{rdb: rdb, enabled: true}
}

// limitKey identifies the actor without putting a session token into Redis.
func limitKey(action string, p models.Principal, ip string) string {
	if !p.Valid() {
		return fmt.Sprintf("rl:%s:ip:%s", action, ip)
	}
	v := p.View()
	return fmt.Sprintf("rl:%s:%s:%s", action, v.Kind, v.Handle)
}

// Allow counts one hit against key and reports whether it is within limit,
// plus how long until the window resets.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if !l.enabled {
		return true, 0, nil
	}
	if l.rdb == nil {
		return false, 0, errNoStore
	}

	// INCR and EXPIRE NX in one round trip so a crash never leaves a key without a TTL.
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("rate_limit").Inc()
		return false, 0, err
	}
	return incr.Val() <= int64(limit), ttl.Val(), nil
}

// Limit returns a Fiber middleware allowing `limit` requests of action per
// `window` for each principal. Identity must run first; requests without a
// principal are keyed by remote IP. A missing Redis lets requests through.
func (l *RateLimiter) Limit(action string, limit int, window time.Duration) fiber.Handler {
	return l.LimitWithPolicy(action, limit, window, FailOpen)
}

// LimitWithPolicy is Limit with an explicit policy for an unavailable store.
func (l *RateLimiter) LimitWithPolicy(action string, limit int, window time.Duration, policy FailPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		key := limitKey(action, PrincipalFrom(c), c.IP())

		allowed, reset, err := l.Allow(ctx, key, limit, window)
		if err != nil {
			if policy == FailClosed {
				observability.RateLimitDecisions.WithLabelValues(action, "unavailable").Inc()
				observability.Logger.WarnContext(ctx, "rate limit fail-closed",
					slog.String("action", action), slog.String("error", err.Error()))
				return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
					Error: "Rate limiting is temporarily unavailable",
					Code:  models.CodeStoreUnavailable,
				})
			}
			observability.RateLimitDecisions.WithLabelValues(action, "fail_open").Inc()
			return c.Next()
		}

		if !allowed {
			observability.RateLimitDecisions.WithLabelValues(action, "limited").Inc()
			if reset > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(reset.Round(time.Second)/time.Second)))
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many " + humanizeAction(action) + " requests, please slow down",
				Code:  models.CodeRateLimited,
			})
		}

		observability.RateLimitDecisions.WithLabelValues(action, "allowed").Inc()
		return c.Next()
	}
}

func humanizeAction(action string) string {
	out := []byte(action)
	for i, b := range out {
		if b == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}
