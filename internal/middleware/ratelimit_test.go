package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agora/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiterRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		noStore bool
		allowed bool
		wantErr bool
	}{
		{name: "test env bypasses", env: "test", noStore: true, allowed: true},
		{name: "development env bypasses", env: "development", noStore: true, allowed: true},
		{name: "unset env bypasses", env: "", noStore: true, allowed: true},
		{name: "production without store errors", env: "production", noStore: true, wantErr: true},
		{name: "production with store counts", env: "production", allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rdb *redis.Client
			if !tt.noStore {
				_, rdb = newLimiterRedis(t)
			}
			allowed, _, err := NewRateLimiter(rdb, tt.env).Allow(context.Background(), "rl:x:account:1", 1, time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, allowed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	mr, rdb := newLimiterRedis(t)
	l := NewRateLimiter(rdb, "production")
	ctx := context.Background()

	ok, _, err := l.Allow(ctx, "rl:w", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, reset, err := l.Allow(ctx, "rl:w", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, reset)

	// A second hit must not push the window out.
	mr.FastForward(30 * time.Second)
	_, _, _ = l.Allow(ctx, "rl:w", 1, time.Minute)
	assert.Equal(t, 30*time.Second, mr.TTL("rl:w"))

	mr.FastForward(31 * time.Second)
	ok, _, err = l.Allow(ctx, "rl:w", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_StorePolicy(t *testing.T) {
	t.Run("fail open", func(t *testing.T) {
		app := fiber.New()
		app.Get("/test", NewRateLimiter(nil, "production").Limit("read", 1, time.Minute), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("fail closed", func(t *testing.T) {
		app := fiber.New()
		l := NewRateLimiter(nil, "production")
		app.Get("/sensitive", l.LimitWithPolicy("moderate", 1, time.Minute, FailClosed), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sensitive", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestRateLimiter_KeysByPrincipalHandle(t *testing.T) {
	mr, rdb := newLimiterRedis(t)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if s := c.Get("X-Session"); s != "" {
			c.Locals(PrincipalLocal, models.AnonymousSession(s))
		}
		return c.Next()
	})
	app.Post("/toggle", NewRateLimiter(rdb, "production").Limit("engagement", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	do := func(session string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/toggle", nil)
		if session != "" {
			req.Header.Set("X-Session", session)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	const token = "6f1c0d5e-session-token"
	assert.Equal(t, http.StatusOK, do(token).StatusCode)
	assert.Equal(t, http.StatusOK, do(token).StatusCode)
	limited := do(token)
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, "60", limited.Header.Get(fiber.HeaderRetryAfter))
	assert.Equal(t, http.StatusOK, do("other").StatusCode)
	assert.Equal(t, http.StatusOK, do("").StatusCode)

	handle := models.AnonymousSession(token).View().Handle
	assert.True(t, mr.Exists("rl:engagement:session:"+handle))
	assert.True(t, mr.Exists("rl:engagement:ip:0.0.0.0"))
	for _, k := range mr.Keys() {
		assert.NotContains(t, k, token)
	}
}
