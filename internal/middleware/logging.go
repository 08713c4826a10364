package middleware

import (
	"log/slog"
	"strings"
	"time"

	"agora/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// ContextMiddleware copies the request and trace IDs from fiber locals into the
// request context so the context-aware logger can pick them up in deep layers.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ctx = observability.WithRequestID(ctx, rid)
		}
		if tid, ok := c.Locals(TraceIDLocal).(string); ok && tid != "" {
			ctx = observability.WithTraceID(ctx, tid)
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger logs one line per request through the context-aware
// logger so request_id and principal ride along. Health check and scrape traffic is
// logged at debug.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes", len(c.Response().Body())),
		}
		if r := c.Route(); r != nil && r.Path != "" {
			attrs = append(attrs, slog.String("route", r.Path))
		}

		level, msg := slog.LevelInfo, "request processed"
		switch {
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			level, msg = slog.LevelError, "request failed"
		case status >= fiber.StatusInternalServerError:
			level, msg = slog.LevelError, "request failed"
		case isHealthOrScrape(c.Path()):
			level = slog.LevelDebug
		}
		observability.Logger.LogAttrs(c.UserContext(), level, msg, attrs...)
		return err
	}
}

func isHealthOrScrape(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health")
}
