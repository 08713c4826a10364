package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

// Dependency states reported by the readiness check.
const (
	statusHealthy     = "healthy"
	statusUnhealthy   = "unhealthy"
	statusUnavailable = "unavailable"
	statusDegraded    = "degraded"
)

const checkTimeout = 5 * time.Second

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Time   time.Time         `json:"time"`
}

// LivenessCheck godoc
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health/live [get]
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "up", Time: time.Now()})
}

// ReadinessCheck godoc
// @Summary Readiness check
// @Description The database is required. Redis is optional: without it the service is degraded, serving uncached with no invalidation stream.
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/ready [get]
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), checkTimeout)
	defer cancel()

	var db, cache string
	var g errgroup.Group
	g.Go(func() error { db = s.checkDatabase(ctx); return nil })
	g.Go(func() error { cache = s.checkRedis(ctx); return nil })
	_ = g.Wait()

	resp := HealthResponse{
		Status: statusHealthy,
		Checks: map[string]string{"database": db, "redis": cache},
		Time:   time.Now(),
	}
	code := fiber.StatusOK
	switch {
	case db != statusHealthy:
		resp.Status, code = statusUnhealthy, fiber.StatusServiceUnavailable
	case cache != statusHealthy:
		resp.Status = statusDegraded
	}
	return c.Status(code).JSON(resp)
}

func (s *Server) checkDatabase(ctx context.Context) string {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		return statusUnhealthy
	}
	return statusHealthy
}

func (s *Server) checkRedis(ctx context.Context) string {
	if s.redis == nil {
		return statusUnavailable
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}
