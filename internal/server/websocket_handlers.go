package server

import (
	"encoding/json"
	"log/slog"

	"agora/internal/featureflags"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const topicsLocal = "topics"

// requireInvalidationStream gates the stream on Redis, the feature flag and a
// websocket upgrade, in that order.
func (s *Server) requireInvalidationStream(c *fiber.Ctx) error {
	principal := middleware.PrincipalFrom(c)
	if s.hub == nil || !s.featureFlags.Enabled(featureflags.InvalidationStream, principal) {
		return respondWithError(c, &models.AppError{Code: models.CodeNotFound, Message: "invalidation stream is not available"})
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(topicsLocal, parseTopics(c.Query("topics")))
	return c.Next()
}

// InvalidationStreamHandler streams invalidation events to subscribers.
// ?topics=post:1,board:2 narrows delivery to events naming those keys.
func (s *Server) InvalidationStreamHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		principal, _ := conn.Locals(middleware.PrincipalLocal).(models.Principal)
		topics, _ := conn.Locals(topicsLocal).([]string)

		client, err := s.hub.Register(principal, conn, topics)
		if err != nil {
			observability.Logger.Warn("invalidation stream registration refused",
				slog.String("principal", principal.String()), slog.String("error", err.Error()))
			msg, _ := json.Marshal(models.ErrorResponse{Error: err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		observability.Logger.Debug("invalidation subscriber connected",
			slog.String("principal", principal.String()), slog.Int("topics", len(topics)))

		client.Serve()
	})
}
