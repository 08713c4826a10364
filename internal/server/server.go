// Package server contains the HTTP and WebSocket boundary of the engagement core.
package server

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "agora/docs" // swagger docs
	"agora/internal/bootstrap"
	"agora/internal/config"
	"agora/internal/featureflags"
	"agora/internal/identity"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/notifications"
	"agora/internal/observability"
	"agora/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Core is the part of service.Core the HTTP boundary calls.
type Core interface {
	ToggleEngagement(ctx context.Context, principal models.Principal, ref models.ContentRef, d models.Direction) (*service.ToggleResult, error)
	CreateComment(ctx context.Context, principal models.Principal, in service.CreateCommentInput) (*models.Content, error)
	EditContent(ctx context.Context, principal models.Principal, ref models.ContentRef, in service.EditInput) (*models.Content, error)
	RemoveContent(ctx context.Context, principal models.Principal, ref models.ContentRef) (*models.Content, error)
	ListThreadedComments(ctx context.Context, postID uint) ([]models.ThreadedComment, error)
	CreateBoard(ctx context.Context, principal models.Principal, in service.CreateBoardInput) (*models.Board, error)
	CreatePost(ctx context.Context, principal models.Principal, in service.CreatePostInput) (*models.Content, error)
	RecordView(ctx context.Context, postID uint) error
	GetContent(ctx context.Context, ref models.ContentRef) (*models.Content, error)
}

var _ Core = (*service.Core)(nil)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// httpMetrics registers the fiber collectors once per process.
func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("agora-api")
	})
	return prom
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	core           Core
	resolver       *identity.Resolver
	verifier       *identity.AccountVerifier
	featureFlags   *featureflags.Manager
	hub            *notifications.Hub
	subscriber     *notifications.Subscriber
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// A nil redis client disables caching, invalidation delivery and the stream.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	resolver := identity.NewResolver(identity.WithSessionMaxAge(cfg.SessionMaxAge()))
	core := bootstrap.NewCore(cfg, db, redisClient, resolver)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: httpMetrics(),
		core:           core,
		resolver:       resolver,
		verifier:       identity.NewAccountVerifier(cfg.JWTSecret),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}

	if bad := server.featureFlags.Rejected(); len(bad) > 0 {
		observability.Logger.Warn("ignoring malformed feature flags",
			slog.Any("entries", bad), slog.String("effective", server.featureFlags.String()))
	}

	if redisClient != nil {
		server.hub = notifications.NewHub()
		server.subscriber = notifications.NewSubscriber(redisClient)
	}

	return server, nil
}

// globalRequestLimit caps requests per IP per minute across all routes.
const globalRequestLimit = 300

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.Tracing())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses keep their headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Per-IP flood guard in process memory; per-action quotas live on the routes.
	app.Use(limiter.New(limiter.Config{
		Max:               globalRequestLimit,
		Expiration:        time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/health/")
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
				Code:  models.CodeRateLimited,
			})
		},
	}))

	app.Use(middleware.Identity(s.resolver, s.verifier, middleware.SessionCookie{
		Name:   s.config.SessionCookie,
		Secure: s.config.IsProduction(),
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Agora Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	api.Get("/identity", s.GetIdentity)

	quota := middleware.NewRateLimiter(s.redis, s.config.Env)

	boards := api.Group("/boards")
	boards.Post("/", quota.Limit("create_board", 5, 10*time.Minute), s.CreateBoard)
	boards.Post("/:id/posts", quota.Limit("create_post", 5, 5*time.Minute), s.CreatePost)

	posts := api.Group("/posts")
	posts.Post("/:id/views", s.RecordView)
	posts.Get("/:id/comments", s.ListComments)
	posts.Post("/:id/comments", quota.Limit("create_comment", 10, time.Minute), s.CreateComment)

	content := api.Group("/content")
	// Specific /:type/:id/:resource routes before the generic item routes.
	content.Post("/:type/:id/engagement", quota.Limit("engagement", 60, time.Minute), s.ToggleEngagement)
	content.Get("/:type/:id", s.GetContent)
	content.Patch("/:type/:id", s.EditContent)
	content.Delete("/:type/:id", s.RemoveContent)

	api.Get("/ws/invalidations", s.requireInvalidationStream, s.InvalidationStreamHandler())
}

// App builds a fully configured fiber app without listening.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Agora API",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}
