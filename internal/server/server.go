// Package server assembles the HTTP application: middleware, the auth and
// admin routes, health and metrics endpoints.
package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-wms/auth"
	"github.com/goliatone/go-wms/internal/config"
	"github.com/goliatone/go-wms/internal/obs"
)

// Server owns the fiber app and the collaborators it was built from
type Server struct {
	cfg     config.Config
	app     *fiber.App
	db      *bun.DB
	auther  *auth.Auther
	limiter *IPLimiter
	metrics *obs.Metrics
	logger  *slog.Logger
	started time.Time
}

// New wires the auth core against db and registers every route. It fails
// when the auth configuration is unusable.
func New(cfg config.Config, db *bun.DB, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		db:      db,
		metrics: obs.NewMetrics("wms"),
		logger:  logger,
		started: time.Now(),
	}

	authLogger := logger.With("component", "auth")
	activity := auth.ActivitySinks(
		auth.LoggerActivitySink(authLogger),
		s.metrics.ActivitySink(),
	)

	repo := auth.NewRepositoryManager(db)
	tokens, err := auth.NewTokenService(cfg.Auth, auth.WithTokenLogger(authLogger))
	if err != nil {
		return nil, err
	}

	auther, err := auth.NewAuthenticator(repo, tokens, cfg.Auth)
	if err != nil {
		return nil, err
	}
	s.auther = auther.
		WithLogger(authLogger).
		WithActivitySink(activity).
		WithPasswordAuthenticator(auth.NewBcryptHasher(cfg.Auth.PasswordHashCost)).
		WithDefaultRoleProvider(auth.NewCodeRoleProvider(repo.Roles(), cfg.Auth.DefaultRoleCode))

	if cfg.RateLimit.RPS > 0 {
		s.limiter = NewIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "wms",
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          auth.ErrorHandler(authLogger),
	})

	s.routes(repo, activity)
	return s, nil
}

func (s *Server) routes(repo auth.RepositoryManager, activity auth.ActivitySink) {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(requestLogger(s.logger))
	s.app.Use(helmet.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	s.app.Use(compress.New())
	s.app.Use(s.metrics.Instrument())

	s.app.Get("/health", s.health)
	s.app.Get("/metrics", s.metrics.Handler())

	api := s.app.Group(s.cfg.Server.APIPrefix)

	if s.limiter != nil {
		limit := s.limiter.Handler()
		api.Post("/auth/login", limit)
		api.Post("/auth/register", limit)
	}

	requireAuth := s.auther.RequireAuth()

	auth.NewAuthController(s.auther).
		WithLogger(s.logger.With("component", "auth.http")).
		WithPhoneRegion(s.cfg.Auth.PhoneRegion).
		RegisterRoutes(api, requireAuth)

	auth.NewAdminController(repo).
		WithLogger(s.logger.With("component", "admin.http")).
		WithActivitySink(activity).
		RegisterRoutes(api, requireAuth)

	s.app.Use(notFound)
}

// App exposes the fiber application, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Authenticator returns the authenticator the routes were built with
func (s *Server) Authenticator() *auth.Auther {
	return s.auther
}

// Listen serves until ctx is cancelled, then shuts down within the
// configured timeout and drains background writers
func (s *Server) Listen(ctx context.Context) error {
	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Server.Addr, "prefix", s.cfg.Server.APIPrefix)
		errCh <- s.app.Listen(s.cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := s.app.ShutdownWithContext(shutdownCtx)
	s.auther.Wait()
	return err
}

type healthResponse struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Environment string  `json:"environment"`
	Database    string  `json:"database"`
}

func (s *Server) health(c *fiber.Ctx) error {
	res := healthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Uptime:      time.Since(s.started).Seconds(),
		Environment: s.cfg.Environment,
		Database:    "up",
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("health check database ping failed", "error", err)
		res.Status = "degraded"
		res.Database = "down"
		return c.Status(fiber.StatusServiceUnavailable).JSON(res)
	}
	return c.JSON(res)
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success": false,
		"message": "Route not found",
		"path":    c.OriginalURL(),
	})
}

func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}

		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
			"ip", c.IP(),
		}
		if rid, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok {
			attrs = append(attrs, "request_id", rid)
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request", attrs...)
		case status >= fiber.StatusBadRequest && !strings.HasSuffix(c.Path(), "/health"):
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
		return err
	}
}

func statusOf(err error) int {
	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}
	return auth.HTTPStatus(err)
}
