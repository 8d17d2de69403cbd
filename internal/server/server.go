package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/naulify/naulify/internal/config"
	"github.com/naulify/naulify/internal/logging"
	"github.com/naulify/naulify/internal/routes"
)

// Server wraps the Fiber application and the services routes.Setup started.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	runtime *routes.Runtime
	logger  *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db and cache may be nil in development.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          routes.ErrorHandler(logging.Component(logger, "http")),
		DisableStartupMessage: !cfg.IsDev(),
	})

	rt, err := routes.Setup(app, routes.Deps{
		Cfg:       cfg,
		DB:        db,
		Cache:     cache,
		Logger:    logger,
		AccessLog: cfg.IsDev(),
	})
	if err != nil {
		return nil, err
	}
	return &Server{app: app, cfg: cfg, runtime: rt, logger: logging.Component(logger, "server")}, nil
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown ends fare streams so their connections can drain, stops the HTTP
// server and then closes every session gate.
func (s *Server) Shutdown(ctx context.Context) error {
	s.runtime.Fares.Close()
	httpErr := s.app.ShutdownWithContext(ctx)
	sessErr := s.runtime.Sessions.Close()
	if httpErr == nil && sessErr == nil {
		s.logger.Info("server stopped")
	}
	return errors.Join(httpErr, sessErr)
}
