package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/naulify/naulify/internal/auth"
	"github.com/naulify/naulify/internal/config"
	"github.com/naulify/naulify/internal/fares"
	"github.com/naulify/naulify/internal/identity"
	"github.com/naulify/naulify/internal/logging"
	"github.com/naulify/naulify/internal/middleware"
	"github.com/naulify/naulify/internal/notification"
	"github.com/naulify/naulify/internal/payments"
	"github.com/naulify/naulify/internal/profile"
	"github.com/naulify/naulify/internal/qr"
	"github.com/naulify/naulify/internal/session"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
	// AccessLog enables the plain text fiber access log.
	AccessLog bool
}

// Runtime holds the long-lived services Setup starts. Close must run after
// the HTTP server has stopped accepting requests.
type Runtime struct {
	Identity *identity.Service
	Sessions *session.Manager
	Fares    *fares.Service
}

// Close ends open fare streams and every device's session gate.
func (r *Runtime) Close() error {
	r.Fares.Close()
	return r.Sessions.Close()
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Runtime, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.AccessLog {
		// [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.DeviceID())

	RegisterHealthRoutes(app, d)

	var (
		identityRepo identity.Repository
		tokenStore   identity.TokenStore
		profileRepo  profile.Repository
		fareRepo     fares.Repository
		paymentRepo  payments.Repository
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		profileRepo = profile.NewPostgresRepository(d.DB)
		fareRepo = fares.NewPostgresRepository(d.DB)
		paymentRepo = payments.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		profileRepo = profile.NewMemoryRepository()
		fareRepo = fares.NewMemoryRepository()
		paymentRepo = payments.NewMemoryRepository()
	}
	if d.Cache != nil {
		tokenStore = identity.NewRedisTokenStore(d.Cache)
	} else {
		tokenStore = identity.NewMemoryTokenStore()
	}

	identitySvc := identity.NewService(identityRepo, tokenStore, d.Notifier, d.Cfg.ResetTokenTTL, d.Logger)
	profileSvc := profile.NewService(profileRepo)
	sessions := session.NewManager(
		func(deviceID string) session.IdentitySource { return identitySvc.Feed(deviceID) },
		profileSvc,
		d.Logger,
		session.WithFetchTimeout(d.Cfg.ProfileFetchTimeout),
	)
	sessions.StartEviction(d.Cfg.SessionIdleTimeout, sweepInterval(d.Cfg.SessionIdleTimeout))
	authSvc := auth.NewService(d.Cfg, identitySvc)
	fareSvc := fares.NewService(fareRepo, d.Logger)
	paymentSvc := payments.NewService(paymentRepo, profileSvc, d.Notifier, d.Cfg.Location(), d.Logger)

	authHandler := auth.NewHandler(identitySvc, authSvc, sessions, d.Logger)
	identityHandler := identity.NewHandler(identitySvc)
	sessionHandler := session.NewHandler(sessions)
	profileHandler := profile.NewHandler(profileSvc, sessions, d.Logger)
	fareHandler := fares.NewHandler(fareSvc, d.Logger)
	paymentHandler := payments.NewHandler(paymentSvc)
	qrHandler := qr.NewHandler(profileSvc, d.Cfg.PayBaseURL)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes. They must be registered before the protected group,
	// whose JWT middleware applies to every later /api/v1 route.
	RegisterAuthRoutes(api, authHandler, identityHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRatePerMin))
	RegisterSessionRoutes(api, sessionHandler, middleware.OptionalJWT(authSvc))
	RegisterCallbackRoutes(api, paymentHandler,
		middleware.CallbackSignature(d.Cfg.CallbackSecret),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	)

	protected := api.Group("", middleware.JWTAuth(authSvc))
	RegisterAccountRoutes(protected, authHandler, identityHandler, identitySvc)
	RegisterProfileRoutes(protected, profileHandler)
	RegisterFareRoutes(protected, fareHandler)
	RegisterPaymentRoutes(protected, paymentHandler)
	RegisterQRRoutes(protected, qrHandler)

	return &Runtime{Identity: identitySvc, Sessions: sessions, Fares: fareSvc}, nil
}

// sweepInterval checks for idle sessions a few times per idle period.
func sweepInterval(idle time.Duration) time.Duration {
	if iv := idle / 4; iv > time.Second {
		return iv
	}
	return time.Second
}

// ErrorHandler renders errors as JSON {"error": message}. Unknown errors
// are logged and hidden behind a generic message.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else if logger != nil {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
