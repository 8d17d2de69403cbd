package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/naulify/naulify/internal/auth"
	"github.com/naulify/naulify/internal/fares"
	"github.com/naulify/naulify/internal/identity"
	"github.com/naulify/naulify/internal/payments"
	"github.com/naulify/naulify/internal/profile"
	"github.com/naulify/naulify/internal/qr"
	"github.com/naulify/naulify/internal/session"
)

// RegisterAuthRoutes wires the public account endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, ids *identity.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/sign-up", h.SignUp)
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/password-reset", rateLimiter, ids.RequestPasswordReset)
	group.Post("/password-reset/confirm", ids.ConfirmPasswordReset)
	group.Post("/verify-email", ids.VerifyEmail)
	group.Post("/password-strength", ids.PasswordStrength)
}

// RegisterAccountRoutes wires endpoints that need a signed-in caller.
func RegisterAccountRoutes(r fiber.Router, h *auth.Handler, ids *identity.Handler, users *identity.Service) {
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/verification", ids.ResendVerification)
	r.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		user, err := users.User(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":        user.ID,
			"email":          user.Email,
			"email_verified": user.EmailVerified,
			"token_version":  user.TokenVersion,
			"created_at":     user.CreatedAt,
			"last_login":     user.LastLogin,
		})
	})
}

// RegisterSessionRoutes wires the per-device session gate. A token is
// optional: a signed-out device still has a session that routes it to login,
// and the handler hides a signed-in device from anyone but its owner.
func RegisterSessionRoutes(r fiber.Router, h *session.Handler, optionalAuth fiber.Handler) {
	group := r.Group("/session", optionalAuth)
	group.Get("", h.Get)
	group.Put("/location", h.Locate)
	group.Post("/acknowledge", h.Acknowledge)
	group.Post("/reload", h.Reload)
}

// RegisterProfileRoutes wires onboarding and profile edits.
func RegisterProfileRoutes(r fiber.Router, h *profile.Handler) {
	r.Get("/profile", h.Get)
	r.Post("/profile", h.Create)
	r.Put("/profile", h.Update)
}

// RegisterFareRoutes wires route and fare management. The stream is
// registered before the :routeId routes so it is not shadowed.
func RegisterFareRoutes(r fiber.Router, h *fares.Handler) {
	r.Get("/routes/stream", h.Stream)
	r.Get("/routes", h.List)
	r.Post("/routes", h.Create)
	r.Put("/routes/:routeId", h.Update)
	r.Delete("/routes/:routeId", h.Delete)
}

// RegisterPaymentRoutes wires the operator's payment history and reports.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Get("/payments", h.List)
	r.Get("/reports", h.Report)
}

// RegisterCallbackRoutes wires the M-PESA confirmation callback. The
// signature check runs before idempotency so unsigned requests never reserve
// a key.
func RegisterCallbackRoutes(r fiber.Router, h *payments.Handler, signature, idempotency fiber.Handler) {
	r.Post("/payments/callback/:psvId", signature, idempotency, h.Callback)
}

// RegisterQRRoutes wires the operator's payment QR code.
func RegisterQRRoutes(r fiber.Router, h *qr.Handler) {
	r.Get("/qr", h.Link)
	r.Get("/qr.png", h.Image)
	r.Get("/qr/poster", h.PosterPage)
}
