package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes password reset and email verification endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// resetNotice is returned whether or not the email is registered.
const resetNotice = "If an account exists for this email, a password reset link has been sent."

// RequestPasswordReset starts the forgot-password flow.
func (h *Handler) RequestPasswordReset(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return fiber.NewError(http.StatusBadRequest, "Please enter your email address.")
		}
		if errors.Is(err, ErrInvalidEmail) {
			return fiber.NewError(http.StatusBadRequest, ErrorMessage(err))
		}
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"message": resetNotice})
}

// ConfirmPasswordReset sets a new password using a reset token.
func (h *Handler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return fiber.NewError(StatusFor(err), ErrorMessage(err))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "password_updated"})
}

// VerifyEmail consumes an email verification token.
func (h *Handler) VerifyEmail(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.VerifyEmail(c.UserContext(), req.Token); err != nil {
		return fiber.NewError(StatusFor(err), ErrorMessage(err))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "email_verified"})
}

// ResendVerification sends a fresh verification email to the caller.
func (h *Handler) ResendVerification(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.service.SendVerification(c.UserContext(), uid); err != nil {
		return fiber.NewError(StatusFor(err), ErrorMessage(err))
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"status": "verification_sent"})
}

// PasswordStrength rates a candidate password for the sign-up form. The
// password is never logged or stored.
func (h *Handler) PasswordStrength(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(PasswordStrength(req.Password))
}

// ErrorMessage renders identity errors as user-facing text.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "Please fill in both email and password."
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrWeakPassword):
		return "Password should be at least 6 characters."
	case errors.Is(err, ErrEmailTaken):
		return "This email address is already in use."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password. Please try again."
	case errors.Is(err, ErrInvalidToken):
		return "This link is invalid or has expired."
	case errors.Is(err, ErrDeviceRequired):
		return "A device id is required to sign in."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// StatusFor maps identity errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrWeakPassword), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrDeviceRequired):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
