package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/naulify/naulify/internal/identity"
	"github.com/naulify/naulify/internal/session"
)

// Handler exposes auth endpoints for sign-up, login, refresh and logout.
type Handler struct {
	ids      *identity.Service
	svc      *Service
	sessions *session.Manager
	logger   *slog.Logger
}

func NewHandler(ids *identity.Service, svc *Service, sessions *session.Manager, logger *slog.Logger) *Handler {
	return &Handler{ids: ids, svc: svc, sessions: sessions, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type authResponse struct {
	UserID        string        `json:"user_id"`
	Email         string        `json:"email"`
	EmailVerified bool          `json:"email_verified"`
	AccessToken   string        `json:"access_token"`
	RefreshToken  string        `json:"refresh_token"`
	ExpiresIn     int64         `json:"expires_in"`
	TokenVersion  int           `json:"token_version"`
	Session       *session.View `json:"session,omitempty"`
}

// SignUp creates an account, signs it in on the device and returns tokens.
func (h *Handler) SignUp(c *fiber.Ctx) error {
	creds, err := credentials(c)
	if err != nil {
		return err
	}
	user, err := h.ids.SignUp(c.UserContext(), creds)
	if err != nil {
		return fiber.NewError(identity.StatusFor(err), identity.ErrorMessage(err))
	}
	return h.respond(c, http.StatusCreated, user, creds.DeviceID)
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	creds, err := credentials(c)
	if err != nil {
		return err
	}
	user, err := h.ids.SignIn(c.UserContext(), creds)
	if err != nil {
		return fiber.NewError(identity.StatusFor(err), identity.ErrorMessage(err))
	}
	return h.respond(c, http.StatusOK, user, creds.DeviceID)
}

func (h *Handler) respond(c *fiber.Ctx, status int, user identity.User, deviceID string) error {
	pair, err := h.svc.Login(user, deviceID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, identity.ErrorMessage(err))
	}
	resp := authResponse{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		AccessToken:   pair.AccessToken,
		RefreshToken:  pair.RefreshToken,
		ExpiresIn:     pair.ExpiresIn,
		TokenVersion:  user.TokenVersion,
	}
	if h.sessions != nil && deviceID != "" {
		ctx, cancel := context.WithTimeout(c.UserContext(), session.SettleTimeout)
		defer cancel()
		view, err := h.sessions.Settle(ctx, deviceID)
		if err != nil && h.logger != nil {
			h.logger.Warn("session did not settle after sign-in", slog.String("device_id", deviceID), slog.Any("error", err))
		}
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			resp.Session = &view
		}
	}
	return c.Status(status).JSON(resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}

// Logout invalidates existing tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	deviceID, _ := c.Locals("device_id").(string)
	if err := h.svc.Logout(c.UserContext(), uid, deviceID); err != nil {
		return fiber.NewError(identity.StatusFor(err), identity.ErrorMessage(err))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

func credentials(c *fiber.Ctx) (identity.Credentials, error) {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return identity.Credentials{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	// The device comes only from the X-Device-ID header. A body device_id
	// must agree with it.
	deviceID, _ := c.Locals("device_id").(string)
	if body := strings.TrimSpace(req.DeviceID); body != "" && body != deviceID {
		return identity.Credentials{}, fiber.NewError(http.StatusBadRequest, "device_id does not match the X-Device-ID header")
	}
	return identity.Credentials{Email: req.Email, Password: req.Password, DeviceID: deviceID}, nil
}
