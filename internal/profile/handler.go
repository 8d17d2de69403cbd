package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// SessionReloader refreshes the caller's session after a profile mutation so
// the navigation gate sees the new profile.
type SessionReloader interface {
	Reload(ctx context.Context, deviceID string) error
}

// Handler exposes profile HTTP endpoints.
type Handler struct {
	service  *Service
	sessions SessionReloader
	logger   *slog.Logger
}

// NewHandler builds a profile HTTP handler.
func NewHandler(service *Service, sessions SessionReloader, logger *slog.Logger) *Handler {
	return &Handler{service: service, sessions: sessions, logger: logger}
}

type profileRequest struct {
	OwnerName           *string `json:"owner_name"`
	VehicleRegistration *string `json:"vehicle_registration"`
	VehicleType         *string `json:"vehicle_type"`
	PhoneNumber         *string `json:"phone_number"`
	MpesaShortCode      *string `json:"mpesa_short_code"`
}

// Get returns the caller's profile.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	p, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(statusFor(err), messageFor(err))
	}
	return c.Status(http.StatusOK).JSON(p)
}

// Create completes onboarding for the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	p, err := h.service.Create(c.UserContext(), uid, CreateInput{
		OwnerName:           deref(req.OwnerName),
		VehicleRegistration: deref(req.VehicleRegistration),
		VehicleType:         deref(req.VehicleType),
		PhoneNumber:         deref(req.PhoneNumber),
		MpesaShortCode:      deref(req.MpesaShortCode),
	})
	if err != nil {
		return fiber.NewError(statusFor(err), messageFor(err))
	}
	h.reload(c)
	return c.Status(http.StatusCreated).JSON(p)
}

// Update edits the caller's profile.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	p, err := h.service.Update(c.UserContext(), uid, UpdateInput(req))
	if err != nil {
		return fiber.NewError(statusFor(err), messageFor(err))
	}
	h.reload(c)
	return c.Status(http.StatusOK).JSON(p)
}

func (h *Handler) reload(c *fiber.Ctx) {
	if h.sessions == nil {
		return
	}
	deviceID, _ := c.Locals("device_id").(string)
	if deviceID == "" {
		return
	}
	if err := h.sessions.Reload(c.UserContext(), deviceID); err != nil && h.logger != nil {
		h.logger.Warn("session reload after profile change failed", slog.String("device_id", deviceID), slog.Any("error", err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExists):
		return http.StatusConflict
	case errors.Is(err, ErrIncomplete), errors.Is(err, ErrInvalidVehicleType):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, ErrIncomplete):
		return "Please fill in all fields."
	case errors.Is(err, ErrInvalidVehicleType):
		return "Vehicle type must be one of van, bus or mini-bus."
	case errors.Is(err, ErrExists):
		return "A profile already exists for this account."
	case errors.Is(err, ErrNotFound):
		return "Profile not found."
	default:
		return "Failed to save profile. Please try again."
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
