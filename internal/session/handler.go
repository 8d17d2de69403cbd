package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/naulify/naulify/internal/identity"
)

// SettleTimeout bounds how long a request waits for a loading session.
const SettleTimeout = 3 * time.Second

// Handler exposes a device's session to its client. Once a device's gate
// holds an identity, only a caller authenticated as that identity (the
// user_id local) sees the full view or may drive the device. Requests that
// name no device get a signed-out view from a throwaway gate.
type Handler struct {
	manager *Manager
}

// NewHandler builds a session HTTP handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Get returns the settled session view. ?wait=false skips waiting.
func (h *Handler) Get(c *fiber.Ctx) error {
	deviceID, _ := c.Locals("device_id").(string)
	if deviceID == "" {
		return h.anonymous(c, "/")
	}
	if c.Query("wait") == "false" {
		d, err := h.manager.Device(deviceID)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.Status(http.StatusOK).JSON(visible(c, d.View()))
	}
	return h.settled(c, deviceID)
}

// Locate records the client's location and returns the view, including any
// replace the move triggered.
func (h *Handler) Locate(c *fiber.Ctx) error {
	var req struct {
		Path string `json:"path"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	req.Path = strings.TrimSpace(req.Path)
	if !strings.HasPrefix(req.Path, "/") {
		return fiber.NewError(http.StatusBadRequest, "path must start with /")
	}
	deviceID, _ := c.Locals("device_id").(string)
	if deviceID == "" {
		return h.anonymous(c, req.Path)
	}
	if _, err := h.owned(c, deviceID); err != nil {
		return err
	}
	d, err := h.manager.Locate(deviceID, req.Path)
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(visible(c, d.View()))
}

// Acknowledge clears the pending replace once the client has applied it.
func (h *Handler) Acknowledge(c *fiber.Ctx) error {
	deviceID, _ := c.Locals("device_id").(string)
	if deviceID == "" {
		return h.anonymous(c, "/")
	}
	d, err := h.owned(c, deviceID)
	if err != nil {
		return err
	}
	d.Location.Acknowledge()
	return c.Status(http.StatusOK).JSON(visible(c, d.View()))
}

// Reload re-resolves the session and returns the settled view.
func (h *Handler) Reload(c *fiber.Ctx) error {
	deviceID, _ := c.Locals("device_id").(string)
	if deviceID == "" {
		return h.anonymous(c, "/")
	}
	if _, err := h.owned(c, deviceID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), SettleTimeout)
	defer cancel()
	if err := h.manager.Reload(ctx, deviceID); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return h.settled(c, deviceID)
}

// owned returns the device if the caller may act on it.
func (h *Handler) owned(c *fiber.Ctx, deviceID string) (*Device, error) {
	d, err := h.manager.Device(deviceID)
	if err != nil {
		return nil, fiber.NewError(statusFor(err), err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	for _, id := range []string{idOf(d.Gate.Holder()), idOf(d.Gate.State().Identity)} {
		if id != "" && id != uid {
			return nil, fiber.NewError(http.StatusUnauthorized, "sign in on this device to continue")
		}
	}
	return d, nil
}

func (h *Handler) settled(c *fiber.Ctx, deviceID string) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), SettleTimeout)
	defer cancel()
	view, err := h.manager.Settle(ctx, deviceID)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(visible(c, view))
}

func (h *Handler) anonymous(c *fiber.Ctx, path string) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), SettleTimeout)
	defer cancel()
	view, err := h.manager.Anonymous(ctx, path)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(view)
}

// visible hides the account behind v from anyone but its owner.
func visible(c *fiber.Ctx, v View) View {
	if v.UserID == "" {
		return v
	}
	if uid, _ := c.Locals("user_id").(string); uid == v.UserID {
		return v
	}
	return v.Public()
}

func idOf(id *identity.Identity) string {
	if id == nil {
		return ""
	}
	return id.ID
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDeviceRequired):
		return http.StatusBadRequest
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
