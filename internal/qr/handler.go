package qr

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/naulify/naulify/internal/profile"
)

// ProfileReader loads the caller's profile.
type ProfileReader interface {
	Get(ctx context.Context, uid string) (profile.Profile, error)
}

// Handler serves the caller's payment QR code.
type Handler struct {
	profiles ProfileReader
	baseURL  string
}

// NewHandler builds a QR handler producing links under baseURL.
func NewHandler(profiles ProfileReader, baseURL string) *Handler {
	return &Handler{profiles: profiles, baseURL: baseURL}
}

// Link returns the payment link and its payload.
func (h *Handler) Link(c *fiber.Ctx) error {
	p, err := h.profile(c)
	if err != nil {
		return err
	}
	link, err := PayURL(h.baseURL, p)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "Could not generate QR code data.")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"url":   link,
		"plate": p.VehicleRegistration,
		"psvId": p.UID,
	})
}

// Image returns the QR code as a PNG. ?size= overrides the default.
func (h *Handler) Image(c *fiber.Ctx) error {
	p, err := h.profile(c)
	if err != nil {
		return err
	}
	size := DefaultSize
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			return fiber.NewError(http.StatusBadRequest, "size must be between 64 and 2048")
		}
		size = n
	}
	link, err := PayURL(h.baseURL, p)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "Could not generate QR code data.")
	}
	img, err := PNG(link, size)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "Could not generate QR code data.")
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Status(http.StatusOK).Send(img)
}

// PosterPage returns the printable HTML poster.
func (h *Handler) PosterPage(c *fiber.Ctx) error {
	p, err := h.profile(c)
	if err != nil {
		return err
	}
	page, err := Poster(h.baseURL, p)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "An error occurred while preparing the document.")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(http.StatusOK).Send(page)
}

func (h *Handler) profile(c *fiber.Ctx) (profile.Profile, error) {
	uid, _ := c.Locals("user_id").(string)
	p, err := h.profiles.Get(c.UserContext(), uid)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return profile.Profile{}, fiber.NewError(http.StatusNotFound, "Complete onboarding to get a payment code.")
	case err != nil:
		return profile.Profile{}, fiber.NewError(http.StatusServiceUnavailable, "Could not load your profile.")
	}
	return p, nil
}
