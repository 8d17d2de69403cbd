package fares

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const heartbeatInterval = 15 * time.Second

// Handler exposes route HTTP endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds a fares HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// routeRequest accepts the fare as any JSON number; fractional shillings are
// rejected.
type routeRequest struct {
	Description string  `json:"description"`
	Fare        float64 `json:"fare"`
}

func (r routeRequest) input() (Input, error) {
	if strings.TrimSpace(r.Description) == "" {
		return Input{}, ErrEmptyDescription
	}
	if r.Fare <= 0 || r.Fare != math.Trunc(r.Fare) || r.Fare > math.MaxInt32 {
		return Input{}, ErrInvalidFare
	}
	return Input{Description: r.Description, Fare: int64(r.Fare)}, nil
}

// List returns the caller's routes.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	routes, err := h.service.List(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(statusFor(err), messageFor(err))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"routes": routes})
}

// Create adds a route.
func (h *Handler) Create(c *fiber.Ctx) error {
	in, err := parse(c)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	route, err := h.service.Add(c.UserContext(), uid, in)
	if err != nil {
		return fiber.NewError(statusFor(err), messageFor(err))
	}
	return c.Status(http.StatusCreated).JSON(route)
}

// Update edits a route.
func (h *Handler) Update(c *fiber.Ctx) error {
	in, err := parse(c)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	route, err := h.service.Update(c.UserContext(), uid, c.Params("routeId"), in)
	if err != nil {
		return fiber.NewError(statusFor(err), messageFor(err))
	}
	return c.Status(http.StatusOK).JSON(route)
}

// Delete removes a route.
func (h *Handler) Delete(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if err := h.service.Delete(c.UserContext(), uid, c.Params("routeId")); err != nil {
		return fiber.NewError(statusFor(err), messageFor(err))
	}
	return c.SendStatus(http.StatusNoContent)
}

// Stream serves route snapshots as server-sent events until the client goes
// away or the service closes.
func (h *Handler) Stream(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	// The stream writer outlives the handler, so it cannot use the request
	// context.
	ctx, cancel := context.WithCancel(context.Background())
	snapshots, err := h.service.Watch(ctx, uid)
	if err != nil {
		cancel()
		return fiber.NewError(http.StatusServiceUnavailable, "Route updates are unavailable.")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	logger := h.logger

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case routes, ok := <-snapshots:
				if !ok {
					return
				}
				data, err := json.Marshal(routes)
				if err != nil {
					if logger != nil {
						logger.Error("encode route snapshot", slog.Any("error", err))
					}
					return
				}
				fmt.Fprintf(w, "event: routes\ndata: %s\n\n", data)
			case <-heartbeat.C:
				fmt.Fprint(w, ": heartbeat\n\n")
			}
			if err := w.Flush(); err != nil {
				// Client disconnected.
				return
			}
		}
	})
	return nil
}

func parse(c *fiber.Ctx) (Input, error) {
	var req routeRequest
	if err := c.BodyParser(&req); err != nil {
		return Input{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	in, err := req.input()
	if err != nil {
		return Input{}, fiber.NewError(http.StatusBadRequest, messageFor(err))
	}
	return in, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrEmptyDescription), errors.Is(err, ErrInvalidFare):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, ErrEmptyDescription):
		return "Route description cannot be empty."
	case errors.Is(err, ErrInvalidFare):
		return "Please enter a valid, positive number for the fare."
	case errors.Is(err, ErrNotFound):
		return "Route not found."
	default:
		return "Failed to save route. Please try again."
	}
}
