package payments

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type callbackRequest struct {
	MpesaReceiptNumber  string      `json:"mpesa_receipt_number"`
	AmountPaid          int64       `json:"amount_paid"`
	PaidAt              *time.Time  `json:"paid_at"`
	CommuterPhoneNumber string      `json:"commuter_phone_number"`
	PassengerCount      int         `json:"passenger_count"`
	Selections          []Selection `json:"selections"`
}

// Callback records a payment confirmation for the operator in the path.
func (h *Handler) Callback(c *fiber.Ctx) error {
	var req callbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	in := RecordInput{
		MpesaReceiptNumber:  req.MpesaReceiptNumber,
		AmountPaid:          req.AmountPaid,
		CommuterPhoneNumber: req.CommuterPhoneNumber,
		PassengerCount:      req.PassengerCount,
		Selections:          req.Selections,
	}
	if req.PaidAt != nil {
		in.PaidAt = *req.PaidAt
	}

	p, err := h.service.Record(c.UserContext(), c.Params("psvId"), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicatePayment):
			return fiber.NewError(http.StatusConflict, "duplicate payment")
		case errors.Is(err, ErrUnknownOperator):
			return fiber.NewError(http.StatusNotFound, "unknown operator")
		case errors.Is(err, ErrInvalidPayment):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(p)
}

// List returns the caller's payments between from and to (RFC3339). Missing
// bounds default to the current week.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	from, to := h.service.Window(Week)

	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return fiber.NewError(http.StatusBadRequest, "from must be an RFC3339 timestamp")
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return fiber.NewError(http.StatusBadRequest, "to must be an RFC3339 timestamp")
		}
	}

	payments, err := h.service.ListRange(c.UserContext(), uid, from, to)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			return fiber.NewError(http.StatusBadRequest, "from must not be after to")
		}
		return fiber.NewError(http.StatusInternalServerError, "Failed to load payments. Please try again.")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"from": from, "to": to, "payments": payments})
}

// Report returns the caller's earnings for ?timeframe=today|week|month.
func (h *Handler) Report(c *fiber.Ctx) error {
	tf, err := ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "timeframe must be today, week or month")
	}
	uid, _ := c.Locals("user_id").(string)
	report, err := h.service.Report(c.UserContext(), uid, tf)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "Failed to load report data. Please try again.")
	}
	return c.Status(http.StatusOK).JSON(report)
}
