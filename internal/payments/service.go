package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/naulify/naulify/internal/logging"
	"github.com/naulify/naulify/internal/notification"
	"github.com/naulify/naulify/internal/profile"
)

// Bounds on one payment. They keep the total within int64.
const (
	MaxQuantity = 1000
	MaxFare     = math.MaxInt32
)

var (
	ErrDuplicatePayment = errors.New("duplicate payment")
	ErrInvalidPayment   = errors.New("invalid payment")
	ErrUnknownOperator  = errors.New("unknown operator")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrInvalidRange     = errors.New("invalid date range")
)

// OperatorDirectory resolves the operator a payment is for.
type OperatorDirectory interface {
	Get(ctx context.Context, uid string) (profile.Profile, error)
}

// Service records operator payments and builds earnings reports.
type Service struct {
	repo      Repository
	operators OperatorDirectory
	notifier  notification.Notifier
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a payment service. Reports are computed in loc.
func NewService(repo Repository, operators OperatorDirectory, notifier notification.Notifier, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		operators: operators,
		notifier:  notifier,
		loc:       loc,
		logger:    logging.Component(logger, "payments"),
		now:       time.Now,
	}
}

// Record stores a confirmed payment for the operator and notifies them.
// Receipt numbers are unique across all operators.
func (s *Service) Record(ctx context.Context, ownerID string, in RecordInput) (Payment, error) {
	p, err := s.normalize(ownerID, in)
	if err != nil {
		return Payment{}, err
	}

	operator, err := s.operators.Get(ctx, ownerID)
	if errors.Is(err, profile.ErrNotFound) {
		return Payment{}, ErrUnknownOperator
	}
	if err != nil {
		return Payment{}, err
	}

	if err := s.repo.Insert(ctx, p); err != nil {
		return Payment{}, err
	}
	s.logger.InfoContext(ctx, "payment recorded",
		slog.String("owner_id", ownerID),
		slog.String("receipt", p.MpesaReceiptNumber),
		slog.Int64("amount", p.AmountPaid),
	)

	if s.notifier != nil {
		body := fmt.Sprintf("Received %s from %s for %s (%d passengers).",
			FormatCurrency(p.AmountPaid), p.CommuterPhoneNumber, p.Summary(), p.PassengerCount)
		if err := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPaymentReceived,
			Destination: operator.PhoneNumber,
			Subject:     "Payment received",
			Body:        body,
		}); err != nil {
			s.logger.Warn("payment notification failed", slog.String("receipt", p.MpesaReceiptNumber), slog.Any("error", err))
		}
	}
	return p, nil
}

// ListRange returns the owner's payments with from <= paid_at <= to, newest
// first.
func (s *Service) ListRange(ctx context.Context, ownerID string, from, to time.Time) ([]Payment, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	return s.repo.ListRange(ctx, ownerID, from, to)
}

// Report builds the earnings report for the timeframe ending now.
func (s *Service) Report(ctx context.Context, ownerID string, tf Timeframe) (Report, error) {
	now := s.now().In(s.loc)
	from, to := tf.Window(now)
	payments, err := s.repo.ListRange(ctx, ownerID, from, to)
	if err != nil {
		return Report{}, err
	}
	return BuildReport(tf, now, payments), nil
}

// Window exposes the report window for tf in the service's timezone.
func (s *Service) Window(tf Timeframe) (time.Time, time.Time) {
	return tf.Window(s.now().In(s.loc))
}

func (s *Service) normalize(ownerID string, in RecordInput) (Payment, error) {
	receipt := strings.ToUpper(strings.TrimSpace(in.MpesaReceiptNumber))
	if receipt == "" {
		return Payment{}, fmt.Errorf("%w: receipt number is required", ErrInvalidPayment)
	}
	if strings.TrimSpace(ownerID) == "" {
		return Payment{}, ErrUnknownOperator
	}

	var passengers int
	var total int64
	for _, sel := range in.Selections {
		if strings.TrimSpace(sel.Description) == "" || sel.Quantity <= 0 || sel.Fare <= 0 {
			return Payment{}, fmt.Errorf("%w: bad selection %+v", ErrInvalidPayment, sel)
		}
		if sel.Quantity > MaxQuantity || sel.Fare > MaxFare {
			return Payment{}, fmt.Errorf("%w: selection out of range %+v", ErrInvalidPayment, sel)
		}
		passengers += sel.Quantity
		if passengers > MaxQuantity {
			return Payment{}, fmt.Errorf("%w: more than %d passengers", ErrInvalidPayment, MaxQuantity)
		}
		total += int64(sel.Quantity) * sel.Fare
	}

	amount := in.AmountPaid
	if amount == 0 {
		amount = total
	}
	if amount <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if amount > MaxQuantity*MaxFare {
		return Payment{}, fmt.Errorf("%w: amount out of range", ErrInvalidPayment)
	}
	if in.PassengerCount > MaxQuantity {
		return Payment{}, fmt.Errorf("%w: more than %d passengers", ErrInvalidPayment, MaxQuantity)
	}
	if in.PassengerCount > 0 {
		passengers = in.PassengerCount
	}

	selections := make([]Selection, len(in.Selections))
	copy(selections, in.Selections)

	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	return Payment{
		ID:                  uuid.New().String(),
		OwnerID:             ownerID,
		AmountPaid:          amount,
		PaidAt:              paidAt.UTC(),
		MpesaReceiptNumber:  receipt,
		CommuterPhoneNumber: strings.TrimSpace(in.CommuterPhoneNumber),
		PassengerCount:      passengers,
		Selections:          selections,
	}, nil
}
