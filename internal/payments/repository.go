package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists payments.
type Repository interface {
	// Insert stores a payment. A receipt number seen before yields
	// ErrDuplicatePayment.
	Insert(ctx context.Context, p Payment) error
	// ListRange returns the owner's payments with from <= paid_at <= to,
	// newest first.
	ListRange(ctx context.Context, ownerID string, from, to time.Time) ([]Payment, error)
}

// PostgresRepository stores payments in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, p Payment) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("invalid payment id: %w", err)
	}
	owner, err := uuid.Parse(p.OwnerID)
	if err != nil {
		return ErrUnknownOperator
	}
	selections, err := json.Marshal(p.Selections)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO psv_payments
        (id, owner_id, amount_paid, paid_at, mpesa_receipt_number, commuter_phone_number, passenger_count, selections)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, owner, p.AmountPaid, p.PaidAt.UTC(), p.MpesaReceiptNumber, p.CommuterPhoneNumber, p.PassengerCount, selections)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicatePayment
		case "23503":
			return ErrUnknownOperator
		}
	}
	return err
}

func (r *PostgresRepository) ListRange(ctx context.Context, ownerID string, from, to time.Time) ([]Payment, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return []Payment{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, owner_id, amount_paid, paid_at, mpesa_receipt_number, commuter_phone_number, passenger_count, selections
        FROM psv_payments
        WHERE owner_id = $1 AND paid_at >= $2 AND paid_at <= $3
        ORDER BY paid_at DESC, id`, owner, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		var (
			p          Payment
			id, oid    uuid.UUID
			paidAt     time.Time
			selections []byte
		)
		if err := rows.Scan(&id, &oid, &p.AmountPaid, &paidAt, &p.MpesaReceiptNumber, &p.CommuterPhoneNumber, &p.PassengerCount, &selections); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(selections, &p.Selections); err != nil {
			return nil, fmt.Errorf("decode selections for payment %s: %w", id, err)
		}
		p.ID = id.String()
		p.OwnerID = oid.String()
		p.PaidAt = paidAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
