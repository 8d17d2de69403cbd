package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists profiles, one per user.
type Repository interface {
	Get(ctx context.Context, uid string) (Profile, error)
	Create(ctx context.Context, p Profile) error
	Update(ctx context.Context, p Profile) error
}

// PostgresRepository stores profiles in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get fetches the profile for uid. A missing row is ErrNotFound; any other
// failure is reported as ErrUnavailable.
func (r *PostgresRepository) Get(ctx context.Context, uid string) (Profile, error) {
	id, err := uuid.Parse(uid)
	if err != nil {
		return Profile{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT uid, owner_name, vehicle_registration, vehicle_type, phone_number, mpesa_short_code, created_at
        FROM psv_profiles WHERE uid = $1`, id)
	var (
		p         Profile
		pid       uuid.UUID
		vt        string
		createdAt time.Time
	)
	if err := row.Scan(&pid, &p.OwnerName, &p.VehicleRegistration, &vt, &p.PhoneNumber, &p.MpesaShortCode, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, unavailable(err)
	}
	p.UID = pid.String()
	p.VehicleType = VehicleType(vt)
	p.CreatedAt = createdAt.UTC()
	return p, nil
}

// Create inserts a profile.
func (r *PostgresRepository) Create(ctx context.Context, p Profile) error {
	id, err := uuid.Parse(p.UID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO psv_profiles (uid, owner_name, vehicle_registration, vehicle_type, phone_number, mpesa_short_code, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, p.OwnerName, p.VehicleRegistration, string(p.VehicleType), p.PhoneNumber, p.MpesaShortCode, p.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Update overwrites the mutable profile fields.
func (r *PostgresRepository) Update(ctx context.Context, p Profile) error {
	id, err := uuid.Parse(p.UID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE psv_profiles
        SET owner_name = $2, vehicle_registration = $3, vehicle_type = $4, phone_number = $5, mpesa_short_code = $6
        WHERE uid = $1`, id, p.OwnerName, p.VehicleRegistration, string(p.VehicleType), p.PhoneNumber, p.MpesaShortCode)
	if err != nil {
		return unavailable(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
