package fares

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists an operator's routes.
type Repository interface {
	Insert(ctx context.Context, r Route) error
	Update(ctx context.Context, r Route) error
	Delete(ctx context.Context, ownerID, id string) error
	Get(ctx context.Context, ownerID, id string) (Route, error)
	// List returns the owner's routes, newest first.
	List(ctx context.Context, ownerID string) ([]Route, error)
}

// PostgresRepository stores routes in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, route Route) error {
	id, owner, err := parseIDs(route.ID, route.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO psv_routes (id, owner_id, description, fare, created_at)
        VALUES ($1, $2, $3, $4, $5)`, id, owner, route.Description, route.Fare, route.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) Update(ctx context.Context, route Route) error {
	id, owner, err := parseIDs(route.ID, route.OwnerID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE psv_routes SET description = $3, fare = $4
        WHERE id = $1 AND owner_id = $2`, id, owner, route.Description, route.Fare)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, routeID string) error {
	id, owner, err := parseIDs(routeID, ownerID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM psv_routes WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, routeID string) (Route, error) {
	routes, err := r.query(ctx, `SELECT id, owner_id, description, fare, created_at
        FROM psv_routes WHERE owner_id = $1 AND id = $2`, ownerID, routeID)
	if err != nil {
		return Route{}, err
	}
	if len(routes) == 0 {
		return Route{}, ErrNotFound
	}
	return routes[0], nil
}

func (r *PostgresRepository) List(ctx context.Context, ownerID string) ([]Route, error) {
	return r.query(ctx, `SELECT id, owner_id, description, fare, created_at
        FROM psv_routes WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
}

func (r *PostgresRepository) query(ctx context.Context, sql, ownerID string, rest ...string) ([]Route, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, nil
	}
	args := []any{owner}
	for _, s := range rest {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, nil
		}
		args = append(args, id)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Route
	for rows.Next() {
		var (
			route     Route
			id, owner uuid.UUID
			createdAt time.Time
		)
		if err := rows.Scan(&id, &owner, &route.Description, &route.Fare, &createdAt); err != nil {
			return nil, err
		}
		route.ID = id.String()
		route.OwnerID = owner.String()
		route.CreatedAt = createdAt.UTC()
		out = append(out, route)
	}
	return out, rows.Err()
}

func parseIDs(id, owner string) (uuid.UUID, uuid.UUID, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.New("invalid route id")
	}
	oid, err := uuid.Parse(owner)
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.New("invalid owner id")
	}
	return rid, oid, nil
}
