// Package workers exposes the read-only slice of the user directory the
// order and cash engines need: field worker lookup for assignment checks and
// report labelling. User management itself lives in another service.
package workers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the worker record does not exist.
var ErrNotFound = errors.New("worker not found")

// Worker is a field worker able to deliver orders and collect cash.
type Worker struct {
	ID     uuid.UUID `json:"id" db:"id"`
	Name   string    `json:"name" db:"name"`
	Phone  string    `json:"phone" db:"phone"`
	Active bool      `json:"active" db:"active"`
}

// Directory looks workers up.
type Directory interface {
	Get(ctx context.Context, id uuid.UUID) (Worker, error)
	ListActive(ctx context.Context) ([]Worker, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Directory backed by the workers table.
func NewRepository(pool *pgxpool.Pool) Directory {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Worker, error) {
	var w Worker
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, phone, active FROM workers WHERE id = $1`, id,
	).Scan(&w.ID, &w.Name, &w.Phone, &w.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Worker{}, ErrNotFound
		}
		return Worker{}, err
	}
	return w, nil
}

func (r *repository) ListActive(ctx context.Context) ([]Worker, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, phone, active FROM workers WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Worker
	for rows.Next() {
		var w Worker
		if err := rows.Scan(&w.ID, &w.Name, &w.Phone, &w.Active); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
