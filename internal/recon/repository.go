package recon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the aggregation queries the report service consumes.
type Repository interface {
	WorkerCollections(ctx context.Context, workerID uuid.UUID, from, to time.Time) ([]CollectionEntry, error)
	WorkerTotals(ctx context.Context, from, to time.Time) ([]WorkerTotal, error)
	DailyRows(ctx context.Context, from, to time.Time) ([]ReconRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WorkerCollections(ctx context.Context, workerID uuid.UUID, from, to time.Time) ([]CollectionEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, paid_amount, paid_at
		FROM orders
		WHERE collected_by = $1 AND paid_at >= $2 AND paid_at < $3
		ORDER BY paid_at`, workerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CollectionEntry
	for rows.Next() {
		var entry CollectionEntry
		if err := rows.Scan(&entry.OrderID, &entry.Amount, &entry.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *repository) WorkerTotals(ctx context.Context, from, to time.Time) ([]WorkerTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.collected_by, COALESCE(w.name, ''), COUNT(*), COALESCE(SUM(o.paid_amount), 0)
		FROM orders o
		LEFT JOIN workers w ON w.id = o.collected_by
		WHERE o.collected_by IS NOT NULL AND o.paid_at >= $1 AND o.paid_at < $2
		GROUP BY o.collected_by, w.name
		ORDER BY SUM(o.paid_amount) DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkerTotal
	for rows.Next() {
		var wt WorkerTotal
		if err := rows.Scan(&wt.WorkerID, &wt.WorkerName, &wt.OrdersCount, &wt.TotalCollected); err != nil {
			return nil, err
		}
		out = append(out, wt)
	}
	return out, rows.Err()
}

func (r *repository) DailyRows(ctx context.Context, from, to time.Time) ([]ReconRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.worker_id, COALESCE(w.name, ''),
			COALESCE(c.expected, 0), COALESCE(c.collected, 0), COALESCE(s.cnt, 0)
		FROM (
			SELECT collected_by AS worker_id,
				SUM(total_amount) AS expected,
				SUM(paid_amount) AS collected
			FROM orders
			WHERE collected_by IS NOT NULL AND paid_at >= $1 AND paid_at < $2
			GROUP BY collected_by
		) c
		LEFT JOIN workers w ON w.id = c.worker_id
		LEFT JOIN (
			SELECT worker_id, COUNT(*) AS cnt
			FROM cash_shortages
			WHERE created_at >= $1 AND created_at < $2
			GROUP BY worker_id
		) s ON s.worker_id = c.worker_id
		ORDER BY w.name`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReconRow
	for rows.Next() {
		var row ReconRow
		if err := rows.Scan(&row.WorkerID, &row.WorkerName, &row.Expected, &row.Collected, &row.ShortageCount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
