package cash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sabeel-delivery/sabeel/internal/platform/db"
)

// Repository persists shortages and guidelines. Resolve is a conditional
// single-shot update so a shortage can leave pending exactly once no matter
// how many admins race on it.
type Repository interface {
	CreateShortage(ctx context.Context, s *Shortage) error
	GetShortage(ctx context.Context, id uuid.UUID) (*Shortage, error)
	ResolveShortage(ctx context.Context, id uuid.UUID, resolution Resolution, resolverID uuid.UUID, notes *string, at time.Time) (*Shortage, error)
	ListShortages(ctx context.Context, f ListFilter) ([]Shortage, int, error)

	// Scan queries used by the alert jobs. All read-only.
	PendingReportedBetween(ctx context.Context, from, to time.Time) ([]Shortage, error)
	PendingLarge(ctx context.Context, threshold int64) ([]Shortage, error)
	PendingOlderThan(ctx context.Context, cutoff time.Time) ([]Shortage, error)
	WorkerReportCounts(ctx context.Context, since time.Time) (map[uuid.UUID]int, error)

	CreateGuideline(ctx context.Context, g *Guideline) error
	GetGuideline(ctx context.Context, id uuid.UUID) (*Guideline, error)
	ListGuidelines(ctx context.Context) ([]Guideline, error)
	Acknowledge(ctx context.Context, guidelineID, workerID uuid.UUID, at time.Time) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const shortageColumns = `id, worker_id, expected_amount, actual_amount, reason, notes,
	status, resolution, resolved_by, resolved_at, date, created_at`

func (r *repository) CreateShortage(ctx context.Context, s *Shortage) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO cash_shortages (id, worker_id, expected_amount, actual_amount,
				reason, notes, status, date, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			s.ID, s.WorkerID, s.ExpectedAmount, s.ActualAmount,
			s.Reason, s.Notes, s.Status, s.Date, s.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert shortage: %w", err)
		}
		for _, orderID := range s.OrderIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO shortage_orders (shortage_id, order_id)
				VALUES ($1, $2)`, s.ID, orderID)
			if err != nil {
				return fmt.Errorf("insert shortage order link: %w", err)
			}
		}
		return nil
	})
}

func (r *repository) GetShortage(ctx context.Context, id uuid.UUID) (*Shortage, error) {
	s, err := scanShortage(r.pool.QueryRow(ctx,
		`SELECT `+shortageColumns+` FROM cash_shortages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT order_id FROM shortage_orders WHERE shortage_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID uuid.UUID
		if err := rows.Scan(&orderID); err != nil {
			return nil, err
		}
		s.OrderIDs = append(s.OrderIDs, orderID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repository) ResolveShortage(ctx context.Context, id uuid.UUID, resolution Resolution, resolverID uuid.UUID, notes *string, at time.Time) (*Shortage, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cash_shortages SET
			status = $2, resolution = $3, resolved_by = $4, resolved_at = $5,
			notes = COALESCE($6, notes)
		WHERE id = $1 AND status = $7`,
		id, ShortageResolved, resolution, resolverID, at, notes, ShortagePending)
	if err != nil {
		return nil, fmt.Errorf("resolve shortage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM cash_shortages WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyResolved
	}
	return r.GetShortage(ctx, id)
}

func (r *repository) ListShortages(ctx context.Context, f ListFilter) ([]Shortage, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if f.WorkerID != nil {
		args = append(args, *f.WorkerID)
		where += fmt.Sprintf(` AND worker_id = $%d`, len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cash_shortages`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	query := `SELECT ` + shortageColumns + ` FROM cash_shortages` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	list, err := r.queryShortages(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *repository) PendingReportedBetween(ctx context.Context, from, to time.Time) ([]Shortage, error) {
	return r.queryShortages(ctx, `
		SELECT `+shortageColumns+` FROM cash_shortages
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`, ShortagePending, from, to)
}

func (r *repository) PendingLarge(ctx context.Context, threshold int64) ([]Shortage, error) {
	return r.queryShortages(ctx, `
		SELECT `+shortageColumns+` FROM cash_shortages
		WHERE status = $1 AND expected_amount - actual_amount >= $2
		ORDER BY created_at`, ShortagePending, threshold)
}

func (r *repository) PendingOlderThan(ctx context.Context, cutoff time.Time) ([]Shortage, error) {
	return r.queryShortages(ctx, `
		SELECT `+shortageColumns+` FROM cash_shortages
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at`, ShortagePending, cutoff)
}

func (r *repository) WorkerReportCounts(ctx context.Context, since time.Time) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT worker_id, COUNT(*) FROM cash_shortages
		WHERE created_at >= $1
		GROUP BY worker_id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var workerID uuid.UUID
		var n int
		if err := rows.Scan(&workerID, &n); err != nil {
			return nil, err
		}
		counts[workerID] = n
	}
	return counts, rows.Err()
}

func (r *repository) queryShortages(ctx context.Context, query string, args ...any) ([]Shortage, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Shortage
	for rows.Next() {
		s, err := scanShortage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanShortage(row pgx.Row) (*Shortage, error) {
	var s Shortage
	err := row.Scan(&s.ID, &s.WorkerID, &s.ExpectedAmount, &s.ActualAmount,
		&s.Reason, &s.Notes, &s.Status, &s.Resolution, &s.ResolvedBy,
		&s.ResolvedAt, &s.Date, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.normalize()
	return &s, nil
}

func (r *repository) CreateGuideline(ctx context.Context, g *Guideline) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cash_guidelines (id, title, body, category, priority,
			requires_ack, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Title, g.Body, g.Category, g.Priority,
		g.RequiresAck, g.CreatedBy, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert guideline: %w", err)
	}
	return nil
}

func (r *repository) GetGuideline(ctx context.Context, id uuid.UUID) (*Guideline, error) {
	var g Guideline
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, body, category, priority, requires_ack, created_by, created_at
		FROM cash_guidelines WHERE id = $1`, id).
		Scan(&g.ID, &g.Title, &g.Body, &g.Category, &g.Priority,
			&g.RequiresAck, &g.CreatedBy, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGuidelineNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *repository) ListGuidelines(ctx context.Context) ([]Guideline, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, body, category, priority, requires_ack, created_by, created_at
		FROM cash_guidelines ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Guideline
	for rows.Next() {
		var g Guideline
		if err := rows.Scan(&g.ID, &g.Title, &g.Body, &g.Category, &g.Priority,
			&g.RequiresAck, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *repository) Acknowledge(ctx context.Context, guidelineID, workerID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO guideline_acks (guideline_id, worker_id, at)
		VALUES ($1, $2, $3)`, guidelineID, workerID, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyAcknowledged
		}
		return fmt.Errorf("insert acknowledgement: %w", err)
	}
	return nil
}
