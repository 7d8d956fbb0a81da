package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sabeel-delivery/sabeel/internal/platform/db"
)

// Repository persists order aggregates. Save performs a conditional write on
// the version column; callers retry on ErrVersionConflict.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	Save(ctx context.Context, o *Order, newHistory []StatusHistoryEntry) error
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	ListActiveByWorker(ctx context.Context, workerID uuid.UUID) ([]Order, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const orderColumns = `id, customer_id, worker_id, status, total_amount, payment_status,
	paid_amount, shortage_amount, collected_by, paid_at, gateway_ref,
	street, building, floor, details, delivery_date, notes,
	rating_score, rating_comment, rated_at, version, created_at, updated_at, completed_at`

func (r *repository) Create(ctx context.Context, o *Order) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, customer_id, status, total_amount, payment_status,
				paid_amount, shortage_amount, street, building, floor, details,
				delivery_date, notes, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
			o.ID, o.CustomerID, o.Status, o.TotalAmount, o.PaymentStatus,
			o.PaidAmount, o.ShortageAmount,
			o.Address.Street, o.Address.Building, o.Address.Floor, o.Address.Details,
			o.DeliveryDate, o.Notes, o.Version, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for i, item := range o.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO order_items (order_id, line_no, product_ref, quantity, unit_price, line_total)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				o.ID, i+1, item.ProductRef, item.Quantity, item.UnitPrice, item.LineTotal)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		for _, entry := range o.StatusHistory {
			if err := insertHistory(ctx, tx, o.ID, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, entry StatusHistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, note, at)
		VALUES ($1, $2, $3, $4)`,
		orderID, entry.Status, entry.Note, entry.At)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	itemRows, err := r.pool.Query(ctx, `
		SELECT product_ref, quantity, unit_price, line_total
		FROM order_items WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item Item
		if err := itemRows.Scan(&item.ProductRef, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	histRows, err := r.pool.Query(ctx, `
		SELECT status, note, at FROM order_status_history
		WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer histRows.Close()
	for histRows.Next() {
		var entry StatusHistoryEntry
		if err := histRows.Scan(&entry.Status, &entry.Note, &entry.At); err != nil {
			return nil, err
		}
		o.StatusHistory = append(o.StatusHistory, entry)
	}
	if err := histRows.Err(); err != nil {
		return nil, err
	}

	return o, nil
}

func (r *repository) Save(ctx context.Context, o *Order, newHistory []StatusHistoryEntry) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET
				worker_id = $3, status = $4, payment_status = $5,
				paid_amount = $6, shortage_amount = $7,
				collected_by = $8, paid_at = $9, gateway_ref = $10,
				notes = $11, rating_score = $12, rating_comment = $13, rated_at = $14,
				completed_at = $15, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2`,
			o.ID, o.Version,
			o.WorkerID, o.Status, o.PaymentStatus,
			o.PaidAmount, o.ShortageAmount,
			o.PaymentDetails.CollectedBy, o.PaymentDetails.PaidAt, o.PaymentDetails.GatewayRef,
			o.Notes, ratingScore(o.Rating), ratingComment(o.Rating), ratingAt(o.Rating),
			o.CompletedAt)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		for _, entry := range newHistory {
			if err := insertHistory(ctx, tx, o.ID, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.Version++
	o.StatusHistory = append(o.StatusHistory, newHistory...)
	return nil
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	where := ""
	args := []any{}
	if f.Status != nil {
		where = "WHERE status = $1"
		args = append(args, *f.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	out, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`,
		customerID)
}

func (r *repository) ListActiveByWorker(ctx context.Context, workerID uuid.UUID) ([]Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE worker_id = $1 AND status IN ('assigned', 'in_progress')
		 ORDER BY created_at DESC`,
		workerID)
}

func (r *repository) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var score *int
	var comment *string
	var ratedAt *time.Time
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.WorkerID, &o.Status, &o.TotalAmount, &o.PaymentStatus,
		&o.PaidAmount, &o.ShortageAmount,
		&o.PaymentDetails.CollectedBy, &o.PaymentDetails.PaidAt, &o.PaymentDetails.GatewayRef,
		&o.Address.Street, &o.Address.Building, &o.Address.Floor, &o.Address.Details,
		&o.DeliveryDate, &o.Notes,
		&score, &comment, &ratedAt,
		&o.Version, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if score != nil {
		o.Rating = &Rating{Score: *score}
		if comment != nil {
			o.Rating.Comment = *comment
		}
		if ratedAt != nil {
			o.Rating.CreatedAt = *ratedAt
		}
	}
	return &o, nil
}

func ratingScore(r *Rating) *int {
	if r == nil {
		return nil
	}
	return &r.Score
}

func ratingComment(r *Rating) *string {
	if r == nil {
		return nil
	}
	return &r.Comment
}

func ratingAt(r *Rating) *time.Time {
	if r == nil {
		return nil
	}
	return &r.CreatedAt
}
