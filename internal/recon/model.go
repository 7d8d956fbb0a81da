// Package recon builds read-only reconciliation reports over orders and
// cash shortages. It never mutates domain state.
package recon

import (
	"time"

	"github.com/google/uuid"
)

// CollectionEntry is one settled collection attributed to a worker.
type CollectionEntry struct {
	OrderID uuid.UUID `json:"order_id"`
	Amount  int64     `json:"amount"`
	PaidAt  time.Time `json:"paid_at"`
}

// WorkerDaily summarizes what one worker collected on one day.
type WorkerDaily struct {
	WorkerID       uuid.UUID         `json:"worker_id"`
	Date           string            `json:"date"`
	OrdersCount    int               `json:"orders_count"`
	TotalCollected int64             `json:"total_collected"`
	Collections    []CollectionEntry `json:"collections"`
}

// WorkerHistory is a worker's collection history over a date range.
type WorkerHistory struct {
	WorkerID       uuid.UUID         `json:"worker_id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	TotalCollected int64             `json:"total_collected"`
	Collections    []CollectionEntry `json:"collections"`
}

// WorkerTotal is one row of the admin cash report.
type WorkerTotal struct {
	WorkerID       uuid.UUID `json:"worker_id"`
	WorkerName     string    `json:"worker_name"`
	OrdersCount    int       `json:"orders_count"`
	TotalCollected int64     `json:"total_collected"`
}

// AdminReport aggregates collections across all workers for a range.
type AdminReport struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	Workers []WorkerTotal `json:"workers"`
	Summary ReportSummary `json:"summary"`
}

// ReportSummary is the grand-total block of the admin report.
type ReportSummary struct {
	WorkersCount int   `json:"workers_count"`
	OrdersCount  int   `json:"orders_count"`
	GrandTotal   int64 `json:"grand_total"`
}

// ReconRow is one worker's expected-vs-collected line for a day.
type ReconRow struct {
	WorkerID      uuid.UUID `json:"worker_id"`
	WorkerName    string    `json:"worker_name"`
	Expected      int64     `json:"expected"`
	Collected     int64     `json:"collected"`
	ShortageCount int       `json:"shortage_count"`
}

// DailyReconciliation is the per-worker expected-vs-collected report for
// one calendar day.
type DailyReconciliation struct {
	Date string     `json:"date"`
	Rows []ReconRow `json:"rows"`
}
