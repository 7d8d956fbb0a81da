// Package cash tracks expected-vs-collected mismatches reported by delivery
// workers and the admin workflow that resolves them.
package cash

import (
	"time"

	"github.com/google/uuid"
)

// ShortageStatus is the lifecycle state of a reported shortage.
type ShortageStatus string

const (
	ShortagePending  ShortageStatus = "pending"
	ShortageResolved ShortageStatus = "resolved"

	// shortageDeducted is a legacy terminal marker some historic rows carry.
	// It is accepted on read and normalized to resolved + ResolutionDeducted,
	// never written back.
	shortageDeducted ShortageStatus = "deducted"
)

// Resolution is the admin-chosen disposition of a resolved shortage.
type Resolution string

const (
	ResolutionPaid     Resolution = "paid"
	ResolutionDeducted Resolution = "deducted"
	ResolutionWaived   Resolution = "waived"
)

// IsValid reports whether r is a known disposition.
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionPaid, ResolutionDeducted, ResolutionWaived:
		return true
	}
	return false
}

// Shortage records one worker report of cash that should have been collected
// but was not. ShortageAmount is derived from the two supplied amounts and
// recomputed on every write, never stored independently of them.
type Shortage struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	WorkerID       uuid.UUID      `json:"worker_id" db:"worker_id"`
	OrderIDs       []uuid.UUID    `json:"order_ids,omitempty" db:"-"`
	ExpectedAmount int64          `json:"expected_amount" db:"expected_amount"`
	ActualAmount   int64          `json:"actual_amount" db:"actual_amount"`
	ShortageAmount int64          `json:"shortage_amount" db:"shortage_amount"`
	Reason         string         `json:"reason" db:"reason"`
	Notes          *string        `json:"notes,omitempty" db:"notes"`
	Status         ShortageStatus `json:"status" db:"status"`
	Resolution     *Resolution    `json:"resolution,omitempty" db:"resolution"`
	ResolvedBy     *uuid.UUID     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
	Date           time.Time      `json:"date" db:"date"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Gap returns the derived shortage: expected minus actual. It may be
// negative when a worker hands in more than expected.
func Gap(expected, actual int64) int64 {
	return expected - actual
}

// normalize folds the legacy deducted status into the resolved
// representation so callers only ever see pending or resolved.
func (s *Shortage) normalize() {
	if s.Status == shortageDeducted {
		s.Status = ShortageResolved
		if s.Resolution == nil {
			deducted := ResolutionDeducted
			s.Resolution = &deducted
		}
	}
	s.ShortageAmount = Gap(s.ExpectedAmount, s.ActualAmount)
}

// Guideline is an admin-authored cash-handling instruction pushed to
// workers, optionally requiring a one-time acknowledgement.
type Guideline struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Body        string    `json:"body" db:"body"`
	Category    string    `json:"category" db:"category"`
	Priority    string    `json:"priority" db:"priority"`
	RequiresAck bool      `json:"requires_ack" db:"requires_ack"`
	CreatedBy   uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
