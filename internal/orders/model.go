// Package orders owns the order aggregate: item pricing, the delivery status
// state machine, and payment reconciliation derived from cash collections.
package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/sabeel-delivery/sabeel/internal/money"
)

// Status represents the delivery lifecycle of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions enumerates every legal status edge. Anything absent here,
// including self-transitions, is rejected.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// IsValid reports whether the status is a known lifecycle state.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0 && s.IsValid()
}

// CanTransition reports whether the edge from s to target is legal.
func (s Status) CanTransition(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// PaymentStatus is derived from (totalAmount, paidAmount); it is never stored
// independently except for the sticky cancelled marker.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
	// PaymentShortage labels collections that exceed the order total. The
	// naming is inherited from the settlement workflow and is under product
	// review; do not repurpose it for under-collection, which stays
	// partially_paid.
	PaymentShortage  PaymentStatus = "shortage"
	PaymentCancelled PaymentStatus = "cancelled"
)

// DerivePayment computes the shortage amount and payment status for a given
// total and cumulative paid amount.
func DerivePayment(totalAmount, paidAmount int64) (shortage int64, status PaymentStatus) {
	shortage = totalAmount - paidAmount
	if shortage < 0 {
		shortage = 0
	}
	switch {
	case paidAmount == 0:
		status = PaymentPending
	case paidAmount < totalAmount:
		status = PaymentPartiallyPaid
	case paidAmount == totalAmount:
		status = PaymentPaid
	default:
		status = PaymentShortage
	}
	return shortage, status
}

// Item is one priced line of an order.
type Item struct {
	ProductRef string `json:"product_ref" db:"product_ref"`
	Quantity   int64  `json:"quantity" db:"quantity"`
	UnitPrice  int64  `json:"unit_price" db:"unit_price"`
	LineTotal  int64  `json:"line_total" db:"line_total"`
}

// TotalAmount returns the rounded sum of all line totals. The order total is
// always this value; it is never set directly.
func TotalAmount(items []Item, step int64) int64 {
	var sum int64
	for _, item := range items {
		sum += money.LineTotal(item.Quantity, item.UnitPrice)
	}
	return money.RoundToStep(sum, step)
}

// StatusHistoryEntry is one audit-trail record. History is append-only and
// never reordered.
type StatusHistoryEntry struct {
	Status Status    `json:"status" db:"status"`
	Note   string    `json:"note" db:"note"`
	At     time.Time `json:"at" db:"at"`
}

// PaymentDetails records the last collection against the order.
type PaymentDetails struct {
	CollectedBy *uuid.UUID `json:"collected_by,omitempty" db:"collected_by"`
	PaidAt      *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	GatewayRef  *string    `json:"gateway_ref,omitempty" db:"gateway_ref"`
}

// Address is delivery routing data, pass-through for this engine.
type Address struct {
	Street   string `json:"street" db:"street"`
	Building string `json:"building" db:"building"`
	Floor    string `json:"floor" db:"floor"`
	Details  string `json:"details" db:"details"`
}

// Rating is customer feedback on a completed order, pass-through.
type Rating struct {
	Score     int       `json:"score" db:"score"`
	Comment   string    `json:"comment" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Order is the aggregate root. Mutations happen only through the service
// operations; Version backs the optimistic concurrency check.
type Order struct {
	ID             uuid.UUID            `json:"id" db:"id"`
	CustomerID     uuid.UUID            `json:"customer_id" db:"customer_id"`
	WorkerID       *uuid.UUID           `json:"worker_id,omitempty" db:"worker_id"`
	Items          []Item               `json:"items" db:"-"`
	Status         Status               `json:"status" db:"status"`
	TotalAmount    int64                `json:"total_amount" db:"total_amount"`
	PaymentStatus  PaymentStatus        `json:"payment_status" db:"payment_status"`
	PaidAmount     int64                `json:"paid_amount" db:"paid_amount"`
	ShortageAmount int64                `json:"shortage_amount" db:"shortage_amount"`
	PaymentDetails PaymentDetails       `json:"payment_details" db:"-"`
	StatusHistory  []StatusHistoryEntry `json:"status_history,omitempty" db:"-"`
	Address        Address              `json:"address" db:"-"`
	DeliveryDate   time.Time            `json:"delivery_date" db:"delivery_date"`
	Notes          *string              `json:"notes,omitempty" db:"notes"`
	Rating         *Rating              `json:"rating,omitempty" db:"-"`
	Version        int64                `json:"version" db:"version"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
}
