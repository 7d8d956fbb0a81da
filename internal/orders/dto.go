package orders

import (
	"time"

	"github.com/google/uuid"
)

type CreateOrderRequest struct {
	Items        []CreateItemRequest `json:"items" validate:"required,min=1,dive"`
	Address      Address             `json:"address"`
	DeliveryDate time.Time           `json:"delivery_date" validate:"required"`
	Notes        *string             `json:"notes,omitempty"`
}

type CreateItemRequest struct {
	ProductRef string `json:"product_ref" validate:"required,max=100"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice  int64  `json:"unit_price" validate:"gte=0"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

type AssignRequest struct {
	WorkerID uuid.UUID `json:"worker_id" validate:"required"`
}

type PaymentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type RatingRequest struct {
	Score   int    `json:"score" validate:"required,min=1,max=5"`
	Comment string `json:"comment,omitempty" validate:"max=500"`
}

// ListFilter narrows admin order listings.
type ListFilter struct {
	Status  *Status
	Page    int
	PerPage int
}
