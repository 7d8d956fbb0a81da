package cash

import "github.com/google/uuid"

// ReportRequest is the worker-submitted shortage report body.
type ReportRequest struct {
	ExpectedAmount int64       `json:"expected_amount" validate:"gte=0"`
	ActualAmount   int64       `json:"actual_amount" validate:"gte=0"`
	Reason         string      `json:"reason" validate:"required"`
	OrderIDs       []uuid.UUID `json:"order_ids,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
}

// ResolveRequest is the admin resolution body.
type ResolveRequest struct {
	Resolution string  `json:"resolution" validate:"required,oneof=paid deducted waived"`
	Notes      *string `json:"notes,omitempty"`
}

// CreateGuidelineRequest is the admin guideline body.
type CreateGuidelineRequest struct {
	Title       string `json:"title" validate:"required"`
	Body        string `json:"body" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Priority    string `json:"priority" validate:"required,oneof=low medium high"`
	RequiresAck bool   `json:"requires_ack"`
}

// ListFilter narrows shortage listings.
type ListFilter struct {
	WorkerID *uuid.UUID
	Status   *ShortageStatus
	Page     int
	PerPage  int
}
