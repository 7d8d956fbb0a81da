package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sabeel-delivery/sabeel/internal/money"
	"github.com/sabeel-delivery/sabeel/internal/notify"
	"github.com/sabeel-delivery/sabeel/internal/shared"
	"github.com/sabeel-delivery/sabeel/internal/workers"
)

// casRetries bounds the optimistic-concurrency retry loop. Conflicts on a
// single order are rare; exhausting the budget surfaces ErrVersionConflict.
const casRetries = 5

// AuditRecorder captures admin-visible mutations. Satisfied by
// shared.AuditLogger; nil disables auditing.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig carries domain knobs.
type ServiceConfig struct {
	// RoundingStep is the cash denomination totals settle on.
	RoundingStep int64
}

// Service provides business logic for the order aggregate.
type Service struct {
	repo      Repository
	directory workers.Directory
	gateway   notify.Gateway
	audit     AuditRecorder
	logger    *slog.Logger
	cfg       ServiceConfig
	clock     func() time.Time
}

// NewService creates a new order service.
func NewService(repo Repository, directory workers.Directory, gateway notify.Gateway, audit AuditRecorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.RoundingStep <= 0 {
		cfg.RoundingStep = money.DefaultRoundingStep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		directory: directory,
		gateway:   gateway,
		audit:     audit,
		logger:    logger,
		cfg:       cfg,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, used by tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Create validates the items, computes the rounded total and stores a new
// pending order.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, customerID uuid.UUID) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	items := make([]Item, 0, len(req.Items))
	for _, ir := range req.Items {
		if ir.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, ir.ProductRef)
		}
		if ir.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidUnitPrice, ir.ProductRef)
		}
		items = append(items, Item{
			ProductRef: ir.ProductRef,
			Quantity:   ir.Quantity,
			UnitPrice:  ir.UnitPrice,
			LineTotal:  money.LineTotal(ir.Quantity, ir.UnitPrice),
		})
	}

	now := s.clock()
	total := TotalAmount(items, s.cfg.RoundingStep)
	shortage, payStatus := DerivePayment(total, 0)
	o := &Order{
		ID:             uuid.New(),
		CustomerID:     customerID,
		Items:          items,
		Status:         StatusPending,
		TotalAmount:    total,
		PaymentStatus:  payStatus,
		PaidAmount:     0,
		ShortageAmount: shortage,
		Address:        req.Address,
		DeliveryDate:   req.DeliveryDate,
		Notes:          req.Notes,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.emit(ctx, notify.Event{
		Audience: notify.AudienceAdmins,
		Type:     notify.EventNewOrder,
		Payload: map[string]any{
			"order_id":     o.ID,
			"customer_id":  o.CustomerID,
			"total_amount": o.TotalAmount,
		},
	})
	return o, nil
}

// Get returns one order with items and history.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns admin listings with a status filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	return s.repo.List(ctx, f)
}

// ListByCustomer returns a customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// ListActiveByWorker returns the worker's assigned and in-progress orders.
func (s *Service) ListActiveByWorker(ctx context.Context, workerID uuid.UUID) ([]Order, error) {
	return s.repo.ListActiveByWorker(ctx, workerID)
}

// TransitionStatus moves the order along a legal status edge. Illegal edges,
// including self-transitions and anything out of a terminal state, fail with
// ErrInvalidTransition and leave the order unchanged.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, target Status, note string, actor shared.Actor) (*Order, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	for attempt := 0; attempt < casRetries; attempt++ {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !o.Status.CanTransition(target) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
		}

		o.Status = target
		now := s.clock()
		switch target {
		case StatusCompleted:
			o.CompletedAt = &now
		case StatusCancelled:
			// Sticky: once cancelled the payment status never rederives.
			o.PaymentStatus = PaymentCancelled
		}

		var history []StatusHistoryEntry
		if note != "" {
			history = append(history, StatusHistoryEntry{Status: target, Note: note, At: now})
		}

		if err := s.repo.Save(ctx, o, history); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("transition status: %w", err)
		}

		s.recordAudit(ctx, actor, "order.status."+string(target), o.ID, map[string]any{"note": note})
		s.emit(ctx, notify.Event{
			Audience: notify.AudienceCustomer,
			Target:   o.CustomerID.String(),
			Type:     notify.EventOrderStatusUpdated,
			Payload: map[string]any{
				"order_id": o.ID,
				"status":   o.Status,
				"note":     note,
			},
		})
		return o, nil
	}
	return nil, fmt.Errorf("transition status: %w", ErrVersionConflict)
}

// AssignWorker binds an active worker to a confirmed order and moves it to
// assigned as one atomic unit.
func (s *Service) AssignWorker(ctx context.Context, orderID, workerID uuid.UUID, actor shared.Actor) (*Order, error) {
	worker, err := s.directory.Get(ctx, workerID)
	if err != nil {
		if errors.Is(err, workers.ErrNotFound) {
			return nil, ErrWorkerUnavailable
		}
		return nil, fmt.Errorf("lookup worker: %w", err)
	}
	if !worker.Active {
		return nil, ErrWorkerUnavailable
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusConfirmed {
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidOrderState, StatusConfirmed, o.Status)
		}

		now := s.clock()
		o.WorkerID = &worker.ID
		o.Status = StatusAssigned
		history := []StatusHistoryEntry{{
			Status: StatusAssigned,
			Note:   "assigned to " + worker.Name,
			At:     now,
		}}

		if err := s.repo.Save(ctx, o, history); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("assign worker: %w", err)
		}

		s.recordAudit(ctx, actor, "order.assign", o.ID, map[string]any{"worker_id": worker.ID})
		s.emit(ctx, notify.Event{
			Audience: notify.AudienceWorker,
			Target:   worker.ID.String(),
			Type:     notify.EventOrderAssigned,
			Payload: map[string]any{
				"order_id":      o.ID,
				"delivery_date": o.DeliveryDate,
				"total_amount":  o.TotalAmount,
			},
		})
		return o, nil
	}
	return nil, fmt.Errorf("assign worker: %w", ErrVersionConflict)
}

// RecordPayment applies a cumulative cash collection against the order and
// rederives the payment status. Concurrent calls on the same order serialize
// through the version check, so no collection is ever lost.
func (s *Service) RecordPayment(ctx context.Context, orderID uuid.UUID, amount int64, collectorID uuid.UUID) (*Order, error) {
	return s.recordPayment(ctx, orderID, amount, collectorID, false)
}

// RecordCashPayment is the cash-on-delivery entry point: the collected
// amount has to settle the order exactly.
func (s *Service) RecordCashPayment(ctx context.Context, orderID uuid.UUID, amount int64, collectorID uuid.UUID) (*Order, error) {
	return s.recordPayment(ctx, orderID, amount, collectorID, true)
}

func (s *Service) recordPayment(ctx context.Context, orderID uuid.UUID, amount int64, collectorID uuid.UUID, exact bool) (*Order, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	for attempt := 0; attempt < casRetries; attempt++ {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		switch o.PaymentStatus {
		case PaymentPaid:
			return nil, ErrAlreadyPaid
		case PaymentCancelled:
			return nil, ErrPaymentCancelled
		}
		if exact && amount != o.TotalAmount {
			return nil, fmt.Errorf("%w: got %s, order total %s",
				ErrAmountMismatch, money.Format(amount), money.Format(o.TotalAmount))
		}

		now := s.clock()
		o.PaidAmount += amount
		o.ShortageAmount, o.PaymentStatus = DerivePayment(o.TotalAmount, o.PaidAmount)
		o.PaymentDetails = PaymentDetails{CollectedBy: &collectorID, PaidAt: &now}

		if err := s.repo.Save(ctx, o, nil); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("record payment: %w", err)
		}

		if o.PaymentStatus == PaymentPaid {
			payload := map[string]any{
				"order_id":     o.ID,
				"amount":       o.PaidAmount,
				"collected_by": collectorID,
			}
			s.emit(ctx, notify.Event{
				Audience: notify.AudienceCustomer,
				Target:   o.CustomerID.String(),
				Type:     notify.EventPaymentReceived,
				Payload:  payload,
			})
			s.emit(ctx, notify.Event{
				Audience: notify.AudienceAdmins,
				Type:     notify.EventPaymentReceived,
				Payload:  payload,
			})
		}
		return o, nil
	}
	return nil, fmt.Errorf("record payment: %w", ErrVersionConflict)
}

// Rate stores customer feedback on a completed order.
func (s *Service) Rate(ctx context.Context, orderID uuid.UUID, req RatingRequest) (*Order, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != StatusCompleted {
			return nil, ErrNotCompleted
		}
		if o.Rating != nil {
			return nil, ErrAlreadyRated
		}
		o.Rating = &Rating{Score: req.Score, Comment: req.Comment, CreatedAt: s.clock()}
		if err := s.repo.Save(ctx, o, nil); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("rate order: %w", err)
		}
		return o, nil
	}
	return nil, fmt.Errorf("rate order: %w", ErrVersionConflict)
}

func (s *Service) emit(ctx context.Context, event notify.Event) {
	if s.gateway == nil {
		return
	}
	if err := s.gateway.Notify(ctx, event); err != nil {
		s.logger.Error("emit notification",
			slog.String("type", string(event.Type)),
			slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "order",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.clock(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
