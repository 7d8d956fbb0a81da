package cash

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sabeel-delivery/sabeel/internal/notify"
	"github.com/sabeel-delivery/sabeel/internal/shared"
)

// AuditRecorder captures admin-visible mutations; nil disables auditing.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for the shortage workflow.
type Service struct {
	repo    Repository
	gateway notify.Gateway
	audit   AuditRecorder
	logger  *slog.Logger
	clock   func() time.Time
}

// NewService creates a new cash service.
func NewService(repo Repository, gateway notify.Gateway, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		audit:   audit,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, used by tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Report files a new pending shortage for the worker.
func (s *Service) Report(ctx context.Context, req ReportRequest, workerID uuid.UUID) (*Shortage, error) {
	if req.ExpectedAmount < 0 || req.ActualAmount < 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, ErrMissingReason
	}

	now := s.clock()
	shortage := &Shortage{
		ID:             uuid.New(),
		WorkerID:       workerID,
		OrderIDs:       req.OrderIDs,
		ExpectedAmount: req.ExpectedAmount,
		ActualAmount:   req.ActualAmount,
		ShortageAmount: Gap(req.ExpectedAmount, req.ActualAmount),
		Reason:         req.Reason,
		Notes:          req.Notes,
		Status:         ShortagePending,
		Date:           now,
		CreatedAt:      now,
	}
	if err := s.repo.CreateShortage(ctx, shortage); err != nil {
		return nil, fmt.Errorf("report shortage: %w", err)
	}

	s.emit(ctx, notify.Event{
		Audience: notify.AudienceAdmins,
		Type:     notify.EventShortageReported,
		Payload: map[string]any{
			"shortage_id":     shortage.ID,
			"worker_id":       shortage.WorkerID,
			"shortage_amount": shortage.ShortageAmount,
			"reason":          shortage.Reason,
		},
	})
	return shortage, nil
}

// Resolve moves a pending shortage to resolved exactly once. The conditional
// update in the repository carries the once-only guarantee, so no retry loop
// is needed here.
func (s *Service) Resolve(ctx context.Context, shortageID uuid.UUID, resolution Resolution, notes *string, actor shared.Actor) (*Shortage, error) {
	if !resolution.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}
	shortage, err := s.repo.ResolveShortage(ctx, shortageID, resolution, actor.ID, notes, s.clock())
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "shortage.resolve."+string(resolution), shortage.ID, map[string]any{
		"shortage_amount": shortage.ShortageAmount,
	})
	s.emit(ctx, notify.Event{
		Audience: notify.AudienceWorker,
		Target:   shortage.WorkerID.String(),
		Type:     notify.EventShortageResolved,
		Payload: map[string]any{
			"shortage_id": shortage.ID,
			"resolution":  resolution,
		},
	})
	return shortage, nil
}

// Get returns one shortage with its linked orders.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Shortage, error) {
	return s.repo.GetShortage(ctx, id)
}

// List returns shortages matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Shortage, int, error) {
	return s.repo.ListShortages(ctx, f)
}

// CreateGuideline publishes a cash-handling instruction to workers.
func (s *Service) CreateGuideline(ctx context.Context, req CreateGuidelineRequest, actor shared.Actor) (*Guideline, error) {
	g := &Guideline{
		ID:          uuid.New(),
		Title:       req.Title,
		Body:        req.Body,
		Category:    req.Category,
		Priority:    req.Priority,
		RequiresAck: req.RequiresAck,
		CreatedBy:   actor.ID,
		CreatedAt:   s.clock(),
	}
	if err := s.repo.CreateGuideline(ctx, g); err != nil {
		return nil, fmt.Errorf("create guideline: %w", err)
	}

	s.recordAudit(ctx, actor, "guideline.create", g.ID, map[string]any{"title": g.Title})
	s.emit(ctx, notify.Event{
		Audience: notify.AudienceWorkers,
		Type:     notify.EventNewGuideline,
		Payload: map[string]any{
			"guideline_id": g.ID,
			"title":        g.Title,
			"priority":     g.Priority,
			"requires_ack": g.RequiresAck,
		},
	})
	return g, nil
}

// ListGuidelines returns all guidelines, newest first.
func (s *Service) ListGuidelines(ctx context.Context) ([]Guideline, error) {
	return s.repo.ListGuidelines(ctx)
}

// Acknowledge records a worker's one-time acknowledgement of a guideline.
func (s *Service) Acknowledge(ctx context.Context, guidelineID, workerID uuid.UUID) error {
	if _, err := s.repo.GetGuideline(ctx, guidelineID); err != nil {
		return err
	}
	return s.repo.Acknowledge(ctx, guidelineID, workerID, s.clock())
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
		Entity:   "cash_shortage",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.clock(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
