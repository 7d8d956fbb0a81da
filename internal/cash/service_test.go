package cash

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sabeel-delivery/sabeel/internal/notify"
	"github.com/sabeel-delivery/sabeel/internal/shared"
)

type memoryCashRepo struct {
	mu         sync.Mutex
	shortages  map[uuid.UUID]*Shortage
	guidelines map[uuid.UUID]*Guideline
	acks       map[uuid.UUID]map[uuid.UUID]time.Time
}

func newMemoryCashRepo() *memoryCashRepo {
	return &memoryCashRepo{
		shortages:  make(map[uuid.UUID]*Shortage),
		guidelines: make(map[uuid.UUID]*Guideline),
		acks:       make(map[uuid.UUID]map[uuid.UUID]time.Time),
	}
}

func cloneShortage(s *Shortage) *Shortage {
	cp := *s
	cp.OrderIDs = append([]uuid.UUID(nil), s.OrderIDs...)
	return &cp
}

func (r *memoryCashRepo) CreateShortage(_ context.Context, s *Shortage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shortages[s.ID] = cloneShortage(s)
	return nil
}

func (r *memoryCashRepo) GetShortage(_ context.Context, id uuid.UUID) (*Shortage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shortages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneShortage(s), nil
}

func (r *memoryCashRepo) ResolveShortage(_ context.Context, id uuid.UUID, resolution Resolution, resolverID uuid.UUID, notes *string, at time.Time) (*Shortage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shortages[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != ShortagePending {
		return nil, ErrAlreadyResolved
	}
	s.Status = ShortageResolved
	s.Resolution = &resolution
	s.ResolvedBy = &resolverID
	s.ResolvedAt = &at
	if notes != nil {
		s.Notes = notes
	}
	return cloneShortage(s), nil
}

func (r *memoryCashRepo) ListShortages(_ context.Context, f ListFilter) ([]Shortage, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Shortage
	for _, s := range r.shortages {
		if f.WorkerID != nil && s.WorkerID != *f.WorkerID {
			continue
		}
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		out = append(out, *cloneShortage(s))
	}
	return out, len(out), nil
}

func (r *memoryCashRepo) PendingReportedBetween(_ context.Context, from, to time.Time) ([]Shortage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Shortage
	for _, s := range r.shortages {
		if s.Status == ShortagePending && !s.CreatedAt.Before(from) && s.CreatedAt.Before(to) {
			out = append(out, *cloneShortage(s))
		}
	}
	return out, nil
}

func (r *memoryCashRepo) PendingLarge(_ context.Context, threshold int64) ([]Shortage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Shortage
	for _, s := range r.shortages {
		if s.Status == ShortagePending && s.ShortageAmount >= threshold {
			out = append(out, *cloneShortage(s))
		}
	}
	return out, nil
}

func (r *memoryCashRepo) PendingOlderThan(_ context.Context, cutoff time.Time) ([]Shortage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Shortage
	for _, s := range r.shortages {
		if s.Status == ShortagePending && s.CreatedAt.Before(cutoff) {
			out = append(out, *cloneShortage(s))
		}
	}
	return out, nil
}

func (r *memoryCashRepo) WorkerReportCounts(_ context.Context, since time.Time) (map[uuid.UUID]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, s := range r.shortages {
		if !s.CreatedAt.Before(since) {
			counts[s.WorkerID]++
		}
	}
	return counts, nil
}

func (r *memoryCashRepo) CreateGuideline(_ context.Context, g *Guideline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	r.guidelines[g.ID] = &cp
	return nil
}

func (r *memoryCashRepo) GetGuideline(_ context.Context, id uuid.UUID) (*Guideline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guidelines[id]
	if !ok {
		return nil, ErrGuidelineNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memoryCashRepo) ListGuidelines(_ context.Context) ([]Guideline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Guideline
	for _, g := range r.guidelines {
		out = append(out, *g)
	}
	return out, nil
}

func (r *memoryCashRepo) Acknowledge(_ context.Context, guidelineID, workerID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acks, ok := r.acks[guidelineID]
	if !ok {
		acks = make(map[uuid.UUID]time.Time)
		r.acks[guidelineID] = acks
	}
	if _, dup := acks[workerID]; dup {
		return ErrAlreadyAcknowledged
	}
	acks[workerID] = at
	return nil
}

type recordingGateway struct {
	mu     sync.Mutex
	events []notify.Event
}

func (g *recordingGateway) Notify(_ context.Context, event notify.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, event)
	return nil
}

func (g *recordingGateway) byType(t notify.EventType) []notify.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []notify.Event
	for _, e := range g.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *memoryCashRepo, *recordingGateway) {
	t.Helper()
	repo := newMemoryCashRepo()
	gateway := &recordingGateway{}
	svc := NewService(repo, gateway, nil, nil)
	svc.SetClock(func() time.Time { return time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC) })
	return svc, repo, gateway
}

func TestReportDerivesShortageAmount(t *testing.T) {
	svc, _, gateway := newTestService(t)
	workerID := uuid.New()

	shortage, err := svc.Report(context.Background(), ReportRequest{
		ExpectedAmount: 5000,
		ActualAmount:   4200,
		Reason:         "customer paid less",
	}, workerID)
	require.NoError(t, err)
	require.Equal(t, int64(800), shortage.ShortageAmount)
	require.Equal(t, ShortagePending, shortage.Status)
	require.Equal(t, workerID, shortage.WorkerID)
	require.Len(t, gateway.byType(notify.EventShortageReported), 1)
}

func TestReportValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Report(ctx, ReportRequest{ExpectedAmount: -1, ActualAmount: 0, Reason: "x"}, uuid.New())
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Report(ctx, ReportRequest{ExpectedAmount: 100, ActualAmount: 50, Reason: "  "}, uuid.New())
	require.ErrorIs(t, err, ErrMissingReason)
}

func TestReportAllowsSurplus(t *testing.T) {
	svc, _, _ := newTestService(t)

	shortage, err := svc.Report(context.Background(), ReportRequest{
		ExpectedAmount: 1000,
		ActualAmount:   1200,
		Reason:         "handed in extra",
	}, uuid.New())
	require.NoError(t, err)
	require.Equal(t, int64(-200), shortage.ShortageAmount)
}

func TestResolveOnce(t *testing.T) {
	svc, _, gateway := newTestService(t)
	ctx := context.Background()
	admin := shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}

	shortage, err := svc.Report(ctx, ReportRequest{
		ExpectedAmount: 5000, ActualAmount: 4200, Reason: "r",
	}, uuid.New())
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, shortage.ID, ResolutionDeducted, nil, admin)
	require.NoError(t, err)
	require.Equal(t, ShortageResolved, resolved.Status)
	require.Equal(t, ResolutionDeducted, *resolved.Resolution)
	require.Equal(t, admin.ID, *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
	require.Len(t, gateway.byType(notify.EventShortageResolved), 1)

	_, err = svc.Resolve(ctx, shortage.ID, ResolutionPaid, nil, admin)
	require.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolveGuards(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	admin := shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}

	_, err := svc.Resolve(ctx, uuid.New(), ResolutionPaid, nil, admin)
	require.ErrorIs(t, err, ErrNotFound)

	shortage, err := svc.Report(ctx, ReportRequest{
		ExpectedAmount: 100, ActualAmount: 50, Reason: "r",
	}, uuid.New())
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, shortage.ID, Resolution("refunded"), nil, admin)
	require.ErrorIs(t, err, ErrInvalidResolution)
}

func TestGuidelineAcknowledgeOnce(t *testing.T) {
	svc, _, gateway := newTestService(t)
	ctx := context.Background()
	admin := shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}
	workerID := uuid.New()

	g, err := svc.CreateGuideline(ctx, CreateGuidelineRequest{
		Title:       "Evening handover",
		Body:        "Count the float before leaving the depot.",
		Category:    "handover",
		Priority:    "high",
		RequiresAck: true,
	}, admin)
	require.NoError(t, err)
	require.Len(t, gateway.byType(notify.EventNewGuideline), 1)

	require.NoError(t, svc.Acknowledge(ctx, g.ID, workerID))
	require.ErrorIs(t, svc.Acknowledge(ctx, g.ID, workerID), ErrAlreadyAcknowledged)
	require.ErrorIs(t, svc.Acknowledge(ctx, uuid.New(), workerID), ErrGuidelineNotFound)
}
