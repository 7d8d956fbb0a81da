package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sabeel-delivery/sabeel/internal/notify"
	"github.com/sabeel-delivery/sabeel/internal/shared"
	"github.com/sabeel-delivery/sabeel/internal/workers"
)

// memoryOrderRepo mimics the conditional version check of the SQL
// repository so concurrency behaviour is exercised for real.
type memoryOrderRepo struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*Order
	history map[uuid.UUID][]StatusHistoryEntry
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders:  make(map[uuid.UUID]*Order),
		history: make(map[uuid.UUID][]StatusHistoryEntry),
	}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.StatusHistory = append([]StatusHistoryEntry(nil), o.StatusHistory...)
	if o.Rating != nil {
		rating := *o.Rating
		cp.Rating = &rating
	}
	return &cp
}

func (r *memoryOrderRepo) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *memoryOrderRepo) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(o)
	cp.StatusHistory = append([]StatusHistoryEntry(nil), r.history[id]...)
	return cp, nil
}

func (r *memoryOrderRepo) Save(_ context.Context, o *Order, newHistory []StatusHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != o.Version {
		return ErrVersionConflict
	}
	cp := cloneOrder(o)
	cp.Version++
	r.orders[o.ID] = cp
	r.history[o.ID] = append(r.history[o.ID], newHistory...)
	o.Version++
	o.StatusHistory = append(o.StatusHistory, newHistory...)
	return nil
}

func (r *memoryOrderRepo) List(_ context.Context, f ListFilter) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, len(out), nil
}

func (r *memoryOrderRepo) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

func (r *memoryOrderRepo) ListActiveByWorker(_ context.Context, workerID uuid.UUID) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.WorkerID != nil && *o.WorkerID == workerID &&
			(o.Status == StatusAssigned || o.Status == StatusInProgress) {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

type staticDirectory struct {
	workers map[uuid.UUID]workers.Worker
}

func (d staticDirectory) Get(_ context.Context, id uuid.UUID) (workers.Worker, error) {
	w, ok := d.workers[id]
	if !ok {
		return workers.Worker{}, workers.ErrNotFound
	}
	return w, nil
}

func (d staticDirectory) ListActive(_ context.Context) ([]workers.Worker, error) {
	var out []workers.Worker
	for _, w := range d.workers {
		if w.Active {
			out = append(out, w)
		}
	}
	return out, nil
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

func newTestService(t *testing.T) (*Service, *memoryOrderRepo, *recordingGateway, staticDirectory) {
	t.Helper()
	repo := newMemoryOrderRepo()
	gateway := &recordingGateway{}
	activeWorker := workers.Worker{ID: uuid.New(), Name: "Karim", Active: true}
	inactiveWorker := workers.Worker{ID: uuid.New(), Name: "Samir", Active: false}
	dir := staticDirectory{workers: map[uuid.UUID]workers.Worker{
		activeWorker.ID:   activeWorker,
		inactiveWorker.ID: inactiveWorker,
	}}
	svc := NewService(repo, dir, gateway, nil, nil, ServiceConfig{RoundingStep: 50})
	svc.SetClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc, repo, gateway, dir
}

func createTestOrder(t *testing.T, svc *Service) *Order {
	t.Helper()
	o, err := svc.Create(context.Background(), CreateOrderRequest{
		Items:        []CreateItemRequest{{ProductRef: "water-19l", Quantity: 3, UnitPrice: 770}},
		DeliveryDate: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}, uuid.New())
	require.NoError(t, err)
	return o
}

func TestCreateComputesRoundedTotal(t *testing.T) {
	svc, _, gateway, _ := newTestService(t)
	o := createTestOrder(t, svc)

	require.Equal(t, int64(2300), o.TotalAmount)
	require.Equal(t, StatusPending, o.Status)
	require.Equal(t, PaymentPending, o.PaymentStatus)
	require.Equal(t, int64(2300), o.ShortageAmount)
	require.Equal(t, int64(2310), o.Items[0].LineTotal)
	require.Len(t, gateway.byType(notify.EventNewOrder), 1)
}

func TestCreateRejectsBadItems(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateOrderRequest{}, uuid.New())
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = svc.Create(ctx, CreateOrderRequest{
		Items: []CreateItemRequest{{ProductRef: "x", Quantity: 0, UnitPrice: 10}},
	}, uuid.New())
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(ctx, CreateOrderRequest{
		Items: []CreateItemRequest{{ProductRef: "x", Quantity: 1, UnitPrice: -5}},
	}, uuid.New())
	require.ErrorIs(t, err, ErrInvalidUnitPrice)
}

func TestTransitionStatusWalk(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	actor := shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}
	o := createTestOrder(t, svc)

	// Skipping intermediate states is rejected and side-effect free.
	_, err := svc.TransitionStatus(ctx, o.ID, StatusInProgress, "", actor)
	require.ErrorIs(t, err, ErrInvalidTransition)
	unchanged, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, unchanged.Status)
	require.Empty(t, unchanged.StatusHistory)

	// Self-transition rejected.
	_, err = svc.TransitionStatus(ctx, o.ID, StatusPending, "", actor)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Legal walk to completion, note appended in order.
	for _, step := range []Status{StatusConfirmed, StatusAssigned, StatusInProgress, StatusCompleted} {
		updated, err := svc.TransitionStatus(ctx, o.ID, step, "step "+string(step), actor)
		require.NoError(t, err)
		require.Equal(t, step, updated.Status)
	}
	final, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, final.CompletedAt)
	require.Len(t, final.StatusHistory, 4)
	require.Equal(t, StatusConfirmed, final.StatusHistory[0].Status)
	require.Equal(t, StatusCompleted, final.StatusHistory[3].Status)

	// Terminal state admits nothing.
	_, err = svc.TransitionStatus(ctx, o.ID, StatusCancelled, "", actor)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionWithoutNoteSkipsHistory(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	actor := shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}
	o := createTestOrder(t, svc)

	_, err := svc.TransitionStatus(ctx, o.ID, StatusConfirmed, "", actor)
	require.NoError(t, err)
	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Empty(t, got.StatusHistory)
}

func TestCancelMarksPaymentCancelled(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	actor := shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}
	o := createTestOrder(t, svc)

	cancelled, err := svc.TransitionStatus(ctx, o.ID, StatusCancelled, "customer changed mind", actor)
	require.NoError(t, err)
	require.Equal(t, PaymentCancelled, cancelled.PaymentStatus)

	// Sticky: payments are rejected afterwards.
	_, err = svc.RecordPayment(ctx, o.ID, 100, uuid.New())
	require.ErrorIs(t, err, ErrPaymentCancelled)
}

func TestAssignWorker(t *testing.T) {
	svc, _, gateway, dir := newTestService(t)
	ctx := context.Background()
	actor := shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}

	var active, inactive workers.Worker
	for _, w := range dir.workers {
		if w.Active {
			active = w
		} else {
			inactive = w
		}
	}

	o := createTestOrder(t, svc)

	// Requires confirmed.
	_, err := svc.AssignWorker(ctx, o.ID, active.ID, actor)
	require.ErrorIs(t, err, ErrInvalidOrderState)

	_, err = svc.TransitionStatus(ctx, o.ID, StatusConfirmed, "", actor)
	require.NoError(t, err)

	// Inactive or unknown workers rejected.
	_, err = svc.AssignWorker(ctx, o.ID, inactive.ID, actor)
	require.ErrorIs(t, err, ErrWorkerUnavailable)
	_, err = svc.AssignWorker(ctx, o.ID, uuid.New(), actor)
	require.ErrorIs(t, err, ErrWorkerUnavailable)

	assigned, err := svc.AssignWorker(ctx, o.ID, active.ID, actor)
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, assigned.Status)
	require.Equal(t, active.ID, *assigned.WorkerID)
	require.Len(t, assigned.StatusHistory, 1)
	require.Equal(t, "assigned to Karim", assigned.StatusHistory[0].Note)
	require.Len(t, gateway.byType(notify.EventOrderAssigned), 1)
}

func TestRecordPaymentLifecycle(t *testing.T) {
	svc, _, gateway, _ := newTestService(t)
	ctx := context.Background()
	collector := uuid.New()
	o := createTestOrder(t, svc)

	partial, err := svc.RecordPayment(ctx, o.ID, 1000, collector)
	require.NoError(t, err)
	require.Equal(t, int64(1000), partial.PaidAmount)
	require.Equal(t, int64(1300), partial.ShortageAmount)
	require.Equal(t, PaymentPartiallyPaid, partial.PaymentStatus)
	require.Empty(t, gateway.byType(notify.EventPaymentReceived))

	settled, err := svc.RecordPayment(ctx, o.ID, 1300, collector)
	require.NoError(t, err)
	require.Equal(t, int64(2300), settled.PaidAmount)
	require.Equal(t, int64(0), settled.ShortageAmount)
	require.Equal(t, PaymentPaid, settled.PaymentStatus)
	require.Equal(t, collector, *settled.PaymentDetails.CollectedBy)
	// Addressed to customer and admins.
	require.Len(t, gateway.byType(notify.EventPaymentReceived), 2)

	_, err = svc.RecordPayment(ctx, o.ID, 50, collector)
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestRecordPaymentOverpaymentKeepsObservedLabel(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	o := createTestOrder(t, svc)

	over, err := svc.RecordPayment(context.Background(), o.ID, 2500, uuid.New())
	require.NoError(t, err)
	require.Equal(t, PaymentShortage, over.PaymentStatus)
	require.Equal(t, int64(0), over.ShortageAmount)
}

func TestRecordCashPaymentRequiresExactAmount(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	o := createTestOrder(t, svc)

	_, err := svc.RecordCashPayment(ctx, o.ID, 2000, uuid.New())
	require.ErrorIs(t, err, ErrAmountMismatch)

	settled, err := svc.RecordCashPayment(ctx, o.ID, 2300, uuid.New())
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, settled.PaymentStatus)
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	o := createTestOrder(t, svc)

	_, err := svc.RecordPayment(context.Background(), o.ID, 0, uuid.New())
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.RecordPayment(context.Background(), o.ID, -100, uuid.New())
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestConcurrentPaymentsDoNotLoseUpdates(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	o := createTestOrder(t, svc)

	amounts := []int64{1000, 1300}
	var wg sync.WaitGroup
	errs := make([]error, len(amounts))
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount int64) {
			defer wg.Done()
			_, errs[i] = svc.RecordPayment(ctx, o.ID, amount, uuid.New())
		}(i, amount)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	final, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2300), final.PaidAmount)
	require.Equal(t, PaymentPaid, final.PaymentStatus)
}

func TestRateRequiresCompleted(t *testing.T) {
	svc, _, _, dir := newTestService(t)
	ctx := context.Background()
	actor := shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin}
	o := createTestOrder(t, svc)

	_, err := svc.Rate(ctx, o.ID, RatingRequest{Score: 5})
	require.ErrorIs(t, err, ErrNotCompleted)

	var active workers.Worker
	for _, w := range dir.workers {
		if w.Active {
			active = w
		}
	}
	_, err = svc.TransitionStatus(ctx, o.ID, StatusConfirmed, "", actor)
	require.NoError(t, err)
	_, err = svc.AssignWorker(ctx, o.ID, active.ID, actor)
	require.NoError(t, err)
	_, err = svc.TransitionStatus(ctx, o.ID, StatusInProgress, "", actor)
	require.NoError(t, err)
	_, err = svc.TransitionStatus(ctx, o.ID, StatusCompleted, "", actor)
	require.NoError(t, err)

	rated, err := svc.Rate(ctx, o.ID, RatingRequest{Score: 4, Comment: "on time"})
	require.NoError(t, err)
	require.Equal(t, 4, rated.Rating.Score)

	_, err = svc.Rate(ctx, o.ID, RatingRequest{Score: 5})
	require.ErrorIs(t, err, ErrAlreadyRated)
}
