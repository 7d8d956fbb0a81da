package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sabeel-delivery/sabeel/internal/cash"
	"github.com/sabeel-delivery/sabeel/internal/notify"
)

type fakeShortageStore struct {
	shortages []cash.Shortage
}

func (f *fakeShortageStore) PendingReportedBetween(_ context.Context, from, to time.Time) ([]cash.Shortage, error) {
	var out []cash.Shortage
	for _, s := range f.shortages {
		if s.Status == cash.ShortagePending && !s.CreatedAt.Before(from) && s.CreatedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeShortageStore) PendingLarge(_ context.Context, threshold int64) ([]cash.Shortage, error) {
	var out []cash.Shortage
	for _, s := range f.shortages {
		if s.Status == cash.ShortagePending && s.ShortageAmount >= threshold {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeShortageStore) PendingOlderThan(_ context.Context, cutoff time.Time) ([]cash.Shortage, error) {
	var out []cash.Shortage
	for _, s := range f.shortages {
		if s.Status == cash.ShortagePending && s.CreatedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeShortageStore) WorkerReportCounts(_ context.Context, since time.Time) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	for _, s := range f.shortages {
		if !s.CreatedAt.Before(since) {
			counts[s.WorkerID]++
		}
	}
	return counts, nil
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

// flakyGateway fails its first N deliveries, then records like the
// recording gateway.
type flakyGateway struct {
	recordingGateway
	failures int
}

func (g *flakyGateway) Notify(ctx context.Context, event notify.Event) error {
	g.mu.Lock()
	if g.failures > 0 {
		g.failures--
		g.mu.Unlock()
		return errors.New("gateway unavailable")
	}
	g.mu.Unlock()
	return g.recordingGateway.Notify(ctx, event)
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

var testNow = time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func pendingShortage(workerID uuid.UUID, amount int64, createdAt time.Time) cash.Shortage {
	return cash.Shortage{
		ID:             uuid.New(),
		WorkerID:       workerID,
		ExpectedAmount: amount,
		ActualAmount:   0,
		ShortageAmount: amount,
		Reason:         "test",
		Status:         cash.ShortagePending,
		Date:           createdAt,
		CreatedAt:      createdAt,
	}
}

func TestCashDigestEmitsOncePerDay(t *testing.T) {
	workerID := uuid.New()
	store := &fakeShortageStore{shortages: []cash.Shortage{
		pendingShortage(workerID, 800, testNow.Add(-2*time.Hour)),
		pendingShortage(workerID, 500, testNow.Add(-5*time.Hour)),
		// Yesterday, excluded from the digest.
		pendingShortage(workerID, 999, testNow.AddDate(0, 0, -1)),
	}}
	gateway := &recordingGateway{}
	job := NewCashDigestJob(store, gateway, testRedis(t), nil)
	job.clock = func() time.Time { return testNow }

	task := asynq.NewTask(TaskCashDigestDaily, nil)
	require.NoError(t, job.Handle(context.Background(), task))

	digests := gateway.byType(notify.EventDailyShortageAlert)
	require.Len(t, digests, 1)
	payload, ok := digests[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, int64(1300), payload["total"])
	require.Equal(t, 2, payload["count"])
	require.Equal(t, "500 SYP - 800 SYP", payload["range"])

	// Second run the same day is deduped.
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, gateway.byType(notify.EventDailyShortageAlert), 1)
}

func TestCashDigestSkipsEmptyDay(t *testing.T) {
	gateway := &recordingGateway{}
	job := NewCashDigestJob(&fakeShortageStore{}, gateway, testRedis(t), nil)
	job.clock = func() time.Time { return testNow }

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskCashDigestDaily, nil)))
	require.Empty(t, gateway.events)
}

func TestCashDigestFlagsRepeatOffenders(t *testing.T) {
	repeat := uuid.New()
	occasional := uuid.New()
	store := &fakeShortageStore{shortages: []cash.Shortage{
		pendingShortage(repeat, 100, testNow.AddDate(0, 0, -20)),
		pendingShortage(repeat, 200, testNow.AddDate(0, 0, -10)),
		pendingShortage(repeat, 300, testNow.AddDate(0, 0, -2)),
		pendingShortage(occasional, 400, testNow.AddDate(0, 0, -3)),
	}}
	gateway := &recordingGateway{}
	job := NewCashDigestJob(store, gateway, testRedis(t), nil)
	job.clock = func() time.Time { return testNow }

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskCashDigestDaily, nil)))

	patterns := gateway.byType(notify.EventWorkerShortagePattern)
	require.Len(t, patterns, 1)
	payload, ok := patterns[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, repeat, payload["worker_id"])
	require.Equal(t, 3, payload["report_count"])
}

func TestLargeScanAlertsOncePerShortage(t *testing.T) {
	store := &fakeShortageStore{shortages: []cash.Shortage{
		pendingShortage(uuid.New(), 1500, testNow.Add(-time.Hour)),
		pendingShortage(uuid.New(), 1000, testNow.Add(-time.Hour)),
		pendingShortage(uuid.New(), 999, testNow.Add(-time.Hour)),
	}}
	gateway := &recordingGateway{}
	job := NewCashLargeScanJob(store, gateway, testRedis(t), nil, 1000)
	job.clock = func() time.Time { return testNow }

	task := asynq.NewTask(TaskCashLargeScan, nil)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, gateway.byType(notify.EventLargeShortageAlert), 2)

	// Hourly re-run: same shortages, no new alerts.
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, gateway.byType(notify.EventLargeShortageAlert), 2)
}

func TestLargeScanAlertsWhenRedisDown(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	srv.Close()

	store := &fakeShortageStore{shortages: []cash.Shortage{
		pendingShortage(uuid.New(), 5000, testNow.Add(-time.Hour)),
	}}
	gateway := &recordingGateway{}
	job := NewCashLargeScanJob(store, gateway, rdb, nil, 1000)
	job.clock = func() time.Time { return testNow }

	// The dedupe marker cannot be checked, so the alert goes out anyway.
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskCashLargeScan, nil)))
	require.Len(t, gateway.byType(notify.EventLargeShortageAlert), 1)
}

func TestLargeScanRetriesAfterEmitFailure(t *testing.T) {
	store := &fakeShortageStore{shortages: []cash.Shortage{
		pendingShortage(uuid.New(), 2000, testNow.Add(-time.Hour)),
	}}
	gateway := &flakyGateway{failures: 1}
	job := NewCashLargeScanJob(store, gateway, testRedis(t), nil, 1000)
	job.clock = func() time.Time { return testNow }

	task := asynq.NewTask(TaskCashLargeScan, nil)
	require.Error(t, job.Handle(context.Background(), task))
	require.Empty(t, gateway.byType(notify.EventLargeShortageAlert))

	// The failed emit released its marker, so the asynq retry alerts.
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, gateway.byType(notify.EventLargeShortageAlert), 1)
}

func TestLargeScanPayloadOverridesThreshold(t *testing.T) {
	store := &fakeShortageStore{shortages: []cash.Shortage{
		pendingShortage(uuid.New(), 500, testNow.Add(-time.Hour)),
	}}
	gateway := &recordingGateway{}
	job := NewCashLargeScanJob(store, gateway, testRedis(t), nil, 1000)
	job.clock = func() time.Time { return testNow }

	task, err := NewScanTask(TaskCashLargeScan, ScanPayload{Threshold: 400})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, gateway.byType(notify.EventLargeShortageAlert), 1)
}

func TestUnresolvedScanDedupesPerDay(t *testing.T) {
	store := &fakeShortageStore{shortages: []cash.Shortage{
		pendingShortage(uuid.New(), 800, testNow.Add(-100*time.Hour)),
		pendingShortage(uuid.New(), 200, testNow.Add(-80*time.Hour)),
		// Recent, below the cutoff.
		pendingShortage(uuid.New(), 300, testNow.Add(-10*time.Hour)),
	}}
	gateway := &recordingGateway{}
	job := NewCashUnresolvedScanJob(store, gateway, testRedis(t), nil, 72*time.Hour)
	job.clock = func() time.Time { return testNow }

	task := asynq.NewTask(TaskCashUnresolvedScan, nil)
	require.NoError(t, job.Handle(context.Background(), task))

	alerts := gateway.byType(notify.EventUnresolvedShortages)
	require.Len(t, alerts, 1)
	payload, ok := alerts[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, 2, payload["count"])

	// Evening run the same day is deduped.
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, gateway.byType(notify.EventUnresolvedShortages), 1)
}

func TestDispatchSkipsMalformedPayload(t *testing.T) {
	gateway := &recordingGateway{}
	job := NewDispatchJob(gateway, nil)

	err := job.Handle(context.Background(), asynq.NewTask(notify.TaskTypeDispatch, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, gateway.events)
}

func TestDispatchDeliversEvent(t *testing.T) {
	gateway := &recordingGateway{}
	job := NewDispatchJob(gateway, nil)

	task, err := notify.NewDispatchTask(notify.Event{
		Audience: notify.AudienceAdmins,
		Type:     notify.EventNewOrder,
		Payload:  map[string]any{"order_id": uuid.New().String()},
	})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, gateway.byType(notify.EventNewOrder), 1)
}
