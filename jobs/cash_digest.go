package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sabeel-delivery/sabeel/internal/cash"
	"github.com/sabeel-delivery/sabeel/internal/money"
	"github.com/sabeel-delivery/sabeel/internal/notify"
)

// ShortageStore is the read-only slice of the cash repository the scans
// need. Satisfied by cash.Repository.
type ShortageStore interface {
	PendingReportedBetween(ctx context.Context, from, to time.Time) ([]cash.Shortage, error)
	PendingLarge(ctx context.Context, threshold int64) ([]cash.Shortage, error)
	PendingOlderThan(ctx context.Context, cutoff time.Time) ([]cash.Shortage, error)
	WorkerReportCounts(ctx context.Context, since time.Time) (map[uuid.UUID]int, error)
}

// patternWindow and patternThreshold define the repeat-offender check: a
// worker filing patternThreshold or more reports inside the window trips a
// WORKER_SHORTAGE_PATTERN alert.
const (
	patternWindow    = 30 * 24 * time.Hour
	patternThreshold = 3
)

// CashDigestJob emits the end-of-day pending-shortage digest and the
// per-worker pattern alerts.
type CashDigestJob struct {
	Shortages ShortageStore
	Gateway   notify.Gateway
	Redis     *redis.Client
	Logger    *slog.Logger
	clock     func() time.Time
}

// NewCashDigestJob initialises the daily digest handler.
func NewCashDigestJob(shortages ShortageStore, gateway notify.Gateway, rdb *redis.Client, logger *slog.Logger) *CashDigestJob {
	return &CashDigestJob{
		Shortages: shortages,
		Gateway:   gateway,
		Redis:     rdb,
		Logger:    logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the digest scan.
func (j *CashDigestJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Shortages == nil || j.Gateway == nil {
		return errors.New("cash digest: handler not configured")
	}
	now := j.now()
	logger := j.logger()
	dayKey := now.Format("2006-01-02")

	dayStart := now.Truncate(24 * time.Hour)
	pending, err := j.Shortages.PendingReportedBetween(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		logger.Error("digest scan failed", slog.Any("error", err))
		return err
	}

	if len(pending) > 0 {
		marker := dedupe{client: j.Redis}
		key := "alert:digest:" + dayKey
		first, err := marker.claim(ctx, key)
		if err != nil {
			logger.Warn("dedupe marker", slog.Any("error", err))
		}
		if first {
			var total int64
			low, high := pending[0].ShortageAmount, pending[0].ShortageAmount
			perWorker := make(map[string]int64)
			for _, s := range pending {
				total += s.ShortageAmount
				perWorker[s.WorkerID.String()] += s.ShortageAmount
				if s.ShortageAmount < low {
					low = s.ShortageAmount
				}
				if s.ShortageAmount > high {
					high = s.ShortageAmount
				}
			}
			if err := j.Gateway.Notify(ctx, notify.Event{
				Audience: notify.AudienceAdmins,
				Type:     notify.EventDailyShortageAlert,
				Payload: map[string]any{
					"date":       dayKey,
					"count":      len(pending),
					"total":      total,
					"range":      money.FormatRange(low, high),
					"per_worker": perWorker,
				},
			}); err != nil {
				marker.release(ctx, key)
				logger.Error("emit daily digest", slog.Any("error", err))
				return err
			}
		}
	}

	if err := j.patternCheck(ctx, now, dayKey, logger); err != nil {
		return err
	}

	logger.Info("completed digest scan",
		slog.Int("pending_today", len(pending)),
		slog.Duration("duration", time.Since(now)),
	)
	return nil
}

func (j *CashDigestJob) patternCheck(ctx context.Context, now time.Time, dayKey string, logger *slog.Logger) error {
	counts, err := j.Shortages.WorkerReportCounts(ctx, now.Add(-patternWindow))
	if err != nil {
		logger.Error("pattern scan failed", slog.Any("error", err))
		return err
	}
	marker := dedupe{client: j.Redis}
	for workerID, n := range counts {
		if n < patternThreshold {
			continue
		}
		key := "alert:pattern:" + workerID.String() + ":" + dayKey
		first, err := marker.claim(ctx, key)
		if err != nil {
			logger.Warn("dedupe marker", slog.Any("error", err))
		}
		if !first {
			continue
		}
		if err := j.Gateway.Notify(ctx, notify.Event{
			Audience: notify.AudienceAdmins,
			Type:     notify.EventWorkerShortagePattern,
			Payload: map[string]any{
				"worker_id":    workerID,
				"report_count": n,
				"window_days":  int(patternWindow.Hours() / 24),
			},
		}); err != nil {
			marker.release(ctx, key)
			logger.Error("emit pattern alert", slog.Any("error", err))
			return err
		}
	}
	return nil
}

func (j *CashDigestJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCashDigestDaily))
	}
	return slog.Default().With(slog.String("job", TaskCashDigestDaily))
}

func (j *CashDigestJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
