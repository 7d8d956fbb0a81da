package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sabeel-delivery/sabeel/internal/cash"
	"github.com/sabeel-delivery/sabeel/internal/notify"
)

// CashUnresolvedScanJob alerts admins about shortages that sat pending past
// the age cutoff. The whole list goes out as one event, deduped per calendar
// day so the morning and evening runs do not double up.
type CashUnresolvedScanJob struct {
	Shortages ShortageStore
	Gateway   notify.Gateway
	Redis     *redis.Client
	Logger    *slog.Logger
	OlderThan time.Duration
	clock     func() time.Time
}

// NewCashUnresolvedScanJob initialises the unresolved-shortage scan handler.
func NewCashUnresolvedScanJob(shortages ShortageStore, gateway notify.Gateway, rdb *redis.Client, logger *slog.Logger, olderThan time.Duration) *CashUnresolvedScanJob {
	return &CashUnresolvedScanJob{
		Shortages: shortages,
		Gateway:   gateway,
		Redis:     rdb,
		Logger:    logger,
		OlderThan: olderThan,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the unresolved-shortage scan.
func (j *CashUnresolvedScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Shortages == nil || j.Gateway == nil {
		return errors.New("unresolved scan: handler not configured")
	}
	var payload ScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	olderThan := j.OlderThan
	if payload.OlderThanHours > 0 {
		olderThan = time.Duration(payload.OlderThanHours) * time.Hour
	}
	if olderThan <= 0 {
		olderThan = 72 * time.Hour
	}

	now := j.now()
	logger := j.logger().With(slog.Duration("older_than", olderThan))

	stale, err := j.Shortages.PendingOlderThan(ctx, now.Add(-olderThan))
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	if len(stale) == 0 {
		logger.Info("no unresolved shortages past cutoff")
		return nil
	}

	marker := dedupe{client: j.Redis}
	key := "alert:unresolved:" + now.Format("2006-01-02")
	first, err := marker.claim(ctx, key)
	if err != nil {
		logger.Warn("dedupe marker", slog.Any("error", err))
	}
	if !first {
		logger.Info("already alerted today", slog.Int("stale", len(stale)))
		return nil
	}

	if err := j.Gateway.Notify(ctx, notify.Event{
		Audience: notify.AudienceAdmins,
		Type:     notify.EventUnresolvedShortages,
		Payload: map[string]any{
			"count":     len(stale),
			"shortages": summarize(stale),
		},
	}); err != nil {
		marker.release(ctx, key)
		logger.Error("emit unresolved alert", slog.Any("error", err))
		return err
	}

	logger.Info("completed unresolved-shortage scan",
		slog.Int("stale", len(stale)),
		slog.Duration("duration", time.Since(now)),
	)
	return nil
}

func summarize(shortages []cash.Shortage) []map[string]any {
	out := make([]map[string]any, 0, len(shortages))
	for _, s := range shortages {
		out = append(out, map[string]any{
			"shortage_id":     s.ID,
			"worker_id":       s.WorkerID,
			"shortage_amount": s.ShortageAmount,
			"reported_at":     s.CreatedAt,
		})
	}
	return out
}

func (j *CashUnresolvedScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCashUnresolvedScan))
	}
	return slog.Default().With(slog.String("job", TaskCashUnresolvedScan))
}

func (j *CashUnresolvedScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
