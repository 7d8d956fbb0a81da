package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sabeel-delivery/sabeel/internal/notify"
)

// CashLargeScanJob alerts admins once per pending shortage at or above the
// threshold. The SETNX marker keyed on the shortage id keeps an unchanged
// shortage from re-alerting on every hourly run.
type CashLargeScanJob struct {
	Shortages ShortageStore
	Gateway   notify.Gateway
	Redis     *redis.Client
	Logger    *slog.Logger
	Threshold int64
	clock     func() time.Time
}

// NewCashLargeScanJob initialises the large-shortage scan handler.
func NewCashLargeScanJob(shortages ShortageStore, gateway notify.Gateway, rdb *redis.Client, logger *slog.Logger, threshold int64) *CashLargeScanJob {
	return &CashLargeScanJob{
		Shortages: shortages,
		Gateway:   gateway,
		Redis:     rdb,
		Logger:    logger,
		Threshold: threshold,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the large-shortage scan.
func (j *CashLargeScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Shortages == nil || j.Gateway == nil {
		return errors.New("large scan: handler not configured")
	}
	var payload ScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	threshold := j.Threshold
	if payload.Threshold > 0 {
		threshold = payload.Threshold
	}

	start := j.now()
	logger := j.logger().With(slog.Int64("threshold", threshold))

	large, err := j.Shortages.PendingLarge(ctx, threshold)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}

	marker := dedupe{client: j.Redis}
	alerted := 0
	for _, s := range large {
		key := "alert:large:" + s.ID.String()
		first, err := marker.claim(ctx, key)
		if err != nil {
			logger.Warn("dedupe marker", slog.Any("error", err))
		}
		if !first {
			continue
		}
		if err := j.Gateway.Notify(ctx, notify.Event{
			Audience: notify.AudienceAdmins,
			Type:     notify.EventLargeShortageAlert,
			Payload: map[string]any{
				"shortage_id":     s.ID,
				"worker_id":       s.WorkerID,
				"shortage_amount": s.ShortageAmount,
				"reason":          s.Reason,
			},
		}); err != nil {
			marker.release(ctx, key)
			logger.Error("emit large alert", slog.Any("error", err))
			return err
		}
		alerted++
	}

	logger.Info("completed large-shortage scan",
		slog.Int("matched", len(large)),
		slog.Int("alerted", alerted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *CashLargeScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCashLargeScan))
	}
	return slog.Default().With(slog.String("job", TaskCashLargeScan))
}

func (j *CashLargeScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
