package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const dateLayout = "2006-01-02"

// ServiceConfig carries the cache knobs.
type ServiceConfig struct {
	// CacheTTL bounds staleness of cached reports. Zero disables caching.
	CacheTTL time.Duration
}

// Service assembles reconciliation reports. Results are cached in redis for
// a short TTL, and concurrent fills of the same key collapse through
// singleflight so a report is computed once per expiry no matter how many
// requests land at the same time.
type Service struct {
	repo   Repository
	cache  *redis.Client
	group  singleflight.Group
	logger *slog.Logger
	cfg    ServiceConfig
}

// NewService creates a reconciliation service. cache may be nil in tests.
func NewService(repo Repository, cache *redis.Client, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, cfg: cfg}
}

// WorkerDaily reports what the worker collected on the given day.
func (s *Service) WorkerDaily(ctx context.Context, workerID uuid.UUID, day time.Time) (*WorkerDaily, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	key := fmt.Sprintf("recon:worker:%s:daily:%s", workerID, day.Format(dateLayout))
	return cached(ctx, s, key, func() (*WorkerDaily, error) {
		entries, err := s.repo.WorkerCollections(ctx, workerID, day, day.Add(24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("worker daily: %w", err)
		}
		report := &WorkerDaily{
			WorkerID:    workerID,
			Date:        day.Format(dateLayout),
			OrdersCount: len(entries),
			Collections: entries,
		}
		for _, e := range entries {
			report.TotalCollected += e.Amount
		}
		return report, nil
	})
}

// WorkerHistory reports a worker's collections over [from, to).
func (s *Service) WorkerHistory(ctx context.Context, workerID uuid.UUID, from, to time.Time) (*WorkerHistory, error) {
	key := fmt.Sprintf("recon:worker:%s:history:%s:%s",
		workerID, from.Format(dateLayout), to.Format(dateLayout))
	return cached(ctx, s, key, func() (*WorkerHistory, error) {
		entries, err := s.repo.WorkerCollections(ctx, workerID, from, to)
		if err != nil {
			return nil, fmt.Errorf("worker history: %w", err)
		}
		report := &WorkerHistory{
			WorkerID:    workerID,
			From:        from.Format(dateLayout),
			To:          to.Format(dateLayout),
			Collections: entries,
		}
		for _, e := range entries {
			report.TotalCollected += e.Amount
		}
		return report, nil
	})
}

// AdminReport aggregates per-worker collections and a grand total for
// [from, to).
func (s *Service) AdminReport(ctx context.Context, from, to time.Time) (*AdminReport, error) {
	key := fmt.Sprintf("recon:admin:%s:%s", from.Format(dateLayout), to.Format(dateLayout))
	return cached(ctx, s, key, func() (*AdminReport, error) {
		totals, err := s.repo.WorkerTotals(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("admin report: %w", err)
		}
		report := &AdminReport{
			From:    from.Format(dateLayout),
			To:      to.Format(dateLayout),
			Workers: totals,
		}
		report.Summary.WorkersCount = len(totals)
		for _, wt := range totals {
			report.Summary.OrdersCount += wt.OrdersCount
			report.Summary.GrandTotal += wt.TotalCollected
		}
		return report, nil
	})
}

// DailyReconciliation reports per-worker expected vs collected for one day.
func (s *Service) DailyReconciliation(ctx context.Context, day time.Time) (*DailyReconciliation, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	key := "recon:daily:" + day.Format(dateLayout)
	return cached(ctx, s, key, func() (*DailyReconciliation, error) {
		rows, err := s.repo.DailyRows(ctx, day, day.Add(24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("daily reconciliation: %w", err)
		}
		return &DailyReconciliation{Date: day.Format(dateLayout), Rows: rows}, nil
	})
}

// cached wraps a report computation with the redis read-through and the
// singleflight collapse. Cache failures degrade to a plain computation.
func cached[T any](ctx context.Context, s *Service, key string, compute func() (*T, error)) (*T, error) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return compute()
	}

	if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
		var report T
		if err := json.Unmarshal(raw, &report); err == nil {
			return &report, nil
		}
		// Corrupt entry, fall through and recompute.
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		report, err := compute()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(report)
		if err != nil {
			return report, nil
		}
		if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL).Err(); err != nil {
			s.logger.Warn("report cache write", slog.String("key", key), slog.Any("error", err))
		}
		return report, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*T), nil
}
