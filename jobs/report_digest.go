package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sabeel-delivery/sabeel/internal/notify"
	"github.com/sabeel-delivery/sabeel/internal/recon"
)

// Reporter is the slice of the reconciliation service the digests need.
type Reporter interface {
	DailyReconciliation(ctx context.Context, day time.Time) (*recon.DailyReconciliation, error)
	AdminReport(ctx context.Context, from, to time.Time) (*recon.AdminReport, error)
}

// ReportDigestJob pushes reconciliation summaries to admins on daily and
// weekly cadences.
type ReportDigestJob struct {
	Recon   Reporter
	Gateway notify.Gateway
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewReportDigestJob initialises the report digest handler.
func NewReportDigestJob(reporter Reporter, gateway notify.Gateway, logger *slog.Logger) *ReportDigestJob {
	return &ReportDigestJob{
		Recon:   reporter,
		Gateway: gateway,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleDaily sends the previous day's reconciliation.
func (j *ReportDigestJob) HandleDaily(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Recon == nil || j.Gateway == nil {
		return errors.New("report digest: handler not configured")
	}
	yesterday := j.now().AddDate(0, 0, -1)
	logger := j.logger(TaskReportDaily)

	report, err := j.Recon.DailyReconciliation(ctx, yesterday)
	if err != nil {
		logger.Error("build daily report", slog.Any("error", err))
		return err
	}
	if err := j.Gateway.Notify(ctx, notify.Event{
		Audience: notify.AudienceAdmins,
		Type:     notify.EventDailyReport,
		Payload:  map[string]any{"report": report},
	}); err != nil {
		logger.Error("emit daily report", slog.Any("error", err))
		return err
	}
	logger.Info("sent daily report", slog.String("date", report.Date), slog.Int("rows", len(report.Rows)))
	return nil
}

// HandleWeekly sends the trailing-week cash report.
func (j *ReportDigestJob) HandleWeekly(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Recon == nil || j.Gateway == nil {
		return errors.New("report digest: handler not configured")
	}
	now := j.now().Truncate(24 * time.Hour)
	logger := j.logger(TaskReportWeekly)

	report, err := j.Recon.AdminReport(ctx, now.AddDate(0, 0, -7), now)
	if err != nil {
		logger.Error("build weekly report", slog.Any("error", err))
		return err
	}
	if err := j.Gateway.Notify(ctx, notify.Event{
		Audience: notify.AudienceAdmins,
		Type:     notify.EventWeeklyReport,
		Payload:  map[string]any{"report": report},
	}); err != nil {
		logger.Error("emit weekly report", slog.Any("error", err))
		return err
	}
	logger.Info("sent weekly report",
		slog.String("from", report.From),
		slog.String("to", report.To),
		slog.Int64("grand_total", report.Summary.GrandTotal),
	)
	return nil
}

func (j *ReportDigestJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *ReportDigestJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
