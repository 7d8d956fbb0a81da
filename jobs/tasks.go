// Package jobs runs the scheduled alert scans and report digests on the
// asynq worker, plus the notification dispatch queue.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskCashDigestDaily sums today's pending shortages once per evening
	// and runs the 30-day per-worker pattern check.
	TaskCashDigestDaily = "cash:digest_daily"
	// TaskCashLargeScan alerts on every pending shortage at or above the
	// configured threshold.
	TaskCashLargeScan = "cash:large_scan"
	// TaskCashUnresolvedScan alerts on pending shortages older than the
	// configured age.
	TaskCashUnresolvedScan = "cash:unresolved_scan"
	// TaskReportDaily sends admins the previous day's reconciliation.
	TaskReportDaily = "report:daily"
	// TaskReportWeekly sends admins the trailing-week cash report.
	TaskReportWeekly = "report:weekly"
)

// ScanPayload parameterizes the shortage scans. Zero values fall back to the
// worker's configured defaults, so cron entries enqueue empty payloads.
type ScanPayload struct {
	// Threshold overrides the large-shortage threshold in minor units.
	Threshold int64 `json:"threshold,omitempty"`
	// OlderThanHours overrides the unresolved-shortage age cutoff.
	OlderThanHours int `json:"older_than_hours,omitempty"`
}

// NewScanTask wraps a scan payload into an asynq task of the given type.
func NewScanTask(taskType string, payload ScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
