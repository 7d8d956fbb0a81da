package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sabeel-delivery/sabeel/internal/notify"
)

// DispatchJob delivers queued notification events through the terminal
// gateway. The queue's retry policy covers transient delivery failures.
type DispatchJob struct {
	Gateway notify.Gateway
	Logger  *slog.Logger
}

// NewDispatchJob initialises the dispatch handler.
func NewDispatchJob(gateway notify.Gateway, logger *slog.Logger) *DispatchJob {
	return &DispatchJob{Gateway: gateway, Logger: logger}
}

// Handle executes one queued delivery.
func (j *DispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Gateway == nil {
		return errors.New("notify dispatch: handler not configured")
	}
	var event notify.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	if err := j.Gateway.Notify(ctx, event); err != nil {
		j.logger().Error("deliver event",
			slog.String("type", string(event.Type)),
			slog.Any("error", err))
		return err
	}
	return nil
}

func (j *DispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", notify.TaskTypeDispatch))
	}
	return slog.Default().With(slog.String("job", notify.TaskTypeDispatch))
}
