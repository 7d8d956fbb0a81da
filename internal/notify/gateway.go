package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Gateway delivers events to their audience. Implementations must tolerate
// being called concurrently. Emission failures are the gateway's problem;
// domain operations never fail because a notification could not be sent.
type Gateway interface {
	Notify(ctx context.Context, event Event) error
}

// LogGateway writes events to the log. Used in development and as the
// fallback transport.
type LogGateway struct {
	Logger *slog.Logger
}

// Notify implements Gateway.
func (g LogGateway) Notify(_ context.Context, event Event) error {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notify",
		slog.String("audience", string(event.Audience)),
		slog.String("target", event.Target),
		slog.String("type", string(event.Type)),
		slog.Any("payload", event.Payload),
	)
	return nil
}

// TaskTypeDispatch is the asynq task type carrying queued events.
const TaskTypeDispatch = "notify:dispatch"

// NewDispatchTask wraps an event into an asynq task.
func NewDispatchTask(event Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDispatch, data), nil
}

// QueueGateway enqueues events onto the background queue so delivery retries
// independently of the emitting request.
type QueueGateway struct {
	Client *asynq.Client
	Queue  string
	Logger *slog.Logger
}

// Notify implements Gateway.
func (g QueueGateway) Notify(ctx context.Context, event Event) error {
	task, err := NewDispatchTask(event)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(5)}
	if g.Queue != "" {
		opts = append(opts, asynq.Queue(g.Queue))
	}
	if _, err := g.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if g.Logger != nil {
			g.Logger.Error("enqueue notification", slog.String("type", string(event.Type)), slog.Any("error", err))
		}
		return err
	}
	return nil
}
