package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// markerTTL bounds how long alert dedupe markers live. Long enough that a
// shortage resolved within it never re-alerts, short enough that redis does
// not accumulate markers forever.
const markerTTL = 30 * 24 * time.Hour

// dedupe guards alert emission with redis SETNX markers. The scans are
// read-only over domain state, so the marker is the only record that an
// alert already went out.
type dedupe struct {
	client *redis.Client
}

// claim returns true when the caller is the first to set the marker and may
// emit. A redis failure claims true, so a broken redis means duplicate
// alerts rather than missed ones.
func (d dedupe) claim(ctx context.Context, key string) (bool, error) {
	if d.client == nil {
		return true, nil
	}
	first, err := d.client.SetNX(ctx, key, 1, markerTTL).Result()
	if err != nil {
		return true, err
	}
	return first, nil
}

// release drops a claimed marker after a failed emit so the asynq retry is
// not suppressed by its own earlier attempt. Best effort.
func (d dedupe) release(ctx context.Context, key string) {
	if d.client == nil {
		return
	}
	if err := d.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("dedupe marker release", slog.String("key", key), slog.Any("error", err))
	}
}
