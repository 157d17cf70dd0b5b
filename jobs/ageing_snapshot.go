package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nusantara-erp/ledger-core/internal/ageing"
)

const ageingSnapshotTTL = 48 * time.Hour

// AgeingSnapshotDeps carries dependencies for the snapshot job.
type AgeingSnapshotDeps struct {
	Service *ageing.Service
	Redis   *redis.Client
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewAgeingSnapshotHandler computes the ageing schedule for one side and
// caches it in Redis keyed by the as-of date, so dashboards read a stable
// daily figure instead of recomputing per request.
func NewAgeingSnapshotHandler(deps AgeingSnapshotDeps) asynq.HandlerFunc {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AgeingSnapshotPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		side := ageing.Side(payload.Side)
		if !side.Valid() {
			return asynq.SkipRetry
		}

		asOf := now().UTC()
		schedule, err := deps.Service.Schedule(ctx, side, asOf)
		if err != nil {
			return err
		}
		data, err := json.Marshal(schedule)
		if err != nil {
			return err
		}
		key := SnapshotKey(side, asOf)
		if err := deps.Redis.Set(ctx, key, data, ageingSnapshotTTL).Err(); err != nil {
			return err
		}
		deps.Logger.Info("ageing snapshot stored",
			slog.String("side", string(side)), slog.String("key", key))
		return nil
	}
}

// SnapshotKey names the Redis key for one side and day.
func SnapshotKey(side ageing.Side, asOf time.Time) string {
	return "ageing:snapshot:" + string(side) + ":" + asOf.Format("2006-01-02")
}
