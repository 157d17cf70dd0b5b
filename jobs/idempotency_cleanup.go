package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// NewIdempotencyCleanupHandler prunes idempotency keys older than the
// retention window. Expired keys let the same business action run again,
// which is intended: retention matches the longest plausible retry horizon.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := store.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		logger.Info("idempotency keys pruned",
			slog.Int64("removed", removed),
			slog.Duration("retention", retention))
		return nil
	}
}
