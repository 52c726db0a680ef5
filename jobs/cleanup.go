package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-retail/meridian/internal/shared"
)

const defaultIdempotencyRetention = 7 * 24 * time.Hour

// Cleaner purges expired idempotency keys so replay protection does not
// grow without bound.
type Cleaner struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewCleaner constructs a Cleaner.
func NewCleaner(store *shared.IdempotencyStore, logger *slog.Logger) *Cleaner {
	return &Cleaner{store: store, logger: logger}
}

// Handler adapts the cleanup to an Asynq task handler.
func (c *Cleaner) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		retention := payload.OlderThan
		if retention <= 0 {
			retention = defaultIdempotencyRetention
		}
		removed, err := c.store.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		c.logger.Info("idempotency cleanup finished", "removed", removed, "retention", retention.String())
		return nil
	}
}
