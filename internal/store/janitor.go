package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReadingPruner deletes persisted readings older than the cutoff and
// reports how many rows went away.
type ReadingPruner func(ctx context.Context, userID string, before time.Time) (int64, error)

// Janitor periodically prunes audit entries, alerts and persisted readings
// that have outlived the owning user's retention period.
type Janitor struct {
	stores   *Stores
	interval time.Duration
	logger   *zap.Logger
	readings ReadingPruner // optional
}

// NewJanitor creates a retention janitor sweeping at the given interval.
func NewJanitor(stores *Stores, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{stores: stores, interval: interval, logger: logger}
}

// SetReadingPruner attaches a database pruner so the sweep also covers
// persisted readings. Call before Run.
func (j *Janitor) SetReadingPruner(p ReadingPruner) {
	j.readings = p
}

// Run sweeps until the context is cancelled. Intended to run in its own
// goroutine under the application lifecycle.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("retention janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	consents, err := j.stores.Consent.ListConsents(ctx)
	if err != nil {
		j.logger.Error("retention sweep: failed to list consents", zap.Error(err))
		return
	}

	for _, c := range consents {
		cutoff := time.Now().AddDate(0, 0, -c.RetentionDays)

		prunedAudit, err := j.stores.Audit.PruneAudit(ctx, c.UserID, cutoff)
		if err != nil {
			j.logger.Error("retention sweep: failed to prune audit",
				zap.Error(err), zap.String("user_id", c.UserID))
		}
		prunedAlerts, err := j.stores.Alerts.PruneAlerts(ctx, c.UserID, cutoff)
		if err != nil {
			j.logger.Error("retention sweep: failed to prune alerts",
				zap.Error(err), zap.String("user_id", c.UserID))
		}

		var prunedReadings int64
		if j.readings != nil {
			prunedReadings, err = j.readings(ctx, c.UserID, cutoff)
			if err != nil {
				j.logger.Error("retention sweep: failed to prune readings",
					zap.Error(err), zap.String("user_id", c.UserID))
			}
		}

		if prunedAudit > 0 || prunedAlerts > 0 || prunedReadings > 0 {
			j.logger.Info("retention sweep pruned expired records",
				zap.String("user_id", c.UserID),
				zap.Int("audit_entries", prunedAudit),
				zap.Int("alerts", prunedAlerts),
				zap.Int64("readings", prunedReadings),
				zap.Int("retention_days", c.RetentionDays),
			)
		}
	}
}
