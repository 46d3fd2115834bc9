package history

// retention.go prunes old batch history so the tables do not grow without
// bound. The sweeper is long-running and context-aware for graceful
// shutdown; a failed sweep is logged and retried on the next interval, it
// never takes the application down.

import (
	"context"
	"time"
)

const purgeSQL = `
DELETE FROM dispatch_batches
WHERE created_at < $1
`

// RetentionConfig tunes the history sweeper. Zero values fall back to the
// defaults.
type RetentionConfig struct {
	MaxAge        time.Duration // how long finished batches stay queryable (default 90 days)
	SweepInterval time.Duration // how often to sweep (default 24h)
}

// withDefaults normalizes a RetentionConfig.
func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = 90 * 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 24 * time.Hour
	}
	return c
}

// StartRetentionSweeper deletes batches older than the retention window,
// once immediately and then every sweep interval, until the context is
// cancelled. Intended to run as a goroutine from main.
func (s *Store) StartRetentionSweeper(ctx context.Context, cfg RetentionConfig) {
	cfg = cfg.withDefaults()

	s.logger.Info("history retention sweeper started",
		"max_age", cfg.MaxAge,
		"sweep_interval", cfg.SweepInterval,
	)

	s.sweep(ctx, cfg.MaxAge)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("history retention sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx, cfg.MaxAge)
		}
	}
}

// sweep runs one purge cycle and logs the outcome.
func (s *Store) sweep(ctx context.Context, maxAge time.Duration) {
	start := time.Now()

	purged, err := s.PurgeOlderThan(ctx, time.Now().Add(-maxAge))
	if err != nil {
		s.logger.Error("history purge failed", "error", err)
		return
	}
	if purged > 0 {
		s.logger.Info("purged old batch history",
			"batches_purged", purged,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// PurgeOlderThan deletes batches recorded before the cutoff. Line rows go
// with their batch through the ON DELETE CASCADE constraint. Returns the
// number of batches removed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeSQL, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
