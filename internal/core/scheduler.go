package core

// scheduler.go prunes old split history on a ticker. A failed prune is
// logged and retried on the next tick; it never stops the process.

import (
	"context"
	"log/slog"
	"time"
)

// PruneConfig controls the history pruner.
type PruneConfig struct {
	RetentionDays int           // Entries older than this are deleted (default: 30)
	CheckInterval time.Duration // How often to prune (default: 24h)
}

func (c PruneConfig) withDefaults() PruneConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartHistoryPruner prunes once immediately, then every CheckInterval,
// until ctx is cancelled. It blocks; run it in its own goroutine.
func (s *Service) StartHistoryPruner(ctx context.Context, cfg PruneConfig) {
	if s.history == nil {
		return
	}
	cfg = cfg.withDefaults()

	slog.Info("history pruner started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CheckInterval,
	)

	s.PruneHistory(ctx, cfg.RetentionDays)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history pruner stopped")
			return
		case <-ticker.C:
			s.PruneHistory(ctx, cfg.RetentionDays)
		}
	}
}

// PruneHistory deletes history entries older than retentionDays.
func (s *Service) PruneHistory(ctx context.Context, retentionDays int) int64 {
	if s.history == nil {
		return 0
	}

	start := time.Now()
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	removed, err := s.history.Prune(ctx, cutoff)
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return 0
	}

	slog.Info("pruned split history",
		"entries_removed", removed,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return removed
}
