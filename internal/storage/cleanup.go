package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ReapOrphans removes workspaces older than Storage.OrphanTTL every
// Storage.ReapInterval until ctx is done.
func (stg *storage) ReapOrphans(ctx context.Context) {
	interval := stg.cfg.Storage.ReapInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := stg.log.With(slog.String("action", "reap_orphans"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			stg.performReap(ctx)
		case <-ctx.Done():
			log.Info("orphan reaper stopped")

			return
		}
	}
}

func (stg *storage) performReap(ctx context.Context) {
	log := stg.log

	orphans := stg.getOrphans(time.Now())
	if len(orphans) == 0 {
		log.DebugContext(ctx, "no orphaned workspaces found")

		return
	}

	log.InfoContext(ctx, "about to remove orphaned workspaces", slog.Int("count", len(orphans)))

	removed := 0

	for _, path := range orphans {
		if err := os.RemoveAll(path); err != nil {
			log.ErrorContext(ctx, "failed to remove orphan", slog.String("path", path), slog.Any("error", err))

			continue
		}

		removed++

		log.DebugContext(ctx, "orphan removed", slog.String("path", path))
	}

	stg.metrics.RecordCleanup("orphan", removed)
}

func (stg *storage) getOrphans(now time.Time) []string {
	entries, err := os.ReadDir(stg.dir)
	if err != nil {
		stg.log.Error("read download dir", slog.Any("error", err))

		return nil
	}

	var orphans []string

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Add(stg.cfg.Storage.OrphanTTL).Before(now) {
			orphans = append(orphans, filepath.Join(stg.dir, entry.Name()))
		}
	}

	return orphans
}
