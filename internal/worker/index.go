package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/fc-rank-search/internal/domain"
)

// SnapshotSource lists and loads persisted snapshots
type SnapshotSource interface {
	ListAvailable() ([]string, error)
	Load(gameID string) (*domain.Snapshot, error)
}

// SnapshotIndexer mirrors a snapshot into the ranking index
type SnapshotIndexer interface {
	IndexSnapshot(ctx context.Context, snap *domain.Snapshot) error
}

// IndexSync rebuilds the ranking index from the snapshots on disk
type IndexSync struct {
	snapshots SnapshotSource
	index     SnapshotIndexer
	logger    *slog.Logger
}

// NewIndexSync creates a new index sync
func NewIndexSync(snapshots SnapshotSource, index SnapshotIndexer, logger *slog.Logger) *IndexSync {
	return &IndexSync{snapshots: snapshots, index: index, logger: logger}
}

// SyncAllFromDisk indexes every readable snapshot and returns how many were indexed.
// Unreadable snapshots and per-game index failures are logged and skipped.
func (s *IndexSync) SyncAllFromDisk(ctx context.Context) (int, error) {
	s.logger.Info("syncing ranking index from disk")
	start := time.Now()

	ids, err := s.snapshots.ListAvailable()
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return synced, err
		}

		snap, err := s.snapshots.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "game_id", id, "error", err)
			continue
		}
		if err := s.index.IndexSnapshot(ctx, snap); err != nil {
			s.logger.Error("failed to index snapshot", "game_id", id, "error", err)
			continue
		}
		synced++
	}

	s.logger.Info("ranking index sync completed", "games", synced, "available", len(ids), "duration", time.Since(start))
	return synced, nil
}
