package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/common/fileutil"
	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

const fileSuffix = "-rankings.json"

// Store persists one rankings snapshot per game as a JSON file
type Store struct {
	dir        string
	staleAfter time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	// serializes writers; readers rely on the atomic rename
	mu sync.Mutex
}

// NewStore creates the snapshot directory if needed and returns a Store
func NewStore(cfg *config.SnapshotConfig, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	if clk == nil {
		clk = &clock.DefaultClock{}
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}

	return &Store{
		dir:        cfg.Dir,
		staleAfter: staleAfter,
		clock:      clk,
		logger:     logger,
	}, nil
}

// path returns the file path for a game's snapshot
func (s *Store) path(gameID string) string {
	return filepath.Join(s.dir, gameID+fileSuffix)
}

// Save persists a snapshot, replacing any prior snapshot for the same game
func (s *Store) Save(snap *domain.Snapshot) error {
	if !snap.Valid() {
		return fmt.Errorf("saving snapshot: %w", domain.ErrInvalidRequest)
	}
	if strings.ContainsAny(snap.GameID, `/\`) {
		return fmt.Errorf("saving snapshot: invalid game id %q: %w", snap.GameID, domain.ErrInvalidRequest)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fileutil.WriteFileAtomic(s.path(snap.GameID), data, 0o644); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", snap.GameID, err)
	}

	s.logger.Info("snapshot saved",
		"game_id", snap.GameID,
		"players", len(snap.Players),
		"total_available", snap.TotalAvailable,
	)
	return nil
}

// Load returns the most recently saved snapshot for a game.
// A missing or structurally invalid file yields domain.ErrSnapshotNotFound.
func (s *Store) Load(gameID string) (*domain.Snapshot, error) {
	if gameID == "" || strings.ContainsAny(gameID, `/\`) {
		return nil, domain.ErrSnapshotNotFound
	}

	data, err := os.ReadFile(s.path(gameID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", gameID, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("corrupt snapshot file, treating as absent", "game_id", gameID, "error", err)
		return nil, domain.ErrSnapshotNotFound
	}
	if !snap.Valid() {
		s.logger.Warn("snapshot file missing required fields, treating as absent", "game_id", gameID)
		return nil, domain.ErrSnapshotNotFound
	}

	return &snap, nil
}

// IsStale reports whether the snapshot is older than the configured threshold
func (s *Store) IsStale(snap *domain.Snapshot) bool {
	return s.IsStaleAfter(snap, s.staleAfter)
}

// IsStaleAfter reports whether now - FetchedAt exceeds threshold
func (s *Store) IsStaleAfter(snap *domain.Snapshot, threshold time.Duration) bool {
	return s.clock.Now().Sub(snap.FetchedAt) > threshold
}

// ListAvailable returns the ids of all persisted snapshots, sorted
func (s *Store) ListAvailable() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Summaries loads every valid snapshot and returns its header
func (s *Store) Summaries() ([]domain.GameSummary, error) {
	ids, err := s.ListAvailable()
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.GameSummary, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Load(id)
		if err != nil {
			if !errors.Is(err, domain.ErrSnapshotNotFound) {
				s.logger.Warn("failed to load snapshot summary", "game_id", id, "error", err)
			}
			continue
		}
		summaries = append(summaries, domain.GameSummary{
			GameID:       snap.GameID,
			GameName:     snap.GameName,
			TotalPlayers: snap.TotalPlayers,
			FetchedAt:    snap.FetchedAt,
			IsStale:      s.IsStale(snap),
		})
	}
	return summaries, nil
}
