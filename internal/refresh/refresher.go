package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/domain"
	"github.com/fc-rank-search/internal/fightcade"
)

// RankingFetcher pulls a full ranking list from upstream
type RankingFetcher interface {
	FetchAllPages(ctx context.Context, gameID string, maxPlayers int) (*fightcade.Page, error)
}

// SnapshotStore persists snapshots
type SnapshotStore interface {
	Save(snap *domain.Snapshot) error
	Load(gameID string) (*domain.Snapshot, error)
}

// Indexer mirrors snapshots into a secondary index
type Indexer interface {
	IndexSnapshot(ctx context.Context, snap *domain.Snapshot) error
}

// HistoryRecorder stores completed refreshes
type HistoryRecorder interface {
	RecordFetch(ctx context.Context, result domain.RefreshResult) error
}

// Notifier announces new snapshots to subscribers
type Notifier interface {
	BroadcastSnapshotUpdate(snap *domain.Snapshot, partial bool)
}

// Refresher rebuilds a game's snapshot from upstream and fans the result out
type Refresher struct {
	fetcher RankingFetcher
	store   SnapshotStore
	clock   clock.Clock
	logger  *slog.Logger

	indexer  Indexer
	history  HistoryRecorder
	notifier Notifier

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option configures optional Refresher collaborators
type Option func(*Refresher)

// WithIndexer mirrors every new snapshot into idx
func WithIndexer(idx Indexer) Option {
	return func(r *Refresher) { r.indexer = idx }
}

// WithHistory records every refresh in h
func WithHistory(h HistoryRecorder) Option {
	return func(r *Refresher) { r.history = h }
}

// WithNotifier broadcasts every new snapshot through n
func WithNotifier(n Notifier) Option {
	return func(r *Refresher) { r.notifier = n }
}

// New creates a new Refresher
func New(fetcher RankingFetcher, store SnapshotStore, clk clock.Clock, logger *slog.Logger, opts ...Option) *Refresher {
	if clk == nil {
		clk = &clock.DefaultClock{}
	}
	r := &Refresher{
		fetcher:  fetcher,
		store:    store,
		clock:    clk,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InProgress reports whether a refresh of gameID is running
func (r *Refresher) InProgress(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[gameID]
	return ok
}

func (r *Refresher) acquire(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inFlight[gameID]; ok {
		return false
	}
	r.inFlight[gameID] = struct{}{}
	return true
}

func (r *Refresher) release(gameID string) {
	r.mu.Lock()
	delete(r.inFlight, gameID)
	r.mu.Unlock()
}

// Refresh fetches the full ranking list for req.GameID and replaces its snapshot.
// A second refresh of the same game while one is running fails with ErrRefreshInProgress.
func (r *Refresher) Refresh(ctx context.Context, req domain.RefreshRequest) (*domain.RefreshResult, error) {
	gameID, err := r.reserve(req)
	if err != nil {
		return nil, err
	}
	defer r.release(gameID)

	return r.run(ctx, gameID, req)
}

// Start reserves gameID and runs the refresh in the background with the given timeout.
// It fails immediately when the id is invalid or a refresh of the game is already running.
func (r *Refresher) Start(req domain.RefreshRequest, timeout time.Duration) error {
	gameID, err := r.reserve(req)
	if err != nil {
		return err
	}

	go func() {
		defer r.release(gameID)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := r.run(ctx, gameID, req); err != nil {
			r.logger.Error("background refresh failed", "game_id", gameID, "error", err)
		}
	}()
	return nil
}

// reserve validates the request and claims its game
func (r *Refresher) reserve(req domain.RefreshRequest) (string, error) {
	gameID := strings.TrimSpace(req.GameID)
	if gameID == "" || strings.ContainsAny(gameID, `/\`) {
		return "", fmt.Errorf("invalid game id %q: %w", req.GameID, domain.ErrInvalidRequest)
	}
	if !r.acquire(gameID) {
		return "", fmt.Errorf("refreshing %s: %w", gameID, domain.ErrRefreshInProgress)
	}
	return gameID, nil
}

func (r *Refresher) run(ctx context.Context, gameID string, req domain.RefreshRequest) (*domain.RefreshResult, error) {
	gameName := r.gameName(gameID, req.GameName)
	start := r.clock.Now()

	r.logger.Info("refresh started", "game_id", gameID, "game_name", gameName, "request_id", req.RequestID)

	page, err := r.fetcher.FetchAllPages(ctx, gameID, req.MaxPlayers)
	if err != nil {
		return nil, fmt.Errorf("refreshing %s: %w", gameID, err)
	}

	snap := BuildSnapshot(gameID, gameName, page, r.clock.Now())
	if err := r.store.Save(snap); err != nil {
		return nil, fmt.Errorf("refreshing %s: %w", gameID, err)
	}

	result := &domain.RefreshResult{
		GameID:         gameID,
		GameName:       gameName,
		TotalPlayers:   snap.TotalPlayers,
		TotalAvailable: snap.TotalAvailable,
		Partial:        page.Partial,
		FetchedAt:      snap.FetchedAt,
		Duration:       r.clock.Now().Sub(start),
	}

	// secondary sinks are best effort; the snapshot on disk is the source of truth
	if r.indexer != nil {
		if err := r.indexer.IndexSnapshot(ctx, snap); err != nil {
			r.logger.Warn("failed to index snapshot", "game_id", gameID, "error", err)
		}
	}
	if r.history != nil {
		if err := r.history.RecordFetch(ctx, *result); err != nil {
			r.logger.Warn("failed to record fetch history", "game_id", gameID, "error", err)
		}
	}
	if r.notifier != nil {
		r.notifier.BroadcastSnapshotUpdate(snap, page.Partial)
	}

	r.logger.Info("refresh completed",
		"game_id", gameID,
		"players", result.TotalPlayers,
		"total_available", result.TotalAvailable,
		"partial", result.Partial,
		"duration", result.Duration,
	)
	return result, nil
}

// gameName prefers the requested name, then the name already on disk, then the catalog
func (r *Refresher) gameName(gameID, requested string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	if snap, err := r.store.Load(gameID); err == nil && snap.GameName != "" {
		return snap.GameName
	}
	return domain.GameName(gameID)
}

// BuildSnapshot converts an upstream ranking list into a snapshot.
// Positions follow upstream order starting at 1.
func BuildSnapshot(gameID, gameName string, page *fightcade.Page, fetchedAt time.Time) *domain.Snapshot {
	players := make([]domain.PlayerRecord, len(page.Players))
	for i := range page.Players {
		players[i] = page.Players[i].ToRecord(gameID, i+1)
	}

	total := page.TotalCount
	if total < len(players) {
		total = len(players)
	}

	return &domain.Snapshot{
		GameID:         gameID,
		GameName:       gameName,
		Players:        players,
		FetchedAt:      fetchedAt,
		TotalPlayers:   len(players),
		TotalAvailable: total,
	}
}
