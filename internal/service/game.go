package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
	"github.com/fc-rank-search/internal/search"
)

const suggestionLimit = 5

// SnapshotReader is the read side of the snapshot store
type SnapshotReader interface {
	Load(gameID string) (*domain.Snapshot, error)
	IsStale(snap *domain.Snapshot) bool
	Summaries() ([]domain.GameSummary, error)
}

// RankingIndex serves top-N reads without loading a snapshot file
type RankingIndex interface {
	GetTopN(ctx context.Context, gameID string, n int) ([]domain.PlayerRecord, error)
}

// HistoryReader exposes past refreshes
type HistoryReader interface {
	ListFetches(ctx context.Context, gameID string, limit int) ([]domain.FetchRecord, error)
	LastFetch(ctx context.Context, gameID string) (*domain.FetchRecord, error)
}

// GameService provides read operations over persisted game snapshots
type GameService struct {
	snapshots SnapshotReader
	index     RankingIndex
	history   HistoryReader
	config    *config.LeaderboardConfig
	logger    *slog.Logger
}

// NewGameService creates a new game service. index and history may be nil.
func NewGameService(
	snapshots SnapshotReader,
	index RankingIndex,
	history HistoryReader,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		snapshots: snapshots,
		index:     index,
		history:   history,
		config:    cfg,
		logger:    logger,
	}
}

func (s *GameService) load(gameID string) (*domain.Snapshot, error) {
	snap, err := s.snapshots.Load(gameID)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", gameID, err)
	}
	return snap, nil
}

func (s *GameService) clampLimit(n int) int {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}
	return n
}

// ListGames returns a summary of every persisted snapshot
func (s *GameService) ListGames(_ context.Context) ([]domain.GameSummary, error) {
	games, err := s.snapshots.Summaries()
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	return games, nil
}

// GetGame returns a snapshot's summary and score spread
func (s *GameService) GetGame(ctx context.Context, gameID string) (*domain.GameDetail, error) {
	snap, err := s.load(gameID)
	if err != nil {
		return nil, err
	}

	detail := &domain.GameDetail{
		GameSummary: domain.GameSummary{
			GameID:       snap.GameID,
			GameName:     snap.GameName,
			TotalPlayers: snap.TotalPlayers,
			FetchedAt:    snap.FetchedAt,
			IsStale:      s.snapshots.IsStale(snap),
		},
		TotalAvailable: snap.TotalAvailable,
		Stats:          search.Stats(snap.Players),
	}

	if s.history != nil {
		last, err := s.history.LastFetch(ctx, gameID)
		if err == nil {
			detail.LastFetch = last
		} else if !domain.IsNotFoundError(err) {
			s.logger.Warn("failed to load last fetch", "game_id", gameID, "error", err)
		}
	}

	return detail, nil
}

// Search returns one page of players matching filters
func (s *GameService) Search(_ context.Context, gameID string, filters domain.SearchFilters, page, pageSize int) (*domain.SearchResult, error) {
	snap, err := s.load(gameID)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = s.config.DefaultPageSize
	}
	if pageSize > s.config.MaxLimit {
		pageSize = s.config.MaxLimit
	}

	result := search.Search(snap.Players, filters, page, pageSize)
	return &result, nil
}

// FindPlayer looks a player up by exact name. When there is no exact match
// the returned PlayerMatch carries partial-name suggestions alongside ErrPlayerNotFound.
func (s *GameService) FindPlayer(_ context.Context, gameID, name string) (*domain.PlayerMatch, error) {
	snap, err := s.load(gameID)
	if err != nil {
		return nil, err
	}

	if p, ok := search.FindByName(snap.Players, name); ok {
		return &domain.PlayerMatch{Player: &p}, nil
	}

	partial := search.FindByPartialName(snap.Players, name, suggestionLimit)
	match := &domain.PlayerMatch{Suggestions: make([]string, 0, len(partial))}
	for _, p := range partial {
		match.Suggestions = append(match.Suggestions, p.Name)
	}
	return match, fmt.Errorf("finding %q in %s: %w", name, gameID, domain.ErrPlayerNotFound)
}

// Countries returns the sorted distinct countries of a game
func (s *GameService) Countries(_ context.Context, gameID string) ([]string, error) {
	snap, err := s.load(gameID)
	if err != nil {
		return nil, err
	}
	return search.UniqueCountries(snap.Players), nil
}

// TopPlayers returns the best n players, reading the ranking index first when available
func (s *GameService) TopPlayers(ctx context.Context, gameID string, n int) ([]domain.PlayerRecord, error) {
	n = s.clampLimit(n)

	if s.index != nil {
		top, err := s.index.GetTopN(ctx, gameID, n)
		if err == nil && len(top) > 0 {
			return top, nil
		}
		if err != nil {
			s.logger.Warn("ranking index read failed, using snapshot", "game_id", gameID, "error", err)
		}
	}

	snap, err := s.load(gameID)
	if err != nil {
		return nil, err
	}
	return search.TopPlayers(snap.Players, n), nil
}

// Statistics computes the statistics view of a game
func (s *GameService) Statistics(_ context.Context, gameID string) (*domain.GameStatistics, error) {
	snap, err := s.load(gameID)
	if err != nil {
		return nil, err
	}
	stats := search.GenerateStatistics(snap)
	return &stats, nil
}

// GamesStatistics returns the statistics of every persisted game keyed by game id
func (s *GameService) GamesStatistics(ctx context.Context) (map[string]domain.GameStatistics, error) {
	games, err := s.ListGames(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.GameStatistics, len(games))
	for _, g := range games {
		stats, err := s.Statistics(ctx, g.GameID)
		if err != nil {
			s.logger.Warn("failed to compute statistics", "game_id", g.GameID, "error", err)
			continue
		}
		out[g.GameID] = *stats
	}
	return out, nil
}

// History returns recent refreshes of a game, newest first
func (s *GameService) History(ctx context.Context, gameID string, limit int) ([]domain.FetchRecord, error) {
	if s.history == nil {
		return []domain.FetchRecord{}, nil
	}
	records, err := s.history.ListFetches(ctx, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history for %s: %w", gameID, err)
	}
	return records, nil
}
