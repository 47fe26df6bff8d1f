package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

// RankingIndex mirrors rankings snapshots into Redis for fast top-N and name lookups
type RankingIndex struct {
	client    *redis.Client
	batchSize int
	logger    *slog.Logger
}

// NewRankingIndex connects to Redis and returns a RankingIndex
func NewRankingIndex(cfg *config.RedisConfig, logger *slog.Logger) (*RankingIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout+time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRankingIndexWithClient(client, cfg.BatchSize, logger), nil
}

// NewRankingIndexWithClient wraps an existing client
func NewRankingIndexWithClient(client *redis.Client, batchSize int, logger *slog.Logger) *RankingIndex {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &RankingIndex{client: client, batchSize: batchSize, logger: logger}
}

// Close closes the Redis connection
func (s *RankingIndex) Close() error {
	return s.client.Close()
}

// Ping checks connectivity
func (s *RankingIndex) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// positionsKey is the sorted set of lower-cased names scored by rank position
func positionsKey(gameID string) string {
	return fmt.Sprintf("rankings:%s", gameID)
}

// playersKey is the hash of lower-cased name to record JSON
func playersKey(gameID string) string {
	return fmt.Sprintf("rankings:%s:players", gameID)
}

func metaKey(gameID string) string {
	return fmt.Sprintf("rankings:%s:meta", gameID)
}

func stagingKey(key string) string {
	return key + ":staging"
}

func member(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IndexSnapshot replaces the index for snap.GameID. Records are written to
// staging keys in batches and swapped in with a single transaction, so
// readers see either the old index or the new one.
func (s *RankingIndex) IndexSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	posKey, plKey := positionsKey(snap.GameID), playersKey(snap.GameID)
	posStage, plStage := stagingKey(posKey), stagingKey(plKey)

	if err := s.client.Del(ctx, posStage, plStage).Err(); err != nil {
		return fmt.Errorf("clearing staging keys: %w", err)
	}

	for start := 0; start < len(snap.Players); start += s.batchSize {
		end := start + s.batchSize
		if end > len(snap.Players) {
			end = len(snap.Players)
		}

		pipe := s.client.Pipeline()
		for _, rec := range snap.Players[start:end] {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshaling record %s: %w", rec.Name, err)
			}
			m := member(rec.Name)
			// first occurrence wins so the best position is kept for duplicate names
			pipe.ZAddNX(ctx, posStage, redis.Z{Score: float64(rec.RankPosition), Member: m})
			pipe.HSetNX(ctx, plStage, m, data)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("indexing batch %d-%d: %w", start, end, err)
		}
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, posKey, plKey)
		if len(snap.Players) > 0 {
			pipe.Rename(ctx, posStage, posKey)
			pipe.Rename(ctx, plStage, plKey)
		}
		pipe.HSet(ctx, metaKey(snap.GameID),
			"game_id", snap.GameID,
			"game_name", snap.GameName,
			"total_players", snap.TotalPlayers,
			"total_available", snap.TotalAvailable,
			"fetched_at", snap.FetchedAt.UTC().Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("swapping index for %s: %w", snap.GameID, err)
	}

	s.logger.Info("ranking index updated", "game_id", snap.GameID, "players", len(snap.Players))
	return nil
}

// GetTopN returns the n best-positioned records
func (s *RankingIndex) GetTopN(ctx context.Context, gameID string, n int) ([]domain.PlayerRecord, error) {
	if n <= 0 {
		return []domain.PlayerRecord{}, nil
	}

	members, err := s.client.ZRange(ctx, positionsKey(gameID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}
	if len(members) == 0 {
		return []domain.PlayerRecord{}, nil
	}

	values, err := s.client.HMGet(ctx, playersKey(gameID), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n records: %w", err)
	}

	records := make([]domain.PlayerRecord, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn("ranking index missing record", "game_id", gameID, "member", members[i])
			continue
		}
		var rec domain.PlayerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decoding record %s: %w", members[i], err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindPlayer returns the record for name, matched case-insensitively
func (s *RankingIndex) FindPlayer(ctx context.Context, gameID, name string) (*domain.PlayerRecord, error) {
	raw, err := s.client.HGet(ctx, playersKey(gameID), member(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("finding player: %w", err)
	}

	var rec domain.PlayerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", name, err)
	}
	return &rec, nil
}

// Count returns the number of indexed players
func (s *RankingIndex) Count(ctx context.Context, gameID string) (int64, error) {
	count, err := s.client.ZCard(ctx, positionsKey(gameID)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// Meta returns the header of the indexed snapshot
func (s *RankingIndex) Meta(ctx context.Context, gameID string) (*domain.GameSummary, error) {
	result, err := s.client.HGetAll(ctx, metaKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting index meta: %w", err)
	}
	if len(result) == 0 {
		return nil, domain.ErrSnapshotNotFound
	}

	total, _ := strconv.Atoi(result["total_players"])
	fetchedAt, _ := time.Parse(time.RFC3339Nano, result["fetched_at"])

	return &domain.GameSummary{
		GameID:       result["game_id"],
		GameName:     result["game_name"],
		TotalPlayers: total,
		FetchedAt:    fetchedAt,
	}, nil
}

// Exists checks whether a game has been indexed
func (s *RankingIndex) Exists(ctx context.Context, gameID string) (bool, error) {
	exists, err := s.client.Exists(ctx, metaKey(gameID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return exists > 0, nil
}

// Delete removes every key of a game's index
func (s *RankingIndex) Delete(ctx context.Context, gameID string) error {
	posKey, plKey := positionsKey(gameID), playersKey(gameID)
	err := s.client.Del(ctx, posKey, plKey, metaKey(gameID), stagingKey(posKey), stagingKey(plKey)).Err()
	if err != nil {
		return fmt.Errorf("deleting index: %w", err)
	}
	return nil
}
