package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// HistoryRepository records completed ranking refreshes in PostgreSQL
type HistoryRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewHistoryRepository creates a new PostgreSQL history repository
func NewHistoryRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*HistoryRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &HistoryRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *HistoryRepository) Close() {
	r.pool.Close()
}

// Ping checks connectivity
func (r *HistoryRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *HistoryRepository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS fetch_history (
			id BIGSERIAL PRIMARY KEY,
			game_id VARCHAR(64) NOT NULL,
			game_name VARCHAR(255) NOT NULL DEFAULT '',
			fetched_at TIMESTAMPTZ NOT NULL,
			total_players INT NOT NULL DEFAULT 0,
			total_available INT NOT NULL DEFAULT 0,
			partial BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_history_game ON fetch_history(game_id, fetched_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// RecordFetch appends a refresh result to the history
func (r *HistoryRepository) RecordFetch(ctx context.Context, result domain.RefreshResult) error {
	query := `
		INSERT INTO fetch_history (game_id, game_name, fetched_at, total_players, total_available, partial, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		result.GameID,
		result.GameName,
		result.FetchedAt,
		result.TotalPlayers,
		result.TotalAvailable,
		result.Partial,
		result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording fetch: %w", err)
	}
	return nil
}

// ListFetches returns the most recent refreshes of a game, newest first
func (r *HistoryRepository) ListFetches(ctx context.Context, gameID string, limit int) ([]domain.FetchRecord, error) {
	query := `
		SELECT id, game_id, game_name, fetched_at, total_players, total_available, partial, duration_ms
		FROM fetch_history
		WHERE game_id = $1
		ORDER BY fetched_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, gameID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing fetches: %w", err)
	}
	defer rows.Close()

	records := make([]domain.FetchRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fetches: %w", err)
	}
	return records, nil
}

// LastFetch returns the most recent refresh of a game
func (r *HistoryRepository) LastFetch(ctx context.Context, gameID string) (*domain.FetchRecord, error) {
	query := `
		SELECT id, game_id, game_name, fetched_at, total_players, total_available, partial, duration_ms
		FROM fetch_history
		WHERE game_id = $1
		ORDER BY fetched_at DESC
		LIMIT 1
	`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*domain.FetchRecord, error) {
	var rec domain.FetchRecord
	err := row.Scan(
		&rec.ID,
		&rec.GameID,
		&rec.GameName,
		&rec.FetchedAt,
		&rec.TotalPlayers,
		&rec.TotalAvailable,
		&rec.Partial,
		&rec.DurationMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning fetch record: %w", err)
	}
	return &rec, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
