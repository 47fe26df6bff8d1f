package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/common/fileutil"
	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

const configVersion = "1.0"

// Registry serves scenes from a JSON file, re-reading it at most once per reload interval
type Registry struct {
	file           string
	reloadInterval time.Duration
	clock          clock.Clock
	logger         *slog.Logger

	mu       sync.Mutex
	current  *domain.SceneConfig
	loadedAt time.Time
}

// NewRegistry creates a Registry backed by cfg.File
func NewRegistry(cfg *config.ScenesConfig, clk clock.Clock, logger *slog.Logger) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("creating scenes dir: %w", err)
	}
	if clk == nil {
		clk = &clock.DefaultClock{}
	}
	interval := cfg.ReloadInterval
	if interval <= 0 {
		interval = time.Minute
	}

	return &Registry{
		file:           cfg.File,
		reloadInterval: interval,
		clock:          clk,
		logger:         logger,
	}, nil
}

func (r *Registry) emptyConfig() *domain.SceneConfig {
	return &domain.SceneConfig{
		Scenes: []domain.Scene{},
		Metadata: domain.SceneMetadata{
			LastUpdated: r.clock.Now(),
			Version:     configVersion,
		},
	}
}

// load returns the current scene config, re-reading the file when the cached copy is too old
func (r *Registry) load() *domain.SceneConfig {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && now.Sub(r.loadedAt) < r.reloadInterval {
		return r.current
	}

	data, err := os.ReadFile(r.file)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := r.emptyConfig()
		if raw, mErr := json.MarshalIndent(cfg, "", "  "); mErr == nil {
			if wErr := fileutil.WriteFileAtomic(r.file, raw, 0o644); wErr != nil {
				r.logger.Warn("failed to create default scenes file", "file", r.file, "error", wErr)
			} else {
				r.logger.Info("created default scenes file", "file", r.file)
			}
		}
		r.current, r.loadedAt = cfg, now
		return cfg
	}
	if err != nil {
		r.logger.Error("failed to read scenes file", "file", r.file, "error", err)
		return r.cacheEmpty(now)
	}

	var cfg domain.SceneConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		r.logger.Error("invalid scenes file", "file", r.file, "error", err)
		return r.cacheEmpty(now)
	}
	if cfg.Scenes == nil {
		r.logger.Error("invalid scenes file: missing scenes array", "file", r.file)
		return r.cacheEmpty(now)
	}

	r.current, r.loadedAt = &cfg, now
	r.logger.Debug("scenes loaded", "file", r.file, "scenes", len(cfg.Scenes))
	return &cfg
}

// cacheEmpty keeps an empty config until the next reload. The caller must hold r.mu.
func (r *Registry) cacheEmpty(now time.Time) *domain.SceneConfig {
	cfg := r.emptyConfig()
	r.current, r.loadedAt = cfg, now
	return cfg
}

// Invalidate forces the next call to re-read the file
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.current = nil
	r.loadedAt = time.Time{}
	r.mu.Unlock()
}

// All returns every scene
func (r *Registry) All() []domain.Scene {
	scenes := r.load().Scenes
	out := make([]domain.Scene, len(scenes))
	copy(out, scenes)
	return out
}

// ByGame returns the scenes for gameID
func (r *Registry) ByGame(gameID string) []domain.Scene {
	out := make([]domain.Scene, 0)
	for _, s := range r.load().Scenes {
		if s.GameID == gameID {
			out = append(out, s)
		}
	}
	return out
}

// Get returns the scene with the given id
func (r *Registry) Get(id string) (domain.Scene, error) {
	for _, s := range r.load().Scenes {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Scene{}, domain.ErrSceneNotFound
}

// Games lists the games that have at least one scene, in first-seen order
func (r *Registry) Games() []domain.SceneGame {
	var order []string
	games := make(map[string]*domain.SceneGame)

	for _, s := range r.load().Scenes {
		if g, ok := games[s.GameID]; ok {
			g.SceneCount++
			continue
		}
		games[s.GameID] = &domain.SceneGame{GameID: s.GameID, GameName: s.GameName, SceneCount: 1}
		order = append(order, s.GameID)
	}

	out := make([]domain.SceneGame, 0, len(order))
	for _, id := range order {
		out = append(out, *games[id])
	}
	return out
}

// Stats aggregates the registry
func (r *Registry) Stats() domain.SceneStats {
	cfg := r.load()

	totalPlayers := 0
	games := make(map[string]struct{})
	for _, s := range cfg.Scenes {
		totalPlayers += len(s.Players)
		games[s.GameID] = struct{}{}
	}

	stats := domain.SceneStats{
		TotalScenes:     len(cfg.Scenes),
		TotalPlayers:    totalPlayers,
		GamesWithScenes: len(games),
		LastUpdated:     cfg.Metadata.LastUpdated,
	}
	if len(cfg.Scenes) > 0 {
		stats.AveragePlayersPerScene = (totalPlayers*2 + len(cfg.Scenes)) / (2 * len(cfg.Scenes))
	}
	return stats
}
