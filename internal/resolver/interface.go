package resolver

import (
	"context"

	"github.com/fc-rank-search/internal/domain"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_snapshot_loader.go github.com/fc-rank-search/internal/resolver SnapshotLoader
//go:generate mockgen -package=mocks -destination=mocks/mock_profile_fetcher.go github.com/fc-rank-search/internal/resolver ProfileFetcher
//go:generate mockgen -package=mocks -destination=mocks/mock_profile_cache.go github.com/fc-rank-search/internal/resolver ProfileCache
//go:generate mockgen -package=mocks -destination=mocks/mock_scene_source.go github.com/fc-rank-search/internal/resolver SceneSource

// SnapshotLoader reads persisted ranking snapshots
type SnapshotLoader interface {
	Load(gameID string) (*domain.Snapshot, error)
	IsStale(snap *domain.Snapshot) bool
}

// ProfileFetcher performs live profile lookups against the upstream service
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, username string) (*domain.Profile, error)
	FetchProfiles(ctx context.Context, usernames []string) []domain.ProfileResult
}

// ProfileCache stores profiles fetched from upstream
type ProfileCache interface {
	Get(key string) (domain.CacheEntry, bool)
	Set(key string, profile domain.Profile)
}

// SceneSource looks up named player groups
type SceneSource interface {
	Get(id string) (domain.Scene, error)
}
