package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

// Resolver blends persisted snapshots with live profile lookups
type Resolver struct {
	snapshots   SnapshotLoader
	profiles    ProfileFetcher
	cache       ProfileCache
	scenes      SceneSource
	lookupDelay time.Duration
	maxBatch    int
	logger      *slog.Logger
}

// New creates a new Resolver
func New(
	cfg *config.ResolverConfig,
	snapshots SnapshotLoader,
	profiles ProfileFetcher,
	cache ProfileCache,
	scenes SceneSource,
	logger *slog.Logger,
) *Resolver {
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 50
	}

	return &Resolver{
		snapshots:   snapshots,
		profiles:    profiles,
		cache:       cache,
		scenes:      scenes,
		lookupDelay: cfg.LookupDelay,
		maxBatch:    maxBatch,
		logger:      logger,
	}
}

// MaxBatch returns the largest accepted LookupPlayers batch
func (r *Resolver) MaxBatch() int {
	return r.maxBatch
}

// ResolveGroup resolves usernames for gameID against the snapshot first,
// falling back to cached or live profiles for misses. An error is returned
// only when there is no snapshot and upstream could not be reached for any
// of the misses.
func (r *Resolver) ResolveGroup(ctx context.Context, gameID string, usernames []string) (*domain.Resolution, error) {
	res := &domain.Resolution{
		GameID:  gameID,
		Mode:    domain.ModeHybrid,
		Players: make([]domain.ResolvedPlayer, 0, len(usernames)),
	}
	res.Summary.Requested = len(usernames)

	snap, err := r.snapshots.Load(gameID)
	if err != nil {
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			r.logger.Warn("snapshot load failed, resolving live only", "game_id", gameID, "error", err)
		}
		snap = nil
		res.Mode = domain.ModeLiveOnly
	}
	if snap != nil {
		fetchedAt := snap.FetchedAt
		res.SnapshotFetchedAt = &fetchedAt
		res.SnapshotStale = r.snapshots.IsStale(snap)
	}

	index := indexPlayers(snap)

	var misses []string
	for _, username := range usernames {
		if rec, ok := index[normalizeName(username)]; ok {
			res.Players = append(res.Players, fromRecord(username, rec))
			continue
		}
		misses = append(misses, username)
	}

	attempts, unreachable := r.resolveMisses(ctx, gameID, misses, res)

	sortResolved(res.Players)
	tally(res)

	if snap == nil && attempts > 0 && unreachable == attempts && res.Summary.Live == 0 {
		return nil, fmt.Errorf("resolving %d players for %s: %w", len(usernames), gameID, domain.ErrUpstreamUnavailable)
	}

	r.logger.Info("group resolved",
		"game_id", gameID,
		"mode", res.Mode,
		"requested", res.Summary.Requested,
		"snapshot", res.Summary.Snapshot,
		"live", res.Summary.Live,
		"unresolved", res.Summary.Unresolved,
	)
	return res, nil
}

// resolveMisses appends a live or unresolved entry for each username. It
// reports how many upstream calls were made and how many of those could
// not reach upstream at all.
func (r *Resolver) resolveMisses(ctx context.Context, gameID string, misses []string, res *domain.Resolution) (attempts, unreachable int) {
	for _, username := range misses {
		if entry, ok := r.cache.Get(username); ok {
			res.Players = append(res.Players, fromProfile(username, gameID, &entry.Profile))
			continue
		}

		if attempts > 0 && r.lookupDelay > 0 {
			if err := sleepWithContext(ctx, r.lookupDelay); err != nil {
				res.Players = append(res.Players, unresolved(username, err))
				continue
			}
		}
		attempts++

		profile, err := r.profiles.FetchProfile(ctx, username)
		if err != nil {
			if errors.Is(err, domain.ErrUpstreamUnavailable) {
				unreachable++
			}
			if !errors.Is(err, domain.ErrPlayerNotFound) {
				r.logger.Warn("live lookup failed", "username", username, "game_id", gameID, "error", err)
				res.Players = append(res.Players, unresolved(username, err))
				continue
			}
			res.Players = append(res.Players, unresolved(username, nil))
			continue
		}

		r.cache.Set(username, *profile)
		res.Players = append(res.Players, fromProfile(username, gameID, profile))
	}
	return attempts, unreachable
}

// ResolveScene runs ResolveGroup for a scene. When upstream is unreachable
// it degrades to the snapshot-only view with Fallback set.
func (r *Resolver) ResolveScene(ctx context.Context, sceneID string) (*domain.SceneResolution, error) {
	scene, err := r.scenes.Get(sceneID)
	if err != nil {
		return nil, err
	}

	res, err := r.ResolveGroup(ctx, scene.GameID, scene.Players)
	if err != nil {
		r.logger.Warn("hybrid resolution failed, falling back to cached", "scene_id", sceneID, "error", err)
		cached := r.resolveCached(scene)
		cached.Fallback = true
		return &domain.SceneResolution{Scene: scene, Resolution: *cached}, nil
	}

	return &domain.SceneResolution{Scene: scene, Resolution: *res}, nil
}

// ResolveSceneCached resolves a scene against the persisted snapshot only
func (r *Resolver) ResolveSceneCached(_ context.Context, sceneID string) (*domain.SceneResolution, error) {
	scene, err := r.scenes.Get(sceneID)
	if err != nil {
		return nil, err
	}
	return &domain.SceneResolution{Scene: scene, Resolution: *r.resolveCached(scene)}, nil
}

func (r *Resolver) resolveCached(scene domain.Scene) *domain.Resolution {
	res := &domain.Resolution{
		GameID:  scene.GameID,
		Mode:    domain.ModeCached,
		Players: make([]domain.ResolvedPlayer, 0, len(scene.Players)),
	}
	res.Summary.Requested = len(scene.Players)

	snap, err := r.snapshots.Load(scene.GameID)
	if err != nil {
		snap = nil
	}
	if snap != nil {
		fetchedAt := snap.FetchedAt
		res.SnapshotFetchedAt = &fetchedAt
		res.SnapshotStale = r.snapshots.IsStale(snap)
	}

	index := indexPlayers(snap)
	for _, username := range scene.Players {
		if rec, ok := index[normalizeName(username)]; ok {
			res.Players = append(res.Players, fromRecord(username, rec))
			continue
		}
		res.Players = append(res.Players, unresolved(username, nil))
	}

	sortResolved(res.Players)
	tally(res)
	return res
}

// ResolveSceneLive fetches every scene player from upstream concurrently
func (r *Resolver) ResolveSceneLive(ctx context.Context, sceneID string) (*domain.SceneResolution, error) {
	scene, err := r.scenes.Get(sceneID)
	if err != nil {
		return nil, err
	}

	res := &domain.Resolution{
		GameID:  scene.GameID,
		Mode:    domain.ModeLive,
		Players: make([]domain.ResolvedPlayer, 0, len(scene.Players)),
	}
	res.Summary.Requested = len(scene.Players)

	for _, result := range r.profiles.FetchProfiles(ctx, scene.Players) {
		switch {
		case result.Found && result.Profile != nil:
			r.cache.Set(result.Username, *result.Profile)
			res.Players = append(res.Players, fromProfile(result.Username, scene.GameID, result.Profile))
		case result.Error != "":
			res.Players = append(res.Players, unresolved(result.Username, errors.New(result.Error)))
		default:
			res.Players = append(res.Players, unresolved(result.Username, nil))
		}
	}

	sortResolved(res.Players)
	tally(res)
	return &domain.SceneResolution{Scene: scene, Resolution: *res}, nil
}

// LookupPlayer returns a single profile, preferring the cache
func (r *Resolver) LookupPlayer(ctx context.Context, username string) (*domain.ProfileResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("empty username: %w", domain.ErrInvalidRequest)
	}

	if entry, ok := r.cache.Get(username); ok {
		profile := entry.Profile
		return &domain.ProfileResult{Username: username, Profile: &profile, Found: true, Cached: true}, nil
	}

	profile, err := r.profiles.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	r.cache.Set(username, *profile)

	return &domain.ProfileResult{Username: username, Profile: profile, Found: true}, nil
}

// LookupPlayers resolves a batch of usernames, serving cache hits directly
// and fetching the rest concurrently. Results keep the input order.
func (r *Resolver) LookupPlayers(ctx context.Context, usernames []string) ([]domain.ProfileResult, error) {
	if len(usernames) == 0 {
		return nil, fmt.Errorf("no usernames: %w", domain.ErrInvalidRequest)
	}
	if len(usernames) > r.maxBatch {
		return nil, fmt.Errorf("batch of %d exceeds limit %d: %w", len(usernames), r.maxBatch, domain.ErrInvalidRequest)
	}

	results := make([]domain.ProfileResult, len(usernames))
	var missIdx []int
	var missNames []string

	for i, username := range usernames {
		if entry, ok := r.cache.Get(username); ok {
			profile := entry.Profile
			results[i] = domain.ProfileResult{Username: username, Profile: &profile, Found: true, Cached: true}
			continue
		}
		missIdx = append(missIdx, i)
		missNames = append(missNames, username)
	}

	if len(missNames) > 0 {
		for j, result := range r.profiles.FetchProfiles(ctx, missNames) {
			if result.Found && result.Profile != nil {
				r.cache.Set(result.Username, *result.Profile)
			}
			results[missIdx[j]] = result
		}
	}

	return results, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// indexPlayers maps normalized names to records, keeping the best position on duplicates
func indexPlayers(snap *domain.Snapshot) map[string]domain.PlayerRecord {
	if snap == nil {
		return nil
	}
	index := make(map[string]domain.PlayerRecord, len(snap.Players))
	for _, rec := range snap.Players {
		key := normalizeName(rec.Name)
		if _, seen := index[key]; !seen {
			index[key] = rec
		}
	}
	return index
}

func fromRecord(username string, rec domain.PlayerRecord) domain.ResolvedPlayer {
	return domain.ResolvedPlayer{
		Username:     username,
		RankPosition: rec.RankPosition,
		Score:        rec.Score,
		Tier:         rec.Tier,
		TotalMatches: rec.TotalMatches,
		Country:      rec.Country,
		Source:       domain.SourceSnapshot,
	}
}

// fromProfile builds a live entry. The tier is not a global position, so
// RankPosition stays 0.
func fromProfile(username, gameID string, profile *domain.Profile) domain.ResolvedPlayer {
	info, ok := profile.Game(gameID)
	if !ok {
		return unresolved(username, nil)
	}

	tier := domain.NormalizeTier(info.Rank)
	country := profile.Country
	if country == "" {
		country = domain.UnknownCountry
	}
	return domain.ResolvedPlayer{
		Username:     username,
		Score:        domain.TierScore(tier),
		Tier:         tier,
		TotalMatches: info.NumMatches,
		Country:      country,
		Source:       domain.SourceLive,
	}
}

func unresolved(username string, err error) domain.ResolvedPlayer {
	p := domain.ResolvedPlayer{
		Username: username,
		Country:  domain.UnknownCountry,
		Source:   domain.SourceUnresolved,
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

// sortResolved puts known positions first, ascending; unknown positions keep their order
func sortResolved(players []domain.ResolvedPlayer) {
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i].RankPosition, players[j].RankPosition
		if a == 0 || b == 0 {
			return a != 0 && b == 0
		}
		return a < b
	})
}

func tally(res *domain.Resolution) {
	res.Summary.Snapshot, res.Summary.Live, res.Summary.Unresolved = 0, 0, 0
	for _, p := range res.Players {
		switch p.Source {
		case domain.SourceSnapshot:
			res.Summary.Snapshot++
		case domain.SourceLive:
			res.Summary.Live++
		default:
			res.Summary.Unresolved++
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
