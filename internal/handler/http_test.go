package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
	"github.com/fc-rank-search/internal/fightcade"
	"github.com/fc-rank-search/internal/playercache"
	"github.com/fc-rank-search/internal/refresh"
	"github.com/fc-rank-search/internal/resolver"
	"github.com/fc-rank-search/internal/scene"
	"github.com/fc-rank-search/internal/service"
	"github.com/fc-rank-search/internal/snapshot"
	"github.com/fc-rank-search/internal/websocket"
)

// fakeUpstream serves both ranking pages and profile lookups
type fakeUpstream struct {
	profiles map[string]domain.Profile
	pageErr  error
	gate     chan struct{} // FetchAllPages blocks until closed when set
}

func (f *fakeUpstream) FetchAllPages(_ context.Context, gameID string, _ int) (*fightcade.Page, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	return &fightcade.Page{
		Players: []domain.Profile{
			{Name: "Daigo", Country: "Japan", GameInfo: map[string]domain.GameInfo{gameID: {Rank: 6}}},
		},
		TotalCount: 1,
	}, nil
}

func (f *fakeUpstream) FetchProfile(_ context.Context, username string) (*domain.Profile, error) {
	p, ok := f.profiles[strings.ToLower(username)]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &p, nil
}

func (f *fakeUpstream) FetchProfiles(ctx context.Context, usernames []string) []domain.ProfileResult {
	out := make([]domain.ProfileResult, len(usernames))
	for i, name := range usernames {
		p, err := f.FetchProfile(ctx, name)
		out[i] = domain.ProfileResult{Username: name, Profile: p, Found: err == nil}
	}
	return out
}

type stubQueue struct {
	sent []domain.RefreshRequest
}

func (q *stubQueue) Publish(req domain.RefreshRequest) (domain.RefreshRequest, error) {
	req.RequestID = "req-1"
	q.sent = append(q.sent, req)
	return req, nil
}

type HandlerTestSuite struct {
	suite.Suite
	store    *snapshot.Store
	upstream *fakeUpstream
	deps     Dependencies
	router   http.Handler
	logger   *slog.Logger
}

func (s *HandlerTestSuite) SetupTest() {
	dir := s.T().TempDir()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(now)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := snapshot.NewStore(&config.SnapshotConfig{Dir: filepath.Join(dir, "data"), StaleAfter: 24 * time.Hour}, clk, s.logger)
	s.Require().NoError(err)
	s.store = store
	s.Require().NoError(store.Save(&domain.Snapshot{
		GameID:   "sfiii3nr1",
		GameName: "Street Fighter III: 3rd Strike",
		Players: []domain.PlayerRecord{
			{Name: "Alice", RankPosition: 1, Tier: 6, Score: 2000, TotalMatches: 50, Country: "Chile"},
			{Name: "Alicia", RankPosition: 2, Tier: 5, Score: 1800, Country: "Japan"},
		},
		FetchedAt:      now.Add(-time.Hour),
		TotalPlayers:   2,
		TotalAvailable: 2,
	}))

	scenesFile := filepath.Join(dir, "scenes.json")
	s.Require().NoError(os.WriteFile(scenesFile, []byte(`{
		"scenes": [{"id": "chile", "name": "Chile", "game_id": "sfiii3nr1", "game_name": "3rd Strike", "players": ["alice", "Bob"]}],
		"metadata": {"version": "1.0.0", "total_scenes": 1}
	}`), 0o644))
	scenes, err := scene.NewRegistry(&config.ScenesConfig{File: scenesFile}, clk, s.logger)
	s.Require().NoError(err)

	cache, err := playercache.New(&config.CacheConfig{File: filepath.Join(dir, "cache.json")}, clk, s.logger)
	s.Require().NoError(err)

	s.upstream = &fakeUpstream{profiles: map[string]domain.Profile{
		"bob": {Name: "Bob", Country: "Chile", GameInfo: map[string]domain.GameInfo{"sfiii3nr1": {Rank: 3, NumMatches: 9}}},
	}}

	hub := websocket.NewHub(s.logger)
	s.deps = Dependencies{
		Games:     service.NewGameService(store, nil, nil, &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100, DefaultPageSize: 50}, s.logger),
		Resolver:  resolver.New(&config.ResolverConfig{MaxBatch: 2}, store, s.upstream, cache, scenes, s.logger),
		Scenes:    scenes,
		Cache:     cache,
		Refresher: refresh.New(s.upstream, store, clk, s.logger),
		Hub:       hub,
	}
	s.router = NewHandler(s.deps, s.logger).Router()
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) do(method, path string, body any) (int, APIResponse, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp APIResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return rec.Code, resp, data
}

func (s *HandlerTestSuite) TestHealth() {
	code, resp, data := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, code)
	s.True(resp.Success)
	s.Equal("healthy", data["status"])
}

func (s *HandlerTestSuite) TestReadyReportsFailingDependency() {
	s.deps.Checks = map[string]ReadyCheck{
		"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
	}
	s.router = NewHandler(s.deps, s.logger).Router()

	code, resp, _ := s.do(http.MethodGet, "/ready", nil)
	s.Equal(http.StatusServiceUnavailable, code)
	s.False(resp.Success)
}

func (s *HandlerTestSuite) TestGetGameAndNotFound() {
	code, resp, data := s.do(http.MethodGet, "/api/v1/games/sfiii3nr1", nil)
	s.Equal(http.StatusOK, code)
	s.True(resp.Success)
	s.Equal("Street Fighter III: 3rd Strike", data["game_name"])
	s.Equal(false, data["is_stale"])

	code, resp, _ = s.do(http.MethodGet, "/api/v1/games/kof98", nil)
	s.Equal(http.StatusNotFound, code)
	s.False(resp.Success)
	s.Contains(resp.Error, "snapshot not found")
}

func (s *HandlerTestSuite) TestListGames() {
	code, resp, _ := s.do(http.MethodGet, "/api/v1/games", nil)
	s.Equal(http.StatusOK, code)
	s.Len(resp.Data, 1)
}

func (s *HandlerTestSuite) TestSearchValidation() {
	code, _, data := s.do(http.MethodGet, "/api/v1/games/sfiii3nr1/search?name=ali&min_score=1900", nil)
	s.Equal(http.StatusOK, code)
	s.Equal(float64(1), data["total_count"])

	code, _, _ = s.do(http.MethodGet, "/api/v1/games/sfiii3nr1/search?min_rank=abc", nil)
	s.Equal(http.StatusBadRequest, code)
}

func (s *HandlerTestSuite) TestFindPlayerSuggestions() {
	code, _, data := s.do(http.MethodGet, "/api/v1/games/sfiii3nr1/player/ALICE", nil)
	s.Equal(http.StatusOK, code)
	s.NotNil(data["player"])

	code, resp, data := s.do(http.MethodGet, "/api/v1/games/sfiii3nr1/player/ali", nil)
	s.Equal(http.StatusNotFound, code)
	s.False(resp.Success)
	s.Equal([]any{"Alice", "Alicia"}, data["suggestions"])
}

func (s *HandlerTestSuite) TestSceneViews() {
	code, _, data := s.do(http.MethodGet, "/api/v1/scenes/chile", nil)
	s.Equal(http.StatusOK, code)
	s.Equal("cached", data["mode"])
	summary := data["summary"].(map[string]any)
	s.Equal(float64(1), summary["snapshot"])
	s.Equal(float64(1), summary["unresolved"])

	code, _, data = s.do(http.MethodGet, "/api/v1/scenes/chile/hybrid", nil)
	s.Equal(http.StatusOK, code)
	summary = data["summary"].(map[string]any)
	s.Equal(float64(1), summary["snapshot"])
	s.Equal(float64(1), summary["live"])

	code, _, _ = s.do(http.MethodGet, "/api/v1/scenes/nope", nil)
	s.Equal(http.StatusNotFound, code)

	code, resp, _ := s.do(http.MethodGet, "/api/v1/scenes/games", nil)
	s.Equal(http.StatusOK, code)
	s.Len(resp.Data, 1)
}

func (s *HandlerTestSuite) TestUserLookupAndCache() {
	code, _, data := s.do(http.MethodGet, "/api/v1/users/bob", nil)
	s.Equal(http.StatusOK, code)
	s.Equal(true, data["found"])
	s.Nil(data["cached"])

	_, _, data = s.do(http.MethodGet, "/api/v1/users/bob", nil)
	s.Equal(true, data["cached"])

	code, _, _ = s.do(http.MethodGet, "/api/v1/users/ghost", nil)
	s.Equal(http.StatusNotFound, code)

	_, _, data = s.do(http.MethodGet, "/api/v1/cache/stats", nil)
	s.Equal(float64(1), data["total_entries"])

	_, _, data = s.do(http.MethodGet, "/api/v1/cache/game/sfiii3nr1", nil)
	s.Equal(float64(1), data["count"])

	code, _, _ = s.do(http.MethodPost, "/api/v1/cache/clear", nil)
	s.Equal(http.StatusOK, code)
	_, _, data = s.do(http.MethodGet, "/api/v1/cache/stats", nil)
	s.Equal(float64(0), data["total_entries"])
}

func (s *HandlerTestSuite) TestBatchLookupLimits() {
	code, _, data := s.do(http.MethodPost, "/api/v1/users/batch", batchLookupBody{Usernames: []string{"bob", "ghost"}})
	s.Equal(http.StatusOK, code)
	s.Equal(float64(1), data["found"])

	code, _, _ = s.do(http.MethodPost, "/api/v1/users/batch", batchLookupBody{Usernames: []string{"a", "b", "c"}})
	s.Equal(http.StatusBadRequest, code)

	code, _, _ = s.do(http.MethodPost, "/api/v1/users/batch", batchLookupBody{})
	s.Equal(http.StatusBadRequest, code)
}

func (s *HandlerTestSuite) TestRefreshInProcess() {
	code, _, data := s.do(http.MethodPost, "/api/v1/games/kof98/refresh", nil)
	s.Equal(http.StatusAccepted, code)
	s.Equal("started", data["status"])

	s.Eventually(func() bool {
		snap, err := s.store.Load("kof98")
		return err == nil && snap.GameName == "King of Fighters 98"
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *HandlerTestSuite) TestRefreshInProcessRejectsSecondRequest() {
	s.upstream.gate = make(chan struct{})

	code, _, _ := s.do(http.MethodPost, "/api/v1/games/kof98/refresh", nil)
	s.Equal(http.StatusAccepted, code)

	code, resp, _ := s.do(http.MethodPost, "/api/v1/games/kof98/refresh", nil)
	s.Equal(http.StatusConflict, code)
	s.False(resp.Success)

	close(s.upstream.gate)
	s.Eventually(func() bool {
		_, err := s.store.Load("kof98")
		return err == nil && !s.deps.Refresher.InProgress("kof98")
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *HandlerTestSuite) TestRefreshQueued() {
	queue := &stubQueue{}
	s.deps.Queue = queue
	s.router = NewHandler(s.deps, s.logger).Router()

	code, _, data := s.do(http.MethodPost, "/api/v1/games/sfa3/refresh", refreshBody{MaxPlayers: 200})
	s.Equal(http.StatusAccepted, code)
	s.Equal("queued", data["status"])
	s.Require().Len(queue.sent, 1)
	s.Equal(200, queue.sent[0].MaxPlayers)

	code, _, _ = s.do(http.MethodPost, "/api/v1/games/sfa3/refresh", refreshBody{MaxPlayers: -1})
	s.Equal(http.StatusBadRequest, code)
}

func (s *HandlerTestSuite) TestStatistics() {
	code, _, data := s.do(http.MethodGet, "/api/v1/statistics/sfiii3nr1", nil)
	s.Equal(http.StatusOK, code)
	s.Equal(float64(2), data["total_players"])

	code, _, data = s.do(http.MethodGet, "/api/v1/statistics/games", nil)
	s.Equal(http.StatusOK, code)
	s.Contains(data, "sfiii3nr1")
}

func (s *HandlerTestSuite) TestStatusMapping() {
	s.Equal(http.StatusNotFound, statusFor(domain.ErrSceneNotFound))
	s.Equal(http.StatusBadRequest, statusFor(domain.ErrInvalidRequest))
	s.Equal(http.StatusConflict, statusFor(domain.ErrRefreshInProgress))
	s.Equal(http.StatusInternalServerError, statusFor(domain.ErrUpstreamUnavailable))
}
