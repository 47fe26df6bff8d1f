package snapshot

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	dir     string
	clock   *clock.ManualClock
	store   *Store
	testNow time.Time
}

func (s *StoreTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.clock = clock.NewManual(s.testNow)

	store, err := NewStore(&config.SnapshotConfig{Dir: s.dir, StaleAfter: 24 * time.Hour}, s.clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.store = store
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) snapshot(gameID string, names ...string) *domain.Snapshot {
	players := make([]domain.PlayerRecord, len(names))
	for i, name := range names {
		players[i] = domain.PlayerRecord{Name: name, RankPosition: i + 1, Tier: 6, Score: 2000, Country: "Japan"}
	}
	return &domain.Snapshot{
		GameID:         gameID,
		GameName:       "Street Fighter III: 3rd Strike",
		Players:        players,
		FetchedAt:      s.testNow,
		TotalPlayers:   len(players),
		TotalAvailable: len(players),
	}
}

func (s *StoreTestSuite) TestSaveAndLoad() {
	s.Require().NoError(s.store.Save(s.snapshot("sfiii3nr1", "Alice", "Bob")))

	loaded, err := s.store.Load("sfiii3nr1")
	s.Require().NoError(err)
	s.Equal("sfiii3nr1", loaded.GameID)
	s.Require().Len(loaded.Players, 2)
	s.Equal("Bob", loaded.Players[1].Name)
	s.Equal(2, loaded.Players[1].RankPosition)
	s.True(loaded.FetchedAt.Equal(s.testNow))
}

func (s *StoreTestSuite) TestSaveReplacesPriorSnapshot() {
	s.Require().NoError(s.store.Save(s.snapshot("kof98", "Alice", "Bob", "Carol")))
	s.Require().NoError(s.store.Save(s.snapshot("kof98", "Dave")))

	loaded, err := s.store.Load("kof98")
	s.Require().NoError(err)
	s.Require().Len(loaded.Players, 1)
	s.Equal("Dave", loaded.Players[0].Name)
}

func (s *StoreTestSuite) TestSaveRejectsInvalidSnapshot() {
	err := s.store.Save(&domain.Snapshot{GameID: "kof98"})
	s.ErrorIs(err, domain.ErrInvalidRequest)

	err = s.store.Save(s.snapshot("../escape", "Alice"))
	s.ErrorIs(err, domain.ErrInvalidRequest)
}

func (s *StoreTestSuite) TestLoadMissing() {
	_, err := s.store.Load("sf2ce")
	s.ErrorIs(err, domain.ErrSnapshotNotFound)
}

func (s *StoreTestSuite) TestLoadCorruptTreatedAsAbsent() {
	path := filepath.Join(s.dir, "sfa3"+fileSuffix)
	s.Require().NoError(os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := s.store.Load("sfa3")
	s.ErrorIs(err, domain.ErrSnapshotNotFound)
}

func (s *StoreTestSuite) TestLoadMissingFieldsTreatedAsAbsent() {
	path := filepath.Join(s.dir, "sfa3"+fileSuffix)
	s.Require().NoError(os.WriteFile(path, []byte(`{"game_id":"sfa3"}`), 0o644))

	_, err := s.store.Load("sfa3")
	s.ErrorIs(err, domain.ErrSnapshotNotFound)
}

func (s *StoreTestSuite) TestIsStale() {
	snap := s.snapshot("sfiii3nr1", "Alice")
	s.False(s.store.IsStale(snap))

	s.clock.Advance(24 * time.Hour)
	s.False(s.store.IsStale(snap), "exactly at the threshold is not stale")

	s.clock.Advance(time.Second)
	s.True(s.store.IsStale(snap))

	s.True(s.store.IsStaleAfter(snap, time.Hour))
}

func (s *StoreTestSuite) TestListAvailable() {
	s.Require().NoError(s.store.Save(s.snapshot("sfiii3nr1", "Alice")))
	s.Require().NoError(s.store.Save(s.snapshot("kof98", "Bob")))
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, "player-cache.json"), []byte("{}"), 0o644))

	ids, err := s.store.ListAvailable()
	s.Require().NoError(err)
	s.Equal([]string{"kof98", "sfiii3nr1"}, ids)
}

func (s *StoreTestSuite) TestSummariesSkipCorrupt() {
	s.Require().NoError(s.store.Save(s.snapshot("kof98", "Bob")))
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, "sfa3"+fileSuffix), []byte("oops"), 0o644))

	s.clock.Advance(48 * time.Hour)
	summaries, err := s.store.Summaries()
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal("kof98", summaries[0].GameID)
	s.Equal(1, summaries[0].TotalPlayers)
	s.True(summaries[0].IsStale)
}
