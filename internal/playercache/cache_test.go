package playercache

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

type CacheTestSuite struct {
	suite.Suite
	clock   *clock.ManualClock
	file    string
	cache   *Cache
	testNow time.Time
}

func (s *CacheTestSuite) SetupTest() {
	s.testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.clock = clock.NewManual(s.testNow)
	s.file = filepath.Join(s.T().TempDir(), "data", "player-cache.json")
	s.cache = s.newCache(10)
}

func (s *CacheTestSuite) newCache(maxEntries int) *Cache {
	c, err := New(&config.CacheConfig{File: s.file, MaxEntries: maxEntries, TTL: 24 * time.Hour},
		s.clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	return c
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func profile(name string, gameID string, tier int) domain.Profile {
	return domain.Profile{
		Name:    name,
		Country: "Chile",
		GameInfo: map[string]domain.GameInfo{
			gameID: {Rank: tier, NumMatches: 300},
		},
	}
}

func (s *CacheTestSuite) TestGetAfterSetWithinTTL() {
	s.cache.Set("Alice", profile("Alice", "sfiii3nr1", 4))

	s.clock.Advance(23 * time.Hour)
	entry, ok := s.cache.Get("Alice")
	s.Require().True(ok)
	s.Equal("alice", entry.Key)
	s.Equal("Alice", entry.Username)
	s.Equal(4, entry.GameInfo["sfiii3nr1"].Rank)
	s.Equal(s.testNow.Add(24*time.Hour), entry.ExpiresAt)
	s.Equal(int64(1), entry.HitCount)
	s.Equal(s.testNow.Add(23*time.Hour), entry.LastAccessedAt)
}

func (s *CacheTestSuite) TestKeyIsCaseInsensitive() {
	s.cache.Set("PlayerOne", profile("PlayerOne", "kof98", 3))

	_, ok := s.cache.Get("playerone")
	s.True(ok)
	_, ok = s.cache.Get("PLAYERONE")
	s.True(ok)
}

func (s *CacheTestSuite) TestExpiredEntryIsMissAndPurged() {
	s.cache.Set("Alice", profile("Alice", "sfiii3nr1", 4))
	s.clock.Advance(24*time.Hour + time.Second)

	_, ok := s.cache.Get("Alice")
	s.False(ok)

	stats := s.cache.Stats()
	s.Equal(0, stats.TotalEntries)
	s.Equal(int64(1), stats.MissCount)
	s.Equal(int64(0), stats.HitCount)
}

func (s *CacheTestSuite) TestHasSharesAccounting() {
	s.cache.Set("Alice", profile("Alice", "sfiii3nr1", 4))

	s.True(s.cache.Has("alice"))
	s.False(s.cache.Has("bob"))

	stats := s.cache.Stats()
	s.Equal(int64(1), stats.HitCount)
	s.Equal(int64(1), stats.MissCount)
	s.Equal(50, stats.HitRate)
}

func (s *CacheTestSuite) TestHitRate() {
	s.Equal(0, s.cache.Stats().HitRate)

	s.cache.Set("Alice", profile("Alice", "sfiii3nr1", 4))
	s.cache.Get("alice")
	s.cache.Get("alice")
	s.cache.Get("nobody")

	stats := s.cache.Stats()
	s.Equal(67, stats.HitRate)
	s.NotEmpty(stats.CacheSize)
	s.Positive(stats.SizeBytes)
	s.Require().NotNil(stats.OldestEntry)
	s.Require().NotNil(stats.NewestEntry)
}

func (s *CacheTestSuite) TestEvictionDropsLeastRecentlyAccessed() {
	for i := 0; i < 10; i++ {
		s.cache.Set(fmt.Sprintf("p%d", i), profile(fmt.Sprintf("p%d", i), "sfa3", 2))
		s.clock.Advance(time.Minute)
	}
	// touch p0 so p1 becomes the oldest accessed
	_, ok := s.cache.Get("p0")
	s.Require().True(ok)

	s.cache.Set("newcomer", profile("newcomer", "sfa3", 2))

	s.LessOrEqual(s.cache.Len(), 10)
	s.True(s.cache.Has("p0"))
	s.True(s.cache.Has("newcomer"))
	s.False(s.cache.Has("p1"))
}

func (s *CacheTestSuite) TestEvictionSmallCapacityRemovesAtLeastOne() {
	c := s.newCache(3)
	c.Set("a", profile("a", "sfa3", 1))
	c.Set("b", profile("b", "sfa3", 1))
	c.Set("c", profile("c", "sfa3", 1))
	c.Set("d", profile("d", "sfa3", 1))

	s.Equal(3, c.Len())
}

func (s *CacheTestSuite) TestOverwriteAtCapacityDoesNotEvict() {
	c := s.newCache(2)
	c.Set("a", profile("a", "sfa3", 1))
	c.Set("b", profile("b", "sfa3", 1))
	c.Set("A", profile("a", "sfa3", 5))

	s.Equal(2, c.Len())
	entry, ok := c.Get("a")
	s.Require().True(ok)
	s.Equal(5, entry.GameInfo["sfa3"].Rank)
}

func (s *CacheTestSuite) TestCleanupLeavesCounters() {
	s.cache.Set("old", profile("old", "sfa3", 1))
	s.clock.Advance(12 * time.Hour)
	s.cache.Set("fresh", profile("fresh", "sfa3", 1))
	s.cache.Get("fresh")

	s.clock.Advance(13 * time.Hour)
	s.Equal(1, s.cache.Cleanup())
	s.Equal(1, s.cache.Len())
	s.Equal(int64(1), s.cache.Stats().HitCount)
}

func (s *CacheTestSuite) TestClear() {
	s.cache.Set("a", profile("a", "sfa3", 1))
	s.cache.Get("a")
	s.cache.Get("b")

	s.cache.Clear()

	stats := s.cache.Stats()
	s.Equal(0, stats.TotalEntries)
	s.Equal(int64(0), stats.HitCount)
	s.Equal(int64(0), stats.MissCount)
	s.Nil(stats.OldestEntry)
}

func (s *CacheTestSuite) TestGetForGameOrderedByAccess() {
	s.cache.Set("a", profile("a", "sfiii3nr1", 1))
	s.clock.Advance(time.Minute)
	s.cache.Set("b", profile("b", "sfiii3nr1", 1))
	s.clock.Advance(time.Minute)
	s.cache.Set("c", profile("c", "kof98", 1))
	s.clock.Advance(time.Minute)
	s.cache.Get("a")

	entries := s.cache.GetForGame("sfiii3nr1")
	s.Require().Len(entries, 2)
	s.Equal("a", entries[0].Key)
	s.Equal("b", entries[1].Key)
}

func (s *CacheTestSuite) TestReturnedEntriesDoNotAliasCache() {
	p := profile("Alice", "sfiii3nr1", 4)
	s.cache.Set("Alice", p)
	p.GameInfo["sfiii3nr1"] = domain.GameInfo{Rank: 1}

	entry, ok := s.cache.Get("Alice")
	s.Require().True(ok)
	delete(entry.GameInfo, "sfiii3nr1")
	entry.Profile.GameInfo["kof98"] = domain.GameInfo{Rank: 6}

	for _, e := range s.cache.GetForGame("sfiii3nr1") {
		e.GameInfo["sfiii3nr1"] = domain.GameInfo{}
		delete(e.Profile.GameInfo, "sfiii3nr1")
	}

	again, ok := s.cache.Get("Alice")
	s.Require().True(ok)
	s.Equal(4, again.GameInfo["sfiii3nr1"].Rank)
	s.Equal(4, again.Profile.GameInfo["sfiii3nr1"].Rank)
	s.NotContains(again.Profile.GameInfo, "kof98")
}

func (s *CacheTestSuite) TestPersistRestoreRoundTrip() {
	s.cache.Set("Alice", profile("Alice", "sfiii3nr1", 4))
	s.cache.Set("Bob", profile("Bob", "kof98", 2))
	s.cache.Get("alice")
	s.cache.Get("ghost")
	s.Require().NoError(s.cache.Persist())

	restored := s.newCache(10)
	s.Require().NoError(restored.Restore())

	before, after := s.cache.Stats(), restored.Stats()
	s.Equal(before.TotalEntries, after.TotalEntries)
	s.Equal(before.HitCount, after.HitCount)
	s.Equal(before.MissCount, after.MissCount)

	entry, ok := restored.Get("Alice")
	s.Require().True(ok)
	s.Equal("Chile", entry.Country)
	s.Equal(int64(2), entry.HitCount)
}

func (s *CacheTestSuite) TestRestoreDropsEntriesExpiredWhileDown() {
	s.cache.Set("old", profile("old", "sfa3", 1))
	s.clock.Advance(20 * time.Hour)
	s.cache.Set("fresh", profile("fresh", "sfa3", 1))
	s.Require().NoError(s.cache.Persist())

	s.clock.Advance(5 * time.Hour)
	restored := s.newCache(10)
	s.Require().NoError(restored.Restore())

	s.Equal(1, restored.Len())
	s.True(restored.Has("fresh"))
}

func (s *CacheTestSuite) TestRestoreMissingFile() {
	s.NoError(s.cache.Restore())
	s.Equal(0, s.cache.Len())
}

func (s *CacheTestSuite) TestRestoreCorruptFile() {
	s.Require().NoError(os.WriteFile(s.file, []byte("{{{"), 0o644))

	err := s.cache.Restore()
	s.ErrorIs(err, domain.ErrCorruptState)
	s.Equal(0, s.cache.Len())
}
