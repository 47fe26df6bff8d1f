package playercache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fc-rank-search/internal/common/clock"
	"github.com/fc-rank-search/internal/common/fileutil"
	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

// evictFraction is the share of entries dropped when the cache is full
const evictFraction = 10

// persistedState is the on-disk layout of the cache file
type persistedState struct {
	Entries   map[string]domain.CacheEntry `json:"entries"`
	HitCount  int64                        `json:"hit_count"`
	MissCount int64                        `json:"miss_count"`
	SavedAt   time.Time                    `json:"saved_at"`
}

// Cache is a bounded, expiring store of upstream player profiles
type Cache struct {
	file       string
	maxEntries int
	ttl        time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	mu        sync.Mutex
	entries   map[string]*domain.CacheEntry
	hitCount  int64
	missCount int64

	// serializes disk writes so an older persist never lands after a newer one
	saveMu sync.Mutex
}

// New creates a Cache. Capacity and TTL are fixed for the lifetime of the instance.
// The only fatal condition is an uncreatable cache directory.
func New(cfg *config.CacheConfig, clk clock.Clock, logger *slog.Logger) (*Cache, error) {
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	if clk == nil {
		clk = &clock.DefaultClock{}
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Cache{
		file:       cfg.File,
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clk,
		logger:     logger,
		entries:    make(map[string]*domain.CacheEntry),
	}, nil
}

// normalizeKey lower-cases a username for storage and lookup
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get returns a copy of the cached entry. An expired entry counts as a
// miss and is purged. Every call updates the hit or miss counter.
func (c *Cache) Get(key string) (domain.CacheEntry, bool) {
	k := normalizeKey(key)
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[k]
	if !ok {
		c.missCount++
		c.logger.Debug("player cache miss", "username", k)
		return domain.CacheEntry{}, false
	}
	if entry.Expired(now) {
		delete(c.entries, k)
		c.missCount++
		c.logger.Debug("player cache entry expired", "username", k)
		return domain.CacheEntry{}, false
	}

	c.hitCount++
	entry.HitCount++
	entry.LastAccessedAt = now
	c.logger.Debug("player cache hit", "username", k, "hit_count", entry.HitCount)
	return entry.Clone(), true
}

// Has reports whether key is present. It shares Get's accounting and expiry side effects.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set inserts or overwrites the profile for key, evicting the least
// recently accessed entries first when the cache is full.
func (c *Cache) Set(key string, profile domain.Profile) {
	k := normalizeKey(key)
	now := c.clock.Now()

	country := profile.Country
	if country == "" {
		country = domain.UnknownCountry
	}
	username := profile.Name
	if username == "" {
		username = strings.TrimSpace(key)
	}

	profile = profile.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	c.entries[k] = &domain.CacheEntry{
		Key:            k,
		Username:       username,
		Profile:        profile,
		Country:        country,
		GameInfo:       maps.Clone(profile.GameInfo),
		CachedAt:       now,
		ExpiresAt:      now.Add(c.ttl),
		LastAccessedAt: now,
	}
}

// evictLocked drops the oldest-accessed tenth of the entries (at least one).
// The caller must hold c.mu.
func (c *Cache) evictLocked() {
	n := len(c.entries) / evictFraction
	if n < 1 {
		n = 1
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].LastAccessedAt.Before(c.entries[keys[j]].LastAccessedAt)
	})

	for _, k := range keys[:n] {
		delete(c.entries, k)
	}
	c.logger.Debug("player cache evicted entries", "evicted", n, "remaining", len(c.entries))
}

// Cleanup removes every expired entry and returns how many were dropped.
// Hit and miss counters are not touched.
func (c *Cache) Cleanup() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, entry := range c.entries {
		if entry.ExpiresAt.Before(now) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info("player cache cleanup", "removed", removed, "remaining", len(c.entries))
	}
	return removed
}

// Clear drops every entry and resets the counters
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*domain.CacheEntry)
	c.hitCount = 0
	c.missCount = 0
	c.mu.Unlock()

	c.logger.Info("player cache cleared")
}

// Len returns the number of physically present entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache accounting
func (c *Cache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := domain.CacheStats{
		TotalEntries: len(c.entries),
		HitCount:     c.hitCount,
		MissCount:    c.missCount,
		HitRate:      hitRate(c.hitCount, c.missCount),
	}

	var oldest, newest time.Time
	for _, entry := range c.entries {
		if oldest.IsZero() || entry.CachedAt.Before(oldest) {
			oldest = entry.CachedAt
		}
		if newest.IsZero() || entry.CachedAt.After(newest) {
			newest = entry.CachedAt
		}
	}
	if len(c.entries) > 0 {
		stats.OldestEntry = &oldest
		stats.NewestEntry = &newest
	}

	if data, err := json.Marshal(c.entries); err == nil {
		stats.SizeBytes = len(data)
	}
	stats.CacheSize = humanize.Bytes(uint64(stats.SizeBytes))

	return stats
}

// hitRate returns hits/(hits+misses) as a rounded percentage
func hitRate(hits, misses int64) int {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return int((hits*100 + total/2) / total)
}

// GetForGame returns live entries that carry stats for gameID, most recently accessed first
func (c *Cache) GetForGame(gameID string) []domain.CacheEntry {
	now := c.clock.Now()

	c.mu.Lock()
	result := make([]domain.CacheEntry, 0)
	for _, entry := range c.entries {
		if entry.Expired(now) {
			continue
		}
		if _, ok := entry.GameInfo[gameID]; ok {
			result = append(result, entry.Clone())
		}
	}
	c.mu.Unlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastAccessedAt.After(result[j].LastAccessedAt)
	})
	return result
}

// Persist writes the entry map and counters to the cache file
func (c *Cache) Persist() error {
	if c.file == "" {
		return nil
	}

	c.mu.Lock()
	state := persistedState{
		Entries:   make(map[string]domain.CacheEntry, len(c.entries)),
		HitCount:  c.hitCount,
		MissCount: c.missCount,
		SavedAt:   c.clock.Now(),
	}
	for k, entry := range c.entries {
		state.Entries[k] = *entry
	}
	data, err := json.Marshal(state)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshaling player cache: %w", err)
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	if err := fileutil.WriteFileAtomic(c.file, data, 0o644); err != nil {
		return fmt.Errorf("saving player cache: %w", err)
	}

	c.logger.Info("player cache saved", "entries", len(state.Entries), "file", c.file)
	return nil
}

// Restore replaces the in-memory state with the cache file, then drops
// entries that expired while the process was down. A missing file is not
// an error; a corrupt file leaves the cache empty and returns ErrCorruptState.
func (c *Cache) Restore() error {
	if c.file == "" {
		return nil
	}

	data, err := os.ReadFile(c.file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Info("no player cache file, starting empty", "file", c.file)
			return nil
		}
		return fmt.Errorf("reading player cache: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		c.Clear()
		c.logger.Warn("corrupt player cache file, starting empty", "file", c.file, "error", err)
		return fmt.Errorf("decoding player cache: %v: %w", err, domain.ErrCorruptState)
	}

	entries := make(map[string]*domain.CacheEntry, len(state.Entries))
	for k, entry := range state.Entries {
		e := entry
		key := normalizeKey(k)
		e.Key = key
		entries[key] = &e
	}

	c.mu.Lock()
	c.entries = entries
	c.hitCount = state.HitCount
	c.missCount = state.MissCount
	c.mu.Unlock()

	removed := c.Cleanup()
	c.logger.Info("player cache restored",
		"entries", len(entries)-removed,
		"expired", removed,
		"file", c.file,
	)
	return nil
}
