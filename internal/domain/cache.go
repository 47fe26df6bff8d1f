package domain

import (
	"maps"
	"time"
)

// CacheEntry is a cached upstream profile keyed by lower-cased username.
// ExpiresAt is fixed at insertion to CachedAt + TTL.
type CacheEntry struct {
	Key            string              `json:"key"`
	Username       string              `json:"username"`
	Profile        Profile             `json:"profile"`
	Country        string              `json:"country"`
	GameInfo       map[string]GameInfo `json:"gameinfo"`
	CachedAt       time.Time           `json:"cached_at"`
	ExpiresAt      time.Time           `json:"expires_at"`
	HitCount       int64               `json:"hit_count"`
	LastAccessedAt time.Time           `json:"last_accessed_at"`
}

// Expired reports whether the entry is logically absent at now
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Clone returns a copy that shares no maps with e
func (e *CacheEntry) Clone() CacheEntry {
	c := *e
	c.Profile = e.Profile.Clone()
	c.GameInfo = maps.Clone(e.GameInfo)
	return c
}

// CacheStats is a point-in-time view of player cache accounting
type CacheStats struct {
	TotalEntries int        `json:"total_entries"`
	HitCount     int64      `json:"hit_count"`
	MissCount    int64      `json:"miss_count"`
	HitRate      int        `json:"hit_rate"`
	SizeBytes    int        `json:"size_bytes"`
	CacheSize    string     `json:"cache_size"`
	OldestEntry  *time.Time `json:"oldest_entry,omitempty"`
	NewestEntry  *time.Time `json:"newest_entry,omitempty"`
}
