package domain

import "time"

// Source tags where a resolved player's data came from
type Source string

const (
	SourceSnapshot   Source = "snapshot"
	SourceLive       Source = "live"
	SourceUnresolved Source = "unresolved"
)

// ResolvedPlayer is one entry of a group resolution.
// RankPosition 0 means the global position is unknown.
type ResolvedPlayer struct {
	Username     string  `json:"username"`
	RankPosition int     `json:"rank_position"`
	Score        float64 `json:"score"`
	Tier         int     `json:"tier,omitempty"`
	TotalMatches int     `json:"total_matches"`
	Country      string  `json:"country"`
	Source       Source  `json:"source"`
	Error        string  `json:"error,omitempty"`
}

// ResolutionSummary counts resolved players by provenance
type ResolutionSummary struct {
	Requested  int `json:"requested"`
	Snapshot   int `json:"snapshot"`
	Live       int `json:"live"`
	Unresolved int `json:"unresolved"`
}

// Found returns the number of players resolved from any source
func (s ResolutionSummary) Found() int {
	return s.Snapshot + s.Live
}

// Resolution mode names
const (
	ModeHybrid   = "hybrid"
	ModeLiveOnly = "live-only"
	ModeCached   = "cached"
	ModeLive     = "live"
)

// Resolution is the merged result of resolving a group of players
type Resolution struct {
	GameID            string            `json:"game_id"`
	Mode              string            `json:"mode"`
	Fallback          bool              `json:"fallback,omitempty"`
	Players           []ResolvedPlayer  `json:"players"`
	Summary           ResolutionSummary `json:"summary"`
	SnapshotFetchedAt *time.Time        `json:"snapshot_fetched_at,omitempty"`
	SnapshotStale     bool              `json:"snapshot_stale"`
}

// SceneResolution is a resolution bound to the scene it was computed for
type SceneResolution struct {
	Scene Scene `json:"scene"`
	Resolution
}

// ProfileResult is the outcome of one profile lookup in a batch
type ProfileResult struct {
	Username string   `json:"username"`
	Profile  *Profile `json:"data"`
	Found    bool     `json:"found"`
	Cached   bool     `json:"cached,omitempty"`
	Error    string   `json:"error,omitempty"`
}
