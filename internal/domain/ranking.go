package domain

import (
	"maps"
	"strings"
	"time"
)

// UnknownCountry is used when upstream carries no country for a player
const UnknownCountry = "Unknown"

// Tier bounds as reported by the upstream service (E=1 .. S=6)
const (
	MinTier = 1
	MaxTier = 6
)

var tierLetters = [...]string{"E", "D", "C", "B", "A", "S"}

// NormalizeTier clamps an upstream tier into 1..6, treating missing data as the lowest tier
func NormalizeTier(tier int) int {
	if tier < MinTier {
		return MinTier
	}
	if tier > MaxTier {
		return MaxTier
	}
	return tier
}

// TierScore converts a tier into the coarse score used across the API.
// E=1000, D=1200, C=1400, B=1600, A=1800, S=2000.
func TierScore(tier int) float64 {
	return float64(1000 + (NormalizeTier(tier)-1)*200)
}

// TierLetter returns the letter grade for a tier, or "Unknown" outside 1..6
func TierLetter(tier int) string {
	if tier < MinTier || tier > MaxTier {
		return "Unknown"
	}
	return tierLetters[tier-1]
}

// PlayerRecord is a single entry of a rankings snapshot
type PlayerRecord struct {
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	RankPosition int     `json:"rank_position"`
	Tier         int     `json:"tier"`
	TotalMatches int     `json:"total_matches"`
	TimePlayed   int64   `json:"time_played"`
	Country      string  `json:"country"`
}

// Snapshot is a full point-in-time ranking list for one game.
// Players are ordered by RankPosition ascending. A snapshot is never
// mutated after creation; a refresh replaces it wholesale.
type Snapshot struct {
	GameID         string         `json:"game_id"`
	GameName       string         `json:"game_name"`
	Players        []PlayerRecord `json:"players"`
	FetchedAt      time.Time      `json:"fetched_at"`
	TotalPlayers   int            `json:"total_players"`
	TotalAvailable int            `json:"total_available"`
}

// Valid reports whether the snapshot carries every required field
func (s *Snapshot) Valid() bool {
	return s != nil && s.GameID != "" && s.Players != nil && !s.FetchedAt.IsZero()
}

// GameInfo is the per-game slice of an upstream profile
type GameInfo struct {
	Rank       int   `json:"rank"`
	NumMatches int   `json:"num_matches"`
	TimePlayed int64 `json:"time_played"`
}

// Profile is the validated subset of an upstream player profile
type Profile struct {
	Name     string              `json:"name"`
	Country  string              `json:"country"`
	GameInfo map[string]GameInfo `json:"gameinfo"`
}

// Clone returns a copy of p with its own GameInfo map
func (p Profile) Clone() Profile {
	p.GameInfo = maps.Clone(p.GameInfo)
	return p
}

// Game returns the stats for gameID, if the profile has played it
func (p *Profile) Game(gameID string) (GameInfo, bool) {
	if p == nil || p.GameInfo == nil {
		return GameInfo{}, false
	}
	info, ok := p.GameInfo[gameID]
	return info, ok
}

// ToRecord converts a ranking-list profile into a snapshot record at position
func (p *Profile) ToRecord(gameID string, position int) PlayerRecord {
	info, _ := p.Game(gameID)
	tier := NormalizeTier(info.Rank)

	name := p.Name
	if strings.TrimSpace(name) == "" {
		name = "Unknown"
	}
	country := p.Country
	if country == "" {
		country = UnknownCountry
	}

	return PlayerRecord{
		Name:         name,
		Score:        TierScore(tier),
		RankPosition: position,
		Tier:         tier,
		TotalMatches: info.NumMatches,
		TimePlayed:   info.TimePlayed,
		Country:      country,
	}
}

// RefreshRequest asks for a game's snapshot to be refetched from upstream
type RefreshRequest struct {
	RequestID   string    `json:"request_id,omitempty"`
	GameID      string    `json:"game_id"`
	GameName    string    `json:"game_name,omitempty"`
	MaxPlayers  int       `json:"max_players,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// RefreshResult summarizes a completed refresh
type RefreshResult struct {
	GameID         string        `json:"game_id"`
	GameName       string        `json:"game_name"`
	TotalPlayers   int           `json:"total_players"`
	TotalAvailable int           `json:"total_available"`
	Partial        bool          `json:"partial"`
	FetchedAt      time.Time     `json:"fetched_at"`
	Duration       time.Duration `json:"duration"`
}

// FetchRecord is one row of refresh history
type FetchRecord struct {
	ID             int64     `json:"id"`
	GameID         string    `json:"game_id"`
	GameName       string    `json:"game_name"`
	FetchedAt      time.Time `json:"fetched_at"`
	TotalPlayers   int       `json:"total_players"`
	TotalAvailable int       `json:"total_available"`
	Partial        bool      `json:"partial"`
	DurationMs     int64     `json:"duration_ms"`
}

// GameSummary describes a persisted snapshot without its players
type GameSummary struct {
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	TotalPlayers int       `json:"total_players"`
	FetchedAt    time.Time `json:"fetched_at"`
	IsStale      bool      `json:"is_stale"`
}
