package domain

// SearchFilters narrows a snapshot search. Nil bounds are ignored.
type SearchFilters struct {
	Name     string   `json:"name,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
	MaxScore *float64 `json:"max_score,omitempty"`
	MinRank  *int     `json:"min_rank,omitempty"`
	MaxRank  *int     `json:"max_rank,omitempty"`
	Country  string   `json:"country,omitempty"`
}

// SearchResult is one page of matching players
type SearchResult struct {
	Players    []PlayerRecord `json:"players"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// PlayerStats summarizes the score spread of a player list
type PlayerStats struct {
	TotalPlayers int     `json:"total_players"`
	AverageScore float64 `json:"average_score"`
	MedianScore  float64 `json:"median_score"`
	TopScore     float64 `json:"top_score"`
	BottomScore  float64 `json:"bottom_score"`
}

// TierDistribution is the player count for one tier
type TierDistribution struct {
	Tier       int     `json:"tier"`
	Letter     string  `json:"letter"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Color      string  `json:"color"`
}

// TopPlayerRef identifies the best-ranked player of a group
type TopPlayerRef struct {
	Name         string  `json:"name"`
	RankPosition int     `json:"rank_position"`
	Score        float64 `json:"score"`
}

// CountryStats aggregates players from one country
type CountryStats struct {
	Country      string       `json:"country"`
	PlayerCount  int          `json:"player_count"`
	AverageScore float64      `json:"average_score"`
	TopPlayer    TopPlayerRef `json:"top_player"`
	ElitePlayers int          `json:"elite_players"`
	Percentage   float64      `json:"percentage"`
}

// AdvancedStats holds derived activity metrics
type AdvancedStats struct {
	ActivePlayersCount  int    `json:"active_players_count"`
	AvgMatchesPerPlayer int    `json:"avg_matches_per_player"`
	ElitePlayerCount    int    `json:"elite_player_count"`
	EliteCountriesCount int    `json:"elite_countries_count"`
	TopEliteCountry     string `json:"top_elite_country"`
}

// GameStatistics is the full statistics view of a snapshot
type GameStatistics struct {
	TotalPlayers        int                       `json:"total_players"`
	TotalCountries      int                       `json:"total_countries"`
	AverageTier         string                    `json:"average_tier"`
	TotalMatches        int                       `json:"total_matches"`
	TotalHoursPlayed    int64                     `json:"total_hours_played"`
	TierDistribution    []TierDistribution        `json:"tier_distribution"`
	CountryStats        []CountryStats            `json:"country_stats"`
	TopPlayersByCountry map[string][]PlayerRecord `json:"top_players_by_country"`
	AdvancedStats       AdvancedStats             `json:"advanced_stats"`
}

// GameDetail is a snapshot summary plus its score spread
type GameDetail struct {
	GameSummary
	TotalAvailable int          `json:"total_available"`
	Stats          PlayerStats  `json:"stats"`
	LastFetch      *FetchRecord `json:"last_fetch,omitempty"`
}

// PlayerMatch is the result of an exact name lookup in a snapshot.
// Suggestions are filled only when no exact match exists.
type PlayerMatch struct {
	Player      *PlayerRecord `json:"player,omitempty"`
	Suggestions []string      `json:"suggestions,omitempty"`
}
