package search

import (
	"math"
	"sort"

	"github.com/fc-rank-search/internal/domain"
)

const (
	// activeMatchThreshold is the match count above which a player counts as active
	activeMatchThreshold = 1000
	// eliteCountryMinPlayers is the smallest country considered for top elite country
	eliteCountryMinPlayers = 10
	topPerCountry          = 10
)

var tierColors = [...]string{"#a55eea", "#eb4d4b", "#f9ca24", "#45b7d1", "#4ecdc4", "#ff6b6b"}

// TierColor returns the display color for a tier
func TierColor(tier int) string {
	if tier < domain.MinTier || tier > domain.MaxTier {
		return "#718096"
	}
	return tierColors[tier-1]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func tierOf(p domain.PlayerRecord) int {
	if p.Tier == 0 {
		return domain.MinTier
	}
	return p.Tier
}

// GenerateStatistics computes the statistics view of a snapshot
func GenerateStatistics(snap *domain.Snapshot) domain.GameStatistics {
	players := snap.Players
	stats := domain.GameStatistics{
		TotalPlayers:        len(players),
		TierDistribution:    make([]domain.TierDistribution, 0, domain.MaxTier),
		CountryStats:        make([]domain.CountryStats, 0),
		TopPlayersByCountry: make(map[string][]domain.PlayerRecord),
		AverageTier:         "Unknown",
	}
	if len(players) == 0 {
		for tier := domain.MinTier; tier <= domain.MaxTier; tier++ {
			stats.TierDistribution = append(stats.TierDistribution, domain.TierDistribution{
				Tier: tier, Letter: domain.TierLetter(tier), Color: TierColor(tier),
			})
		}
		stats.AdvancedStats.TopEliteCountry = domain.UnknownCountry
		return stats
	}
	n := float64(len(players))

	tierCounts := make(map[int]int)
	byCountry := make(map[string][]domain.PlayerRecord)
	var countryOrder []string
	var tierSum int
	var timePlayed int64

	for _, p := range players {
		tier := tierOf(p)
		tierCounts[tier]++
		tierSum += tier
		timePlayed += p.TimePlayed
		stats.TotalMatches += p.TotalMatches

		if p.TotalMatches > activeMatchThreshold {
			stats.AdvancedStats.ActivePlayersCount++
		}
		if tier == domain.MaxTier {
			stats.AdvancedStats.ElitePlayerCount++
		}

		country := p.Country
		if country == "" {
			country = domain.UnknownCountry
		}
		if _, ok := byCountry[country]; !ok {
			countryOrder = append(countryOrder, country)
		}
		byCountry[country] = append(byCountry[country], p)
	}

	for tier := domain.MinTier; tier <= domain.MaxTier; tier++ {
		count := tierCounts[tier]
		stats.TierDistribution = append(stats.TierDistribution, domain.TierDistribution{
			Tier:       tier,
			Letter:     domain.TierLetter(tier),
			Count:      count,
			Percentage: round1(float64(count) / n * 100),
			Color:      TierColor(tier),
		})
	}

	for _, country := range countryOrder {
		group := TopPlayers(byCountry[country], len(byCountry[country]))

		var scoreSum float64
		elite := 0
		for _, p := range group {
			scoreSum += p.Score
			if tierOf(p) == domain.MaxTier {
				elite++
			}
		}

		top := group[0]
		stats.CountryStats = append(stats.CountryStats, domain.CountryStats{
			Country:      country,
			PlayerCount:  len(group),
			AverageScore: math.Round(scoreSum / float64(len(group))),
			TopPlayer:    domain.TopPlayerRef{Name: top.Name, RankPosition: top.RankPosition, Score: top.Score},
			ElitePlayers: elite,
			Percentage:   round1(float64(len(group)) / n * 100),
		})

		if len(group) > topPerCountry {
			group = group[:topPerCountry]
		}
		stats.TopPlayersByCountry[country] = group
	}

	sort.SliceStable(stats.CountryStats, func(i, j int) bool {
		return stats.CountryStats[i].PlayerCount > stats.CountryStats[j].PlayerCount
	})

	stats.TotalCountries = len(byCountry)
	stats.TotalHoursPlayed = int64(math.Round(float64(timePlayed) / 3600))
	stats.AverageTier = domain.TierLetter(int(math.Round(float64(tierSum) / n)))
	stats.AdvancedStats.AvgMatchesPerPlayer = int(math.Round(float64(stats.TotalMatches) / n))
	stats.AdvancedStats.TopEliteCountry = topEliteCountry(stats.CountryStats)
	for _, c := range stats.CountryStats {
		if c.ElitePlayers > 0 {
			stats.AdvancedStats.EliteCountriesCount++
		}
	}

	return stats
}

// topEliteCountry picks the country with the highest elite share among those with enough players
func topEliteCountry(countries []domain.CountryStats) string {
	best := domain.UnknownCountry
	bestShare := -1.0
	for _, c := range countries {
		if c.PlayerCount < eliteCountryMinPlayers {
			continue
		}
		share := float64(c.ElitePlayers) / float64(c.PlayerCount)
		if share > bestShare {
			best, bestShare = c.Country, share
		}
	}
	return best
}
