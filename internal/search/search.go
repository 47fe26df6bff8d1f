package search

import (
	"math"
	"sort"
	"strings"

	"github.com/fc-rank-search/internal/domain"
)

// DefaultPageSize is used when the caller passes a non-positive page size
const DefaultPageSize = 50

// Search filters players and returns one 1-based page of the matches.
// The input slice is never modified.
func Search(players []domain.PlayerRecord, filters domain.SearchFilters, page, pageSize int) domain.SearchResult {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	name := strings.ToLower(strings.TrimSpace(filters.Name))
	country := strings.ToLower(strings.TrimSpace(filters.Country))

	matched := make([]domain.PlayerRecord, 0)
	for _, p := range players {
		if name != "" && !strings.Contains(strings.ToLower(p.Name), name) {
			continue
		}
		if filters.MinScore != nil && p.Score < *filters.MinScore {
			continue
		}
		if filters.MaxScore != nil && p.Score > *filters.MaxScore {
			continue
		}
		if filters.MinRank != nil && p.RankPosition < *filters.MinRank {
			continue
		}
		if filters.MaxRank != nil && p.RankPosition > *filters.MaxRank {
			continue
		}
		if country != "" && (p.Country == "" || !strings.Contains(strings.ToLower(p.Country), country)) {
			continue
		}
		matched = append(matched, p)
	}

	total := len(matched)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return domain.SearchResult{
		Players:    matched[start:end],
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}

// FindByName returns the first player whose name matches exactly, ignoring case and surrounding space
func FindByName(players []domain.PlayerRecord, name string) (domain.PlayerRecord, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, p := range players {
		if strings.ToLower(p.Name) == want {
			return p, true
		}
	}
	return domain.PlayerRecord{}, false
}

// FindByPartialName returns up to limit players whose name contains partial
func FindByPartialName(players []domain.PlayerRecord, partial string, limit int) []domain.PlayerRecord {
	if limit <= 0 {
		limit = 10
	}
	want := strings.ToLower(strings.TrimSpace(partial))

	out := make([]domain.PlayerRecord, 0, limit)
	for _, p := range players {
		if strings.Contains(strings.ToLower(p.Name), want) {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// TopPlayers returns the count best-positioned players
func TopPlayers(players []domain.PlayerRecord, count int) []domain.PlayerRecord {
	if count <= 0 {
		count = 10
	}

	sorted := make([]domain.PlayerRecord, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RankPosition < sorted[j].RankPosition
	})

	if len(sorted) > count {
		sorted = sorted[:count]
	}
	return sorted
}

// UniqueCountries returns the sorted set of known countries
func UniqueCountries(players []domain.PlayerRecord) []string {
	seen := make(map[string]struct{})
	for _, p := range players {
		if p.Country == "" || p.Country == domain.UnknownCountry {
			continue
		}
		seen[p.Country] = struct{}{}
	}

	countries := make([]string, 0, len(seen))
	for c := range seen {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	return countries
}

// Stats summarizes the score spread of players
func Stats(players []domain.PlayerRecord) domain.PlayerStats {
	if len(players) == 0 {
		return domain.PlayerStats{}
	}

	scores := make([]float64, len(players))
	var total float64
	for i, p := range players {
		scores[i] = p.Score
		total += p.Score
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	return domain.PlayerStats{
		TotalPlayers: len(players),
		AverageScore: math.Round(total / float64(len(players))),
		MedianScore:  scores[len(scores)/2],
		TopScore:     scores[0],
		BottomScore:  scores[len(scores)-1],
	}
}
