package fightcade

import (
	"encoding/json"
	"strings"

	"github.com/fc-rank-search/internal/domain"
)

// Upstream operation names
const (
	opSearchRankings = "searchrankings"
	opGetUser        = "getuser"
)

// Upstream result codes
const (
	resOK           = "OK"
	resUserNotFound = "ERROR_USER_NOT_FOUND"
)

type rankingsRequest struct {
	Req    string `json:"req"`
	GameID string `json:"gameid"`
	ByElo  bool   `json:"byElo"`
	Recent bool   `json:"recent"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type userRequest struct {
	Req      string `json:"req"`
	Username string `json:"username"`
}

// envelope is the common response wrapper; the payload sits in either
// results (rankings, some user lookups) or user
type envelope struct {
	Res     string          `json:"res"`
	Results json.RawMessage `json:"results,omitempty"`
	User    json.RawMessage `json:"user,omitempty"`
}

type rankingsResults struct {
	Count   int          `json:"count"`
	Results []wirePlayer `json:"results"`
}

type wirePlayer struct {
	Name     string                  `json:"name"`
	Country  json.RawMessage         `json:"country,omitempty"`
	GameInfo map[string]wireGameInfo `json:"gameinfo,omitempty"`
}

// numbers arrive as JSON numbers that are not always integral
type wireGameInfo struct {
	Rank       float64 `json:"rank"`
	NumMatches float64 `json:"num_matches"`
	TimePlayed float64 `json:"time_played"`
}

type wireCountry struct {
	FullName string `json:"full_name"`
}

// decodeCountry accepts either a plain string or an object carrying full_name
func decodeCountry(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return strings.TrimSpace(name)
	}

	var obj wireCountry
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.FullName)
	}
	return ""
}

// toProfile keeps only the fields the rest of the system reads
func (p *wirePlayer) toProfile() domain.Profile {
	profile := domain.Profile{
		Name:    p.Name,
		Country: decodeCountry(p.Country),
	}
	if len(p.GameInfo) > 0 {
		profile.GameInfo = make(map[string]domain.GameInfo, len(p.GameInfo))
		for gameID, info := range p.GameInfo {
			profile.GameInfo[gameID] = domain.GameInfo{
				Rank:       int(info.Rank),
				NumMatches: int(info.NumMatches),
				TimePlayed: int64(info.TimePlayed),
			}
		}
	}
	return profile
}
