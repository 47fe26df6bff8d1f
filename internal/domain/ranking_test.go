package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTierScore(t *testing.T) {
	cases := map[int]float64{0: 1000, 1: 1000, 2: 1200, 3: 1400, 4: 1600, 5: 1800, 6: 2000, 9: 2000}
	for tier, want := range cases {
		assert.Equal(t, want, TierScore(tier), "tier %d", tier)
	}
}

func TestTierLetter(t *testing.T) {
	assert.Equal(t, "E", TierLetter(1))
	assert.Equal(t, "S", TierLetter(6))
	assert.Equal(t, "Unknown", TierLetter(0))
	assert.Equal(t, "Unknown", TierLetter(7))
}

func TestProfileToRecord(t *testing.T) {
	p := &Profile{
		Name:    "Alice",
		Country: "Brazil",
		GameInfo: map[string]GameInfo{
			"sfiii3nr1": {Rank: 5, NumMatches: 1200, TimePlayed: 7200},
		},
	}

	rec := p.ToRecord("sfiii3nr1", 3)
	assert.Equal(t, PlayerRecord{
		Name:         "Alice",
		Score:        1800,
		RankPosition: 3,
		Tier:         5,
		TotalMatches: 1200,
		TimePlayed:   7200,
		Country:      "Brazil",
	}, rec)

	// no stats for the game and no country
	bare := (&Profile{Name: "Bob"}).ToRecord("kof98", 10)
	assert.Equal(t, 1, bare.Tier)
	assert.Equal(t, float64(1000), bare.Score)
	assert.Equal(t, UnknownCountry, bare.Country)
}

func TestSnapshotValid(t *testing.T) {
	assert.False(t, (*Snapshot)(nil).Valid())
	assert.False(t, (&Snapshot{GameID: "x", FetchedAt: time.Now()}).Valid())
	assert.False(t, (&Snapshot{GameID: "x", Players: []PlayerRecord{}}).Valid())
	assert.True(t, (&Snapshot{GameID: "x", Players: []PlayerRecord{}, FetchedAt: time.Now()}).Valid())
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrSceneNotFound))
	assert.True(t, IsNotFoundError(ErrSnapshotNotFound))
	assert.False(t, IsNotFoundError(ErrUpstreamUnavailable))
}

func TestGameName(t *testing.T) {
	assert.Equal(t, "King of Fighters 98", GameName("kof98"))
	assert.Equal(t, "mslug", GameName("mslug"))
}
