package domain

// Game identifies an upstream game
type Game struct {
	ID   string `json:"game_id"`
	Name string `json:"game_name"`
}

// PopularGames is the default refresh set
var PopularGames = []Game{
	{ID: "sfiii3nr1", Name: "Street Fighter III: 3rd Strike"},
	{ID: "sfa3", Name: "Street Fighter Alpha 3"},
	{ID: "sf2ce", Name: "Street Fighter II Champion Edition"},
	{ID: "kof98", Name: "King of Fighters 98"},
	{ID: "kof2002", Name: "King of Fighters 2002"},
}

// GameName returns the display name of a known game, or the id itself
func GameName(gameID string) string {
	for _, g := range PopularGames {
		if g.ID == gameID {
			return g.Name
		}
	}
	return gameID
}
