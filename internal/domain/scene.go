package domain

import "time"

// Scene is a named group of players for one game
type Scene struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GameID      string    `json:"game_id"`
	GameName    string    `json:"game_name"`
	Players     []string  `json:"players"`
	CreatedAt   time.Time `json:"created_at"`
	SubmittedBy string    `json:"submitted_by"`
}

// SceneMetadata is the header of the scenes file
type SceneMetadata struct {
	LastUpdated time.Time `json:"last_updated"`
	Version     string    `json:"version"`
	TotalScenes int       `json:"total_scenes"`
}

// SceneConfig is the persisted scenes file
type SceneConfig struct {
	Scenes   []Scene       `json:"scenes"`
	Metadata SceneMetadata `json:"metadata"`
}

// SceneGame counts scenes for one game
type SceneGame struct {
	GameID     string `json:"game_id"`
	GameName   string `json:"game_name"`
	SceneCount int    `json:"scene_count"`
}

// SceneStats aggregates the scene registry
type SceneStats struct {
	TotalScenes            int       `json:"total_scenes"`
	TotalPlayers           int       `json:"total_players"`
	GamesWithScenes        int       `json:"games_with_scenes"`
	AveragePlayersPerScene int       `json:"average_players_per_scene"`
	LastUpdated            time.Time `json:"last_updated"`
}
