package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fc-rank-search/internal/domain"
)

// refreshBody is the optional JSON body of a refresh request
type refreshBody struct {
	GameName   string `json:"game_name"`
	MaxPlayers int    `json:"max_players"`
}

// ListGames returns every persisted snapshot summary
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.games.ListGames(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list games")
		return
	}
	h.writeSuccess(w, games)
}

// GetGame returns a game's summary and score spread
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	detail, err := h.games.GetGame(r.Context(), gameID)
	if err != nil {
		h.writeServiceError(w, err, "failed to load game", "game_id", gameID)
		return
	}
	h.writeSuccess(w, detail)
}

// RefreshGame starts a snapshot refresh, through the queue when one is configured
func (h *Handler) RefreshGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	var body refreshBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
	}
	if body.MaxPlayers < 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if h.refresher.InProgress(gameID) {
		h.writeError(w, http.StatusConflict, domain.ErrRefreshInProgress)
		return
	}

	req := domain.RefreshRequest{
		GameID:      gameID,
		GameName:    body.GameName,
		MaxPlayers:  body.MaxPlayers,
		RequestedBy: "api",
		RequestedAt: time.Now().UTC(),
	}

	if h.queue != nil {
		sent, err := h.queue.Publish(req)
		if err != nil {
			h.writeServiceError(w, err, "failed to enqueue refresh", "game_id", gameID)
			return
		}
		h.writeJSON(w, http.StatusAccepted, APIResponse{Success: true, Data: map[string]any{
			"status":  "queued",
			"request": sent,
		}})
		return
	}

	if err := h.refresher.Start(req, backgroundRefreshTimeout); err != nil {
		h.writeServiceError(w, err, "failed to start refresh", "game_id", gameID)
		return
	}

	h.writeJSON(w, http.StatusAccepted, APIResponse{Success: true, Data: map[string]any{
		"status":  "started",
		"game_id": gameID,
	}})
}

// SearchPlayers filters a game's players
func (h *Handler) SearchPlayers(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	q := r.URL.Query()

	filters := domain.SearchFilters{Name: q.Get("name"), Country: q.Get("country")}
	var err error
	if filters.MinScore, err = floatQuery(r, "min_score"); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if filters.MaxScore, err = floatQuery(r, "max_score"); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if filters.MinRank, err = intQuery(r, "min_rank"); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if filters.MaxRank, err = intQuery(r, "max_rank"); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	page, err := intQueryOr(r, "page", 1)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	pageSize, err := intQueryOr(r, "page_size", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.games.Search(r.Context(), gameID, filters, page, pageSize)
	if err != nil {
		h.writeServiceError(w, err, "failed to search players", "game_id", gameID)
		return
	}
	h.writeSuccess(w, result)
}

// FindPlayer looks up one player by exact name, answering 404 with suggestions on a miss
func (h *Handler) FindPlayer(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	name := chi.URLParam(r, "name")

	match, err := h.games.FindPlayer(r.Context(), gameID, name)
	if err != nil {
		if errors.Is(err, domain.ErrPlayerNotFound) && match != nil {
			h.writeJSON(w, http.StatusNotFound, APIResponse{Success: false, Data: match, Error: err.Error()})
			return
		}
		h.writeServiceError(w, err, "failed to find player", "game_id", gameID, "name", name)
		return
	}
	h.writeSuccess(w, match)
}

// GetCountries returns the countries present in a game
func (h *Handler) GetCountries(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	countries, err := h.games.Countries(r.Context(), gameID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list countries", "game_id", gameID)
		return
	}
	h.writeSuccess(w, countries)
}

// GetTop returns the best players of a game
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	count, err := intQueryOr(r, "count", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	players, err := h.games.TopPlayers(r.Context(), gameID, count)
	if err != nil {
		h.writeServiceError(w, err, "failed to get top players", "game_id", gameID)
		return
	}
	h.writeSuccess(w, players)
}

// GetHistory returns recent refreshes of a game
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	limit, err := intQueryOr(r, "limit", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	records, err := h.games.History(r.Context(), gameID, limit)
	if err != nil {
		h.writeServiceError(w, err, "failed to load history", "game_id", gameID)
		return
	}
	h.writeSuccess(w, records)
}

// AllStatistics returns the statistics of every persisted game
func (h *Handler) AllStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.games.GamesStatistics(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to compute statistics")
		return
	}
	h.writeSuccess(w, stats)
}

// GameStatistics returns the statistics of one game
func (h *Handler) GameStatistics(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	stats, err := h.games.Statistics(r.Context(), gameID)
	if err != nil {
		h.writeServiceError(w, err, "failed to compute statistics", "game_id", gameID)
		return
	}
	h.writeSuccess(w, stats)
}
