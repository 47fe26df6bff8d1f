package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fc-rank-search/internal/domain"
)

// batchLookupBody is the JSON body of a batch user lookup
type batchLookupBody struct {
	Usernames []string `json:"usernames"`
}

// ListScenes returns every scene with registry stats
func (h *Handler) ListScenes(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"scenes": h.scenes.All(),
		"stats":  h.scenes.Stats(),
	})
}

// ListSceneGames returns the games that have scenes
func (h *Handler) ListSceneGames(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.scenes.Games())
}

// ScenesByGame returns the scenes of one game
func (h *Handler) ScenesByGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	h.writeSuccess(w, map[string]any{
		"game_id": gameID,
		"scenes":  h.scenes.ByGame(gameID),
	})
}

// GetScene resolves a scene against the stored snapshot only
func (h *Handler) GetScene(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "sceneID")

	res, err := h.resolver.ResolveSceneCached(r.Context(), sceneID)
	if err != nil {
		h.writeServiceError(w, err, "failed to resolve scene", "scene_id", sceneID)
		return
	}
	h.writeSuccess(w, res)
}

// GetSceneHybrid resolves a scene from the snapshot, looking up misses live
func (h *Handler) GetSceneHybrid(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "sceneID")

	res, err := h.resolver.ResolveScene(r.Context(), sceneID)
	if err != nil {
		h.writeServiceError(w, err, "failed to resolve scene", "scene_id", sceneID)
		return
	}
	h.writeSuccess(w, res)
}

// GetSceneLive resolves every scene player from upstream
func (h *Handler) GetSceneLive(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "sceneID")

	res, err := h.resolver.ResolveSceneLive(r.Context(), sceneID)
	if err != nil {
		h.writeServiceError(w, err, "failed to resolve scene live", "scene_id", sceneID)
		return
	}
	h.writeSuccess(w, res)
}

// LookupUser returns one upstream profile, served from cache when possible
func (h *Handler) LookupUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	result, err := h.resolver.LookupPlayer(r.Context(), username)
	if err != nil {
		h.writeServiceError(w, err, "failed to look up user", "username", username)
		return
	}
	h.writeSuccess(w, result)
}

// LookupUsers returns a batch of upstream profiles in request order
func (h *Handler) LookupUsers(w http.ResponseWriter, r *http.Request) {
	var body batchLookupBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	results, err := h.resolver.LookupPlayers(r.Context(), body.Usernames)
	if err != nil {
		h.writeServiceError(w, err, "failed to look up users")
		return
	}

	found := 0
	for _, res := range results {
		if res.Found {
			found++
		}
	}
	h.writeSuccess(w, map[string]any{
		"results":   results,
		"requested": len(results),
		"found":     found,
	})
}

// CacheStats returns player cache accounting
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.cache.Stats())
}

// CacheForGame returns the cached profiles that have played a game
func (h *Handler) CacheForGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	entries := h.cache.GetForGame(gameID)
	h.writeSuccess(w, map[string]any{
		"game_id": gameID,
		"count":   len(entries),
		"entries": entries,
	})
}

// ClearCache drops every cache entry
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	h.writeSuccess(w, map[string]string{"status": "cleared"})
}

// CleanupCache drops expired cache entries
func (h *Handler) CleanupCache(w http.ResponseWriter, r *http.Request) {
	removed := h.cache.Cleanup()
	h.writeSuccess(w, map[string]any{"status": "cleaned", "removed": removed})
}
