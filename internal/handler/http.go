package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fc-rank-search/internal/domain"
	"github.com/fc-rank-search/internal/playercache"
	"github.com/fc-rank-search/internal/refresh"
	"github.com/fc-rank-search/internal/resolver"
	"github.com/fc-rank-search/internal/scene"
	"github.com/fc-rank-search/internal/service"
	"github.com/fc-rank-search/internal/websocket"
)

// backgroundRefreshTimeout bounds refreshes started from the API without a queue
const backgroundRefreshTimeout = 15 * time.Minute

// RefreshQueue publishes refresh requests for asynchronous processing
type RefreshQueue interface {
	Publish(req domain.RefreshRequest) (domain.RefreshRequest, error)
}

// ReadyCheck reports whether a backing service is reachable
type ReadyCheck func(ctx context.Context) error

// Dependencies are the components served by the API. Queue and Checks are optional.
type Dependencies struct {
	Games     *service.GameService
	Resolver  *resolver.Resolver
	Scenes    *scene.Registry
	Cache     *playercache.Cache
	Refresher *refresh.Refresher
	Queue     RefreshQueue
	Hub       *websocket.Hub
	Checks    map[string]ReadyCheck
}

// Handler provides HTTP handlers for the rankings API
type Handler struct {
	games     *service.GameService
	resolver  *resolver.Resolver
	scenes    *scene.Registry
	cache     *playercache.Cache
	refresher *refresh.Refresher
	queue     RefreshQueue
	hub       *websocket.Hub
	checks    map[string]ReadyCheck
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies, logger *slog.Logger) *Handler {
	return &Handler{
		games:     deps.Games,
		resolver:  deps.Resolver,
		scenes:    deps.Scenes,
		cache:     deps.Cache,
		refresher: deps.Refresher,
		queue:     deps.Queue,
		hub:       deps.Hub,
		checks:    deps.Checks,
		logger:    logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/games", func(r chi.Router) {
			r.Get("/", h.ListGames)
			r.Route("/{gameID}", func(r chi.Router) {
				r.Get("/", h.GetGame)
				r.Post("/refresh", h.RefreshGame)
				r.Get("/search", h.SearchPlayers)
				r.Get("/player/{name}", h.FindPlayer)
				r.Get("/countries", h.GetCountries)
				r.Get("/top", h.GetTop)
				r.Get("/history", h.GetHistory)
			})
		})

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", h.ListScenes)
			r.Get("/games", h.ListSceneGames)
			r.Get("/game/{gameID}", h.ScenesByGame)
			r.Route("/{sceneID}", func(r chi.Router) {
				r.Get("/", h.GetScene)
				r.Get("/hybrid", h.GetSceneHybrid)
				r.Get("/live", h.GetSceneLive)
			})
		})

		r.Post("/users/batch", h.LookupUsers)
		r.Get("/users/{username}", h.LookupUser)

		r.Get("/statistics/games", h.AllStatistics)
		r.Get("/statistics/{gameID}", h.GameStatistics)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", h.CacheStats)
			r.Get("/game/{gameID}", h.CacheForGame)
			r.Post("/clear", h.ClearCache)
			r.Post("/cleanup", h.CleanupCache)
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

// statusFor maps a service error onto an HTTP status
func statusFor(err error) int {
	switch {
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRefreshInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status, hiding internal failures
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(attrs, "error", err)...)
		h.writeError(w, status, domain.ErrInternalError)
		return
	}
	h.writeError(w, status, err)
}

// intQuery parses an optional integer query parameter
func intQuery(r *http.Request, key string) (*int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, domain.ErrInvalidRequest
	}
	return &v, nil
}

// floatQuery parses an optional float query parameter
func floatQuery(r *http.Request, key string) (*float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.ErrInvalidRequest
	}
	return &v, nil
}

// intQueryOr parses an integer query parameter, using def when it is absent
func intQueryOr(r *http.Request, key string, def int) (int, error) {
	v, err := intQuery(r, key)
	if err != nil || v == nil {
		return def, err
	}
	return *v, nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.hub.Stats())
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports readiness, failing when any configured backing service is unreachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			status[name] = "unavailable"
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    map[string]any{"status": "not ready", "dependencies": status},
			Error:   "dependency unavailable",
		})
		return
	}
	h.writeSuccess(w, map[string]any{"status": "ready", "dependencies": status})
}
