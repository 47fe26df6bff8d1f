package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fc-rank-search/internal/domain"
	"github.com/fc-rank-search/internal/search"
)

// Message types
const (
	MessageTypeSnapshotUpdate = "snapshot_update"
	MessageTypeSubscribe      = "subscribe"
	MessageTypeUnsubscribe    = "unsubscribe"
	MessageTypeSubscribed     = "subscribed"
	MessageTypeUnsubscribed   = "unsubscribed"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeError          = "error"
)

// updateTopN is the number of leading players carried by a snapshot update
const updateTopN = 10

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	GameID    string    `json:"game_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotUpdate announces a freshly stored snapshot
type SnapshotUpdate struct {
	GameID         string                `json:"game_id"`
	GameName       string                `json:"game_name"`
	TotalPlayers   int                   `json:"total_players"`
	TotalAvailable int                   `json:"total_available"`
	FetchedAt      time.Time             `json:"fetched_at"`
	Partial        bool                  `json:"partial"`
	TopPlayers     []domain.PlayerRecord `json:"top_players"`
}

// HubStats describes current connections
type HubStats struct {
	TotalConnections int            `json:"total_connections"`
	Subscriptions    map[string]int `json:"subscriptions"`
}

// Hub tracks connected clients and their game subscriptions
type Hub struct {
	// clients subscribed per game id
	games map[string]map[*Client]struct{}

	clients map[*Client]struct{}

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan subscription
	unsubscribe chan subscription

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscription struct {
	client *Client
	gameID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		games:       make(map[string]map[*Client]struct{}),
		clients:     make(map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan subscription, 64),
		unsubscribe: make(chan subscription, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.removeClient(client)

		case sub := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[sub.client]; ok {
				if _, ok := h.games[sub.gameID]; !ok {
					h.games[sub.gameID] = make(map[*Client]struct{})
				}
				h.games[sub.gameID][sub.client] = struct{}{}
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", sub.client.id, "game_id", sub.gameID)

		case sub := <-h.unsubscribe:
			h.mu.Lock()
			h.dropSubscriptionLocked(sub.client, sub.gameID)
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", sub.client.id, "game_id", sub.gameID)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for gameID := range h.games {
		h.dropSubscriptionLocked(client, gameID)
	}
	close(client.send)
	h.logger.Debug("client unregistered", "client_id", client.id)
}

func (h *Hub) dropSubscriptionLocked(client *Client, gameID string) {
	subs, ok := h.games[gameID]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.games, gameID)
	}
}

// deliver sends a message to the subscribers of its game, or to everyone when it has none
func (h *Hub) deliver(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if message.GameID != "" {
		targets = h.games[message.GameID]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type, "game_id", message.GameID)
	}
}

// BroadcastSnapshotUpdate notifies the game's subscribers of a new snapshot
func (h *Hub) BroadcastSnapshotUpdate(snap *domain.Snapshot, partial bool) {
	h.enqueue(&Message{
		Type:   MessageTypeSnapshotUpdate,
		GameID: snap.GameID,
		Data: SnapshotUpdate{
			GameID:         snap.GameID,
			GameName:       snap.GameName,
			TotalPlayers:   snap.TotalPlayers,
			TotalAvailable: snap.TotalAvailable,
			FetchedAt:      snap.FetchedAt,
			Partial:        partial,
			TopPlayers:     search.TopPlayers(snap.Players, updateTopN),
		},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a game's updates
func (h *Hub) Subscribe(client *Client, gameID string) {
	select {
	case h.subscribe <- subscription{client: client, gameID: gameID}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a game's updates
func (h *Hub) Unsubscribe(client *Client, gameID string) {
	select {
	case h.unsubscribe <- subscription{client: client, gameID: gameID}:
	case <-h.ctx.Done():
	}
}

// SubscriberCount returns the number of subscribers for a game
func (h *Hub) SubscriberCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

// TotalConnections returns the number of connected clients
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns connection and per-game subscription counts
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make(map[string]int, len(h.games))
	for gameID, clients := range h.games {
		subs[gameID] = len(clients)
	}
	return HubStats{TotalConnections: len(h.clients), Subscriptions: subs}
}
