// Package ws implements the single per-session WebSocket endpoint of
// spec.md §6.2, generalizing the teacher's leaderboard-topic pub/sub Hub
// into a per-(tenant,user) single-subscriber push: each client registers
// under its own user id instead of subscribing to a shared leaderboard
// topic, since every push here targets exactly one player.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mallquest/mallquest/internal/domain"
)

// Message is the envelope for every server->client push.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ClientMessage is the envelope for every client->server frame.
type ClientMessage struct {
	Type     string  `json:"type"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
}

const (
	messageTypePing           = "ping"
	messageTypePong           = "pong"
	messageTypeLocationUpdate = "location_update"
	messageTypeError          = "error"
)

type sessionKey struct {
	tenantID string
	userID   string
}

// Hub maintains every connected client, keyed by (tenant,user), and routes
// pushes from the progression/empire/companion coordinators.
type Hub struct {
	mu      sync.RWMutex
	clients map[sessionKey]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *targetedMessage

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

type targetedMessage struct {
	key sessionKey
	msg *Message
}

// NewHub constructs a Hub; call Run in its own goroutine.
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[sessionKey]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *targetedMessage, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run is the hub's single-goroutine event loop.
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.key] == nil {
				h.clients[c.key] = make(map[*Client]bool)
			}
			h.clients[c.key][c] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", c.id, "user_id", c.key.userID)

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.key]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					if len(set) == 0 {
						delete(h.clients, c.key)
					}
					close(c.send)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", c.id, "user_id", c.key.userID)

		case tm := <-h.broadcast:
			h.deliver(tm)
		}
	}
}

// Stop shuts the hub's event loop down.
func (h *Hub) Stop() { h.cancel() }

func (h *Hub) deliver(tm *targetedMessage) {
	data, err := json.Marshal(tm.msg)
	if err != nil {
		h.logger.Error("websocket: failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[tm.key] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket: client buffer full, dropping message", "client_id", c.id)
		}
	}
}

// Push implements the notifier interface consumed by progression/empire/
// companion coordinators: best-effort, never blocks the caller, never
// returns an error (a missing/full client is not the caller's problem).
func (h *Hub) Push(tenantID, userID string, n domain.Notification) {
	msg := &Message{Type: string(n.Kind), Data: n, Timestamp: n.CreatedAt}
	select {
	case h.broadcast <- &targetedMessage{key: sessionKey{tenantID, userID}, msg: msg}:
	default:
		h.logger.Warn("websocket: broadcast channel full, dropping push", "user_id", userID)
	}
}

// ConnectionCount returns how many sockets are currently open for a user.
func (h *Hub) ConnectionCount(tenantID, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionKey{tenantID, userID}])
}
