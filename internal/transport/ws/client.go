package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one connected socket, scoped to a single (tenant,user) session.
type Client struct {
	id     string
	key    sessionKey
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

func newClient(hub *Hub, tenantID, userID string, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		key:    sessionKey{tenantID, userID},
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		logger: logger,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}

		var cm ClientMessage
		if err := json.Unmarshal(message, &cm); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleMessage(&cm)
	}
}

func (c *Client) handleMessage(cm *ClientMessage) {
	switch cm.Type {
	case messageTypePing:
		c.sendPong()
	case messageTypeLocationUpdate:
		// Location is consumed elsewhere (store-proximity features are out of
		// scope per spec.md's non-goals); acknowledge only.
		c.sendAck(messageTypeLocationUpdate)
	default:
		c.logger.Debug("websocket: unknown message type", "type", cm.Type)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(errMsg string) {
	c.enqueue(&Message{Type: messageTypeError, Data: map[string]string{"error": errMsg}, Timestamp: time.Now()})
}

func (c *Client) sendAck(action string) {
	c.enqueue(&Message{Type: action, Data: map[string]string{"status": "ok"}, Timestamp: time.Now()})
}

func (c *Client) sendPong() {
	c.enqueue(&Message{Type: messageTypePong, Timestamp: time.Now()})
}

func (c *Client) enqueue(msg *Message) {
	data, _ := json.Marshal(msg)
	select {
	case c.send <- data:
	default:
	}
}

// Serve upgrades r to a WebSocket, registers the connection under
// (tenantID, userID), and runs its read/write pumps until the peer
// disconnects.
func Serve(hub *Hub, tenantID, userID string, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(hub, tenantID, userID, conn, logger)
	hub.register <- client

	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id, "user_id", userID)
}
