package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MHMDHIDR/expenses-tracker/internal/observability"
)

// WSMessage is the envelope for websocket messages
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ChangePayload announces a server-side data change to connected clients
type ChangePayload struct {
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id"`
}

const (
	WSTypeChange = "change"
	WSTypePing   = "ping"
	WSTypePong   = "pong"
)

// WSClient is one connected websocket peer
type WSClient struct {
	ID         string
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *ChangeHub
	mu         sync.Mutex
	closedOnce sync.Once
}

// ChangeHub fans data-change notifications out to websocket clients
type ChangeHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte
	mu         sync.RWMutex
	logger     *observability.Logger
}

// NewChangeHub creates a hub; Run must be started in its own goroutine
func NewChangeHub() *ChangeHub {
	return &ChangeHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan []byte, 256),
		logger:     observability.GetLogger().WithField("component", "change-hub"),
	}
}

// Run is the hub's main loop
func (h *ChangeHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debugf("websocket client connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.logger.Debugf("websocket client disconnected: %s", client.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					// Client buffer full, drop the connection
					go func(c *WSClient) {
						h.unregister <- c
					}(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NotifyChange broadcasts a data-change event to every connected client
func (h *ChangeHub) NotifyChange(entity, action, id string) {
	data, err := json.Marshal(WSMessage{
		Type:    WSTypeChange,
		Payload: ChangePayload{Entity: entity, Action: action, ID: id},
	})
	if err != nil {
		h.logger.Errorf("marshaling change message: %v", err)
		return
	}
	h.broadcast <- data
}

// ClientCount returns the number of connected clients
func (h *ChangeHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWS upgrades the connection and runs the client pumps
func (h *ChangeHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := &WSClient{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 256),
		hub:  h,
	}
	h.register <- client

	go client.writePump()
	client.readPump()
}

// Close closes the client connection
func (c *WSClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.unregister <- c
		c.Conn.Close()
	})
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.mu.Lock()
			err := c.Conn.WriteMessage(websocket.TextMessage, message)
			c.mu.Unlock()
			if err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) readPump() {
	defer c.Close()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnf("websocket error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == WSTypePing {
			data, _ := json.Marshal(WSMessage{Type: WSTypePong})
			select {
			case c.Send <- data:
			default:
			}
		}
	}
}
