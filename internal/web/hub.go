package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"story-o-matic/server/internal/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	sendBuffer   = 256
	maxReadBytes = 512
)

// EventStoryState is the event type pushed after every story change.
const EventStoryState = "story_state"

// Event is the envelope written to WebSocket clients.
type Event struct {
	Type string            `json:"type"`
	Data models.StoryState `json:"data"`
	Time int64             `json:"time"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID      string
	StoryID string // empty receives every story
	Conn    *websocket.Conn
	Send    chan []byte
	Hub     *StoryHub
	mu      sync.Mutex
	closed  bool
}

// StoryHub fans story state changes out to WebSocket clients
type StoryHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.StoryState
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewStoryHub creates a new story hub
func NewStoryHub(logger *zap.Logger) *StoryHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoryHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan models.StoryState, 1000),
		logger:     logger.Named("hub"),
	}
}

// Run starts the hub's event loop and returns when ctx is done
func (h *StoryHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case state := <-h.broadcast:
			h.broadcastState(state)
		}
	}
}

// registerClient adds a new client to the hub
func (h *StoryHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.logger.Debug("Client connected", zap.String("client_id", client.ID), zap.Int("total", len(h.clients)))

	go client.writePump()
}

// unregisterClient removes a client from the hub
func (h *StoryHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		h.logger.Debug("Client disconnected", zap.String("client_id", client.ID), zap.Int("total", len(h.clients)))
	}
}

func (h *StoryHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
}

// broadcastState sends a state snapshot to every interested client
func (h *StoryHub) broadcastState(state models.StoryState) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(Event{
		Type: EventStoryState,
		Data: state,
		Time: time.Now().Unix(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal story state", zap.Error(err))
		return
	}

	for _, client := range h.clients {
		if client.StoryID != "" && client.StoryID != state.ID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Client send buffer full", zap.String("client_id", client.ID))
		}
	}
}

// Broadcast queues a state snapshot for delivery. It never blocks.
func (h *StoryHub) Broadcast(state models.StoryState) {
	select {
	case h.broadcast <- state:
	default:
		h.logger.Warn("Broadcast channel full, dropping story state", zap.String("story_id", state.ID))
	}
}

// GetClientCount returns the number of connected clients
func (h *StoryHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("Write failed", zap.String("client_id", c.ID), zap.Error(err))
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	_ = c.Conn.Close()
}

// readPump drains the connection until it closes; clients only listen
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		default:
		}
		c.Close()
	}()

	c.Conn.SetReadLimit(maxReadBytes)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Debug("Unexpected close", zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}
	}
}
