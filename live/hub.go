// Package live pushes check-in notices to organizers watching an event's
// attendance over a websocket.
package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"felicity/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	eventID string
}

// Hub fans messages out to every client subscribed to an event.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		rooms:    make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
	}
}

// Serve upgrades the request and subscribes it to eventID. Access control
// happens before this is called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, eventID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn.Printf("[live] upgrade failed for %v: %v", r.RemoteAddr, err)
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), eventID: eventID}
	h.register(c)
	logger.Debug.Printf("[live] %v watching event %s", conn.RemoteAddr(), eventID)

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// Publish is safe to call from any goroutine. Slow clients are dropped
// rather than blocking the publisher.
func (h *Hub) Publish(eventID string, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		logger.Error.Printf("[live] marshal notice for %s: %v", eventID, err)
		return
	}
	h.mu.RLock()
	var slow []*client
	for c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		logger.Warn.Printf("[live] dropping slow client %v", c.conn.RemoteAddr())
		h.unregister(c)
	}
}

// Watchers returns the number of clients subscribed to eventID.
func (h *Hub) Watchers(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.eventID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.eventID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.eventID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.eventID)
	}
}

// readPump only drains control frames; the feed is one-way.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn.Printf("[live] read error from %v: %v", c.conn.RemoteAddr(), err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn.Printf("[live] write to %v: %v", c.conn.RemoteAddr(), err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
