package admin

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/danmuck/wearctl/internal/hub"
)

// Event is the JSON form of a hub notification on the events stream.
type Event struct {
	Kind     hub.Kind  `json:"kind"`
	Session  string    `json:"session"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
	Strength *int      `json:"strength,omitempty"`
}

func eventFromNotification(n hub.Notification) Event {
	ev := Event{Kind: n.Kind, Session: n.Session, At: n.At}
	if n.Err != nil {
		ev.Error = n.Err.Error()
	}
	if n.Kind == hub.KindSignal && n.Err == nil {
		strength := n.Strength
		ev.Strength = &strength
	}
	return ev
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// broadcaster fans hub notifications out to websocket clients. Slow clients
// are dropped rather than allowed to stall the session.
type broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	logger  zerolog.Logger
}

func newBroadcaster(logger zerolog.Logger) *broadcaster {
	return &broadcaster{
		clients: make(map[*client]bool),
		logger:  logger,
	}
}

func (b *broadcaster) add(conn *websocket.Conn) *client {
	c := newClient(conn)
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

func (b *broadcaster) remove(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *broadcaster) Notify(n hub.Notification) {
	data, err := json.Marshal(eventFromNotification(n))
	if err != nil {
		b.logger.Error().Err(err).Msg("event marshal failed")
		return
	}

	// sends stay under the read lock so remove cannot close a channel mid-send
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn().Msg("events client too slow, disconnecting")
		b.remove(c)
	}
}
