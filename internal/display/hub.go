// Package display pushes terminal state to customer-facing screens over
// WebSocket. Every terminal has its own room; a screen subscribes to one
// terminal and receives every event published for it.
package display

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

const broadcastBuffer = 256

// ErrStopped is returned when subscribing to a hub that is no longer running.
var ErrStopped = errors.New("display hub stopped")

type envelope struct {
	terminalID string
	message    []byte
}

// Hub fans published events out to the subscribed clients of each terminal.
type Hub struct {
	lg *zap.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}

	// mu guards rooms. Only Run mutates it; Clients reads it.
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewHub creates a Hub. Call Run to start delivering events.
func NewHub(lg *zap.Logger) *Hub {
	return &Hub{
		lg:         lg,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, broadcastBuffer),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// Run delivers events until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return nil

		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.terminalID] == nil {
				h.rooms[c.terminalID] = make(map[*Client]struct{})
			}
			h.rooms[c.terminalID][c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[ev.terminalID] {
				select {
				case c.send <- ev.message:
				default:
					h.lg.Warn("Display client too slow, disconnecting",
						zap.String("terminal_id", ev.terminalID),
					)
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for the screens of terminalID. payload must be a
// JSON value or empty. Events are dropped when the queue is full.
func (h *Hub) Publish(terminalID, eventType string, payload []byte) {
	select {
	case h.broadcast <- envelope{terminalID: terminalID, message: encodeEvent(eventType, payload)}:
	default:
		h.lg.Warn("Display queue full, dropping event",
			zap.String("terminal_id", terminalID),
			zap.String("type", eventType),
		)
	}
}

// subscribe adds c to its room. It fails once the hub has stopped.
func (h *Hub) subscribe(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

func (h *Hub) unsubscribe(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Clients returns the number of screens subscribed to terminalID.
func (h *Hub) Clients(terminalID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[terminalID])
}

// drop removes c from its room and closes its send channel. Callers hold mu.
func (h *Hub) drop(c *Client) {
	clients, ok := h.rooms[c.terminalID]
	if !ok {
		return
	}
	if _, exists := clients[c]; !exists {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.terminalID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for c := range clients {
			h.drop(c)
		}
	}
}

func encodeEvent(eventType string, payload []byte) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(eventType) })
		e.Field("payload", func(e *jx.Encoder) {
			if len(payload) == 0 {
				e.Null()
				return
			}
			e.Raw(payload)
		})
	})
	return e.Bytes()
}
