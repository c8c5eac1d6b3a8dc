package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/redeem"
)

// Hub fans status events out to the watchers of each valentine.
// It implements redeem.EventPublisher.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]*Client
}

// NewHub constructs a Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, rooms: make(map[string]map[string]*Client)}
}

// Join adds client to its valentine's room.
func (h *Hub) Join(c *Client) {
	if c == nil || c.SessionID == "" || c.ValentineID == "" {
		return
	}
	h.mu.Lock()
	room, ok := h.rooms[c.ValentineID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.ValentineID] = room
	}
	room[c.SessionID] = c
	h.mu.Unlock()

	h.log.Debug("watch.join", "valentine_id", c.ValentineID, "session_id", c.SessionID)
}

// Leave removes the client, signals its shutdown and drops empty rooms.
func (h *Hub) Leave(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	if room, ok := h.rooms[c.ValentineID]; ok {
		delete(room, c.SessionID)
		if len(room) == 0 {
			delete(h.rooms, c.ValentineID)
		}
	}
	h.mu.Unlock()

	// Close after removal so no broadcaster still holds the client.
	c.Close()
	h.log.Debug("watch.leave", "valentine_id", c.ValentineID, "session_id", c.SessionID)
}

// Watchers returns the number of clients watching valentineID.
func (h *Hub) Watchers(valentineID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[valentineID])
}

// Broadcast delivers env to every watcher of valentineID without blocking.
// Full queues drop the envelope.
func (h *Hub) Broadcast(valentineID string, env Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.rooms[valentineID] {
		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- env:
			delivered++
		default:
		}
	}
	return delivered
}

// PublishStatus broadcasts a status envelope for ev.
func (h *Hub) PublishStatus(_ context.Context, ev redeem.StatusEvent) {
	env := newEnvelope(TypeStatus, statusPayload(ev), ev.At)
	n := h.Broadcast(ev.ValentineID, env)
	if n > 0 {
		h.log.Debug("watch.status.broadcast", "valentine_id", ev.ValentineID, "status", string(ev.Status), "delivered", n)
	}
}

func statusPayload(ev redeem.StatusEvent) StatusPayload {
	return StatusPayload{
		ValentineID:       ev.ValentineID,
		Status:            string(ev.Status),
		RemainingAttempts: ev.RemainingAttempts,
		UpdatedAt:         ev.At,
	}
}
