// Package notify pushes reservation notifications to connected users.  The
// Hub is an explicit registry of live connections per user; a Notifier
// decides how a message reaches the hub that holds the user's connection.
package notify

import (
	"context"
	"encoding/json"
	"sync"
)

// Message is the JSON envelope pushed to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Notifier delivers a message to a user.  Implementations never block on a
// slow client and treat an absent user as a silent drop.
type Notifier interface {
	Notify(ctx context.Context, userID uint64, msg Message) error
}

// Conn is a connection registered in the hub.  Send must not block.
type Conn interface {
	Send(payload []byte) bool
}

// Hub maps user ids to their open connections.  The zero value is not
// usable; call NewHub.
type Hub struct {
	mu    sync.RWMutex
	conns map[uint64]map[Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[uint64]map[Conn]struct{})}
}

// Register binds c to userID.  A connection may be bound to one user only;
// registering it again moves it.
func (h *Hub) Register(userID uint64, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for uid, set := range h.conns {
		if _, ok := set[c]; ok && uid != userID {
			h.removeLocked(uid, c)
		}
	}
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
}

// Unregister drops c from every user it was bound to.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for uid, set := range h.conns {
		if _, ok := set[c]; ok {
			h.removeLocked(uid, c)
		}
	}
}

func (h *Hub) removeLocked(userID uint64, c Conn) {
	set := h.conns[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

// Send pushes payload to every connection of userID and reports whether at
// least one accepted it.
func (h *Hub) Send(userID uint64, payload []byte) bool {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range targets {
		if c.Send(payload) {
			delivered = true
		}
	}
	return delivered
}

// Len returns the number of users with at least one connection.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Online reports whether userID has a live connection on this instance.
func (h *Hub) Online(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// LocalNotifier delivers straight to an in-process hub.
type LocalNotifier struct {
	Hub *Hub
}

func (n LocalNotifier) Notify(_ context.Context, userID uint64, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	n.Hub.Send(userID, b)
	return nil
}
