// Package hub fans events out to connected clients. Delivery is
// best-effort by design: no handle registered means the event is
// dropped, and a slow connection can never stall gameplay because every
// write happens off the caller's goroutine.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Conn is one client's transport handle. Implementations must be safe
// for concurrent Send calls.
type Conn interface {
	Send(ctx context.Context, data []byte) error
}

// SeatResolver maps a session id to the user ids currently seated in it.
type SeatResolver func(sessionID uuid.UUID) []uuid.UUID

// Envelope is the wire shape of every hub event.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub tracks the best-known connection per user. Handles are ephemeral:
// they are rebuilt on reconnect and never persisted.
type Hub struct {
	mu      sync.Mutex
	conns   map[uuid.UUID]Conn
	resolve SeatResolver

	writeTimeout time.Duration
	log          *logrus.Logger
}

// New builds a hub. The resolver may be nil until SetResolver is called
// during wiring.
func New(log *logrus.Logger) *Hub {
	return &Hub{
		conns:        make(map[uuid.UUID]Conn),
		writeTimeout: 3 * time.Second,
		log:          log,
	}
}

// SetResolver installs the seat resolver used by BroadcastToSession.
func (h *Hub) SetResolver(r SeatResolver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolve = r
}

// Register installs the user's current connection. Last registration
// wins; a stale handle is simply replaced, never queued.
func (h *Hub) Register(userID uuid.UUID, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[userID] = c
}

// Unregister drops the user's connection if it is still the one given.
// Passing nil drops whatever is registered. Disconnection never mutates
// game state; the session plays on.
func (h *Hub) Unregister(userID uuid.UUID, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c == nil || h.conns[userID] == c {
		delete(h.conns, userID)
	}
}

// Notify sends one event to one user, fire-and-forget. Without a
// registered handle the event is dropped; the client reconciles by
// re-fetching the session by id.
func (h *Hub) Notify(userID uuid.UUID, event string, payload interface{}) {
	h.mu.Lock()
	c, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok {
		return
	}

	data, err := json.Marshal(Envelope{Type: event, Payload: payload})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("failed to marshal hub event")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
		defer cancel()
		if err := c.Send(ctx, data); err != nil {
			h.log.WithFields(logrus.Fields{
				"user":  userID,
				"event": event,
			}).WithError(err).Warn("dropping undeliverable event")
		}
	}()
}

// BroadcastToSession notifies every seat of the session. A disconnected
// seat simply does not receive the event.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	h.mu.Lock()
	resolve := h.resolve
	h.mu.Unlock()
	if resolve == nil {
		return
	}
	for _, userID := range resolve(sessionID) {
		h.Notify(userID, event, payload)
	}
}
