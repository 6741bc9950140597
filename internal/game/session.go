// Package game runs live sessions to completion: the per-session state
// machine, move application against the rules adapter, clock
// bookkeeping, terminal transitions and the hand-off to rating
// settlement. Sessions are independent; each carries its own lock and
// two sessions never contend with each other.
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/models"
)

// Session is the live, in-memory form of an active game. All fields
// behind mu are owned by the engine and mutated only through its
// transition operations.
type Session struct {
	mu sync.Mutex

	data  models.GameSession
	white models.Seat
	black models.Seat

	position   string
	sideToMove models.Color

	// drawOfferFrom holds the color with an outstanding draw offer, if
	// any. Offers are advisory and live only in memory.
	drawOfferFrom *models.Color

	// turnStartedAt anchors the clock sweep for the side to move.
	turnStartedAt time.Time
}

// View is a read-only snapshot of a session, safe to hand out and
// serialize without holding the session lock.
type View struct {
	Session       models.GameSession `json:"session"`
	White         models.Seat        `json:"white"`
	Black         models.Seat        `json:"black"`
	Position      string             `json:"position"`
	SideToMove    models.Color       `json:"side_to_move"`
	DrawOfferFrom *models.Color      `json:"draw_offer_from,omitempty"`
}

func (s *Session) viewLocked() View {
	v := View{
		Session:    s.data,
		White:      s.white,
		Black:      s.black,
		Position:   s.position,
		SideToMove: s.sideToMove,
	}
	if s.drawOfferFrom != nil {
		c := *s.drawOfferFrom
		v.DrawOfferFrom = &c
	}
	return v
}

// seatForUser resolves the caller to their seat.
func (s *Session) seatForUser(userID uuid.UUID) (*models.Seat, error) {
	if s.white.UserID != nil && *s.white.UserID == userID {
		return &s.white, nil
	}
	if s.black.UserID != nil && *s.black.UserID == userID {
		return &s.black, nil
	}
	return nil, arena.E(arena.Unauthorized, "user %s is not seated in session %s", userID, s.data.ID)
}

func (s *Session) seatFor(c models.Color) *models.Seat {
	if c == models.White {
		return &s.white
	}
	return &s.black
}

// Store is the registry of live sessions keyed by id.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*Session)}
}

func (st *Store) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.data.ID] = s
}

func (st *Store) Get(id uuid.UUID) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *Store) Delete(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// All snapshots the current registry for iteration outside the store
// lock. Callers lock each session individually.
func (st *Store) All() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// SeatUsers returns the human user ids seated in a session. It backs
// the notification hub's session-to-recipients resolution.
func (st *Store) SeatUsers(id uuid.UUID) []uuid.UUID {
	s, ok := st.Get(id)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []uuid.UUID
	if s.white.UserID != nil {
		users = append(users, *s.white.UserID)
	}
	if s.black.UserID != nil {
		users = append(users, *s.black.UserID)
	}
	return users
}

// EvictFinished drops sessions that reached a settled terminal state
// longer than olderThan ago. Pending settlements are never evicted;
// they stay until the retry completes.
func (st *Store) EvictFinished(now time.Time, olderThan time.Duration) int {
	evicted := 0
	for _, s := range st.All() {
		s.mu.Lock()
		done := s.data.Status != models.StatusActive &&
			s.data.Status != models.StatusPendingSettlement &&
			!s.data.FinishedAt.IsZero() &&
			now.Sub(s.data.FinishedAt) >= olderThan
		id := s.data.ID
		s.mu.Unlock()
		if done {
			st.Delete(id)
			evicted++
		}
	}
	return evicted
}
