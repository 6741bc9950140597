// Package queue holds waiting players and pairs them into matches. All
// queue state lives behind one mutex, which makes the two structural
// invariants cheap to enforce: a user holds at most one entry across
// all game-type queues, and no entry is ever matched twice. Match
// creation runs inside the same critical section as the queue scan, so
// a leave racing an in-flight match resolves to whichever got the lock
// first.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/database"
	"github.com/knightwatch/arena/internal/models"
)

// MatchCreator is the collaborator that turns a selected pair into a
// persisted session. A retryable error means the pair must be returned
// to the queue unharmed.
type MatchCreator interface {
	CreateMatch(ctx context.Context, a, b *models.QueueEntry) (*models.GameSession, error)
}

// Notifier delivers queue lifecycle events, best effort.
type Notifier interface {
	Notify(userID uuid.UUID, event string, payload interface{})
}

// QueuedStatus reports a waiting entry's place in line.
type QueuedStatus struct {
	EntryID    uuid.UUID `json:"entry_id"`
	GameType   string    `json:"game_type"`
	Position   int       `json:"position"`
	ETASeconds int       `json:"eta_seconds"`
}

// JoinResult is either an immediate match or a queued position, never
// both.
type JoinResult struct {
	Matched *models.GameSession `json:"matched,omitempty"`
	Queued  *QueuedStatus       `json:"queued,omitempty"`
}

// Manager is the single-writer queue store.
type Manager struct {
	mu     sync.Mutex
	queues map[string][]*models.QueueEntry
	byUser map[uuid.UUID]*models.QueueEntry

	db      database.Store
	creator MatchCreator
	hub     Notifier
	log     *logrus.Logger

	maxAge time.Duration
	tick   time.Duration
	now    func() time.Time
}

func NewManager(db database.Store, creator MatchCreator, hub Notifier, log *logrus.Logger) *Manager {
	return &Manager{
		queues:  make(map[string][]*models.QueueEntry),
		byUser:  make(map[uuid.UUID]*models.QueueEntry),
		db:      db,
		creator: creator,
		hub:     hub,
		log:     log,
		maxAge:  10 * time.Minute,
		tick:    5 * time.Second,
		now:     time.Now,
	}
}

// Join registers the user for matchmaking. Any pre-existing entry for
// the user is removed first, then an immediate match is attempted
// against the queue in insertion order; failing that the entry is
// appended. The removal, scan and insertion are one atomic step
// relative to the background sweep.
func (m *Manager) Join(ctx context.Context, userID uuid.UUID, gameType string, tc models.TimeControl, rng models.RatingRange) (JoinResult, error) {
	if gameType == "" {
		return JoinResult{}, arena.E(arena.ValidationRejected, "game type is required")
	}
	if tc.InitialSec <= 0 || tc.IncrementSec < 0 {
		return JoinResult{}, arena.E(arena.ValidationRejected, "invalid time control %s", tc)
	}
	if rng.Min > rng.Max {
		return JoinResult{}, arena.E(arena.ValidationRejected, "rating range min %d exceeds max %d", rng.Min, rng.Max)
	}

	if _, err := m.db.GetUser(ctx, userID); err != nil {
		return JoinResult{}, err
	}
	ur, err := m.db.UserRating(ctx, userID, gameType)
	if err != nil {
		return JoinResult{}, arena.Wrap(arena.TransientFailure, err, "loading rating for %s", userID)
	}

	entry := &models.QueueEntry{
		ID:          uuid.New(),
		UserID:      userID,
		GameType:    gameType,
		TimeControl: tc,
		Range:       rng,
		Rating:      ur.Rating,
		JoinedAt:    m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(userID)

	for {
		q := m.queues[gameType]
		idx := -1
		for i, cand := range q {
			if compatible(entry, cand) {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}
		cand := q[idx]
		m.queues[gameType] = append(append([]*models.QueueEntry{}, q[:idx]...), q[idx+1:]...)
		delete(m.byUser, cand.UserID)

		sess, err := m.creator.CreateMatch(ctx, cand, entry)
		if err == nil {
			return JoinResult{Matched: sess}, nil
		}
		if arena.Retryable(err) {
			// Compensating action: the pair was never matched. The
			// candidate keeps its seniority at the front, the joiner
			// queues behind it.
			m.insertFrontLocked(cand, entry)
			m.log.WithError(err).Warn("match creation failed; both entries re-enqueued")
			return JoinResult{Queued: m.statusLocked(entry)}, nil
		}
		// The candidate's user is gone or otherwise unmatchable. Drop it
		// and keep scanning.
		m.log.WithError(err).WithField("user", cand.UserID).Warn("dropping unmatchable queue entry")
	}

	m.queues[gameType] = append(m.queues[gameType], entry)
	m.byUser[userID] = entry
	return JoinResult{Queued: m.statusLocked(entry)}, nil
}

// Leave removes the user's entry, if any. Advisory and immediate: a
// match that already committed wins over a late leave.
func (m *Manager) Leave(userID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(userID)
}

// Status reports the user's current queue position.
func (m *Manager) Status(userID uuid.UUID) (QueuedStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.byUser[userID]
	if !ok {
		return QueuedStatus{}, false
	}
	return *m.statusLocked(entry), true
}

// SweepOnce runs one background pass: pairwise matching per queue until
// no compatible pairs remain, then eviction of entries older than the
// queue timeout, each evicted user notified.
func (m *Manager) SweepOnce(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for gameType := range m.queues {
		m.matchQueueLocked(ctx, gameType)
	}
	m.evictLocked()
}

func (m *Manager) matchQueueLocked(ctx context.Context, gameType string) {
	for {
		q := m.queues[gameType]
		i, j, ok := findPair(q)
		if !ok {
			return
		}
		a, b := q[i], q[j]
		rest := append(append([]*models.QueueEntry{}, q[:i]...), q[i+1:j]...)
		m.queues[gameType] = append(rest, q[j+1:]...)
		delete(m.byUser, a.UserID)
		delete(m.byUser, b.UserID)

		_, err := m.creator.CreateMatch(ctx, a, b)
		if err == nil {
			continue
		}
		if arena.Retryable(err) {
			m.insertFrontLocked(a, b)
			m.log.WithError(err).Warn("match creation failed during sweep; pair re-enqueued")
			return
		}
		// One side of the pair is unusable. Keep whichever entry still
		// resolves to a user, so a vanished account does not take its
		// partner out of the queue with it.
		var keep []*models.QueueEntry
		for _, entry := range []*models.QueueEntry{a, b} {
			if _, lookupErr := m.db.GetUser(ctx, entry.UserID); lookupErr != nil {
				m.log.WithError(err).WithField("user", entry.UserID).Warn("dropping unmatchable queue entry during sweep")
				continue
			}
			keep = append(keep, entry)
		}
		if len(keep) == 2 {
			// The failure is not attributable to either entry; drop the
			// pair rather than re-select it every pass.
			m.log.WithError(err).Warn("dropping unmatchable pair during sweep")
			continue
		}
		m.insertFrontLocked(keep...)
	}
}

func (m *Manager) evictLocked() {
	cutoff := m.now().Add(-m.maxAge)
	for gameType, q := range m.queues {
		kept := q[:0]
		for _, entry := range q {
			if entry.JoinedAt.After(cutoff) {
				kept = append(kept, entry)
				continue
			}
			delete(m.byUser, entry.UserID)
			m.hub.Notify(entry.UserID, arena.EventQueueExpired, map[string]interface{}{
				"game_type":    gameType,
				"time_control": entry.TimeControl.String(),
			})
			m.log.WithFields(logrus.Fields{
				"user":      entry.UserID,
				"game_type": gameType,
			}).Info("queue entry expired")
		}
		m.queues[gameType] = kept
	}
}

// findPair returns the indexes of the first mutually compatible pair in
// insertion order, oldest entry first.
func findPair(q []*models.QueueEntry) (int, int, bool) {
	for i := 0; i < len(q); i++ {
		for j := i + 1; j < len(q); j++ {
			if compatible(q[i], q[j]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// compatible requires an exact time-control match and mutual rating
// acceptance: each rating falls inside the other's declared range.
func compatible(a, b *models.QueueEntry) bool {
	return a.UserID != b.UserID &&
		a.GameType == b.GameType &&
		a.TimeControl == b.TimeControl &&
		a.Range.Contains(b.Rating) &&
		b.Range.Contains(a.Rating)
}

func (m *Manager) removeLocked(userID uuid.UUID) bool {
	entry, ok := m.byUser[userID]
	if !ok {
		return false
	}
	delete(m.byUser, userID)
	q := m.queues[entry.GameType]
	for i, e := range q {
		if e.ID == entry.ID {
			m.queues[entry.GameType] = append(q[:i], q[i+1:]...)
			break
		}
	}
	return true
}

func (m *Manager) insertFrontLocked(entries ...*models.QueueEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		m.queues[e.GameType] = append([]*models.QueueEntry{e}, m.queues[e.GameType]...)
		m.byUser[e.UserID] = e
	}
}

func (m *Manager) statusLocked(entry *models.QueueEntry) *QueuedStatus {
	position := 0
	for i, e := range m.queues[entry.GameType] {
		if e.ID == entry.ID {
			position = i + 1
			break
		}
	}
	return &QueuedStatus{
		EntryID:  entry.ID,
		GameType: entry.GameType,
		Position: position,
		// A rough estimate: every scheduler tick can clear one spot.
		ETASeconds: position * int(m.tick/time.Second),
	}
}
