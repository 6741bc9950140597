// Package cache streams finished-session results onto a Redis list so
// downstream consumers (leaderboards, archival) can pick them up
// without touching the primary store. Publishing is best effort and
// never sits on the gameplay path.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultResultQueue is the Redis list results are pushed to.
const DefaultResultQueue = "arena_results"

// SessionResultRecord is the wire form of one finished session.
type SessionResultRecord struct {
	SessionID   uuid.UUID   `json:"session_id"`
	Event       string      `json:"event"`
	Payload     interface{} `json:"payload,omitempty"`
	PublishedAt int64       `json:"published_at"`
}

// Publisher wraps the Redis client used for the result stream.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

// Connect dials Redis and verifies the connection with a short ping.
func Connect(addr string, db int, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultResultQueue
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Publisher{rdb: rdb, queue: queue}, nil
}

// Publish pushes one record onto the result list.
func (p *Publisher) Publish(ctx context.Context, rec SessionResultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.rdb.RPush(ctx, p.queue, data).Err()
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

// Notifier is the downstream event sink a Tap forwards to.
type Notifier interface {
	Notify(userID uuid.UUID, event string, payload interface{})
}

// Tap forwards every event to the wrapped notifier unchanged and
// mirrors each session's end event onto the result stream exactly once.
// Notify may be called while a session lock is held, so the actual
// Redis write happens on a single drain goroutine.
type Tap struct {
	next      Notifier
	pub       *Publisher
	log       *logrus.Logger
	mirrorFor string

	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
	ch   chan SessionResultRecord
}

// NewTap builds a tap that mirrors events named mirrorFor.
func NewTap(next Notifier, pub *Publisher, mirrorFor string, log *logrus.Logger) *Tap {
	t := &Tap{
		next:      next,
		pub:       pub,
		log:       log,
		mirrorFor: mirrorFor,
		seen:      make(map[uuid.UUID]struct{}),
		ch:        make(chan SessionResultRecord, 256),
	}
	go t.drain()
	return t
}

// Notify implements the notifier interface consumed by the engine and
// the queue manager.
func (t *Tap) Notify(userID uuid.UUID, event string, payload interface{}) {
	t.next.Notify(userID, event, payload)
	if event != t.mirrorFor {
		return
	}
	sessionID, ok := sessionIDOf(payload)
	if !ok {
		return
	}

	t.mu.Lock()
	_, dup := t.seen[sessionID]
	if !dup {
		if len(t.seen) > 4096 {
			t.seen = make(map[uuid.UUID]struct{})
		}
		t.seen[sessionID] = struct{}{}
	}
	t.mu.Unlock()
	if dup {
		return
	}

	rec := SessionResultRecord{
		SessionID:   sessionID,
		Event:       event,
		Payload:     payload,
		PublishedAt: time.Now().Unix(),
	}
	select {
	case t.ch <- rec:
	default:
		t.log.WithField("session", sessionID).Warn("result stream backlog full, record dropped")
	}
}

func (t *Tap) drain() {
	for rec := range t.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := t.pub.Publish(ctx, rec); err != nil {
			t.log.WithError(err).WithField("session", rec.SessionID).Warn("failed to publish session result")
		}
		cancel()
	}
}

func sessionIDOf(payload interface{}) (uuid.UUID, bool) {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return uuid.Nil, false
	}
	id, ok := m["session_id"].(uuid.UUID)
	return id, ok
}
