package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/database"
	"github.com/knightwatch/arena/internal/game"
	"github.com/knightwatch/arena/internal/match"
	"github.com/knightwatch/arena/internal/models"
	"github.com/knightwatch/arena/internal/rating"
	"github.com/knightwatch/arena/internal/rules"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events map[string]int
}

func (f *fakeNotifier) Notify(_ uuid.UUID, event string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = make(map[string]int)
	}
	f.events[event]++
}

func (f *fakeNotifier) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[event]
}

type queueFixture struct {
	manager  *Manager
	engine   *game.Engine
	registry *game.Store
	store    *database.MemStore
	hub      *fakeNotifier
	now      time.Time
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	store := database.NewMemStore()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	hub := &fakeNotifier{}
	registry := game.NewStore()
	engine := game.NewEngine(registry, store, rules.NewChessAdapter(), rating.NewEngine(store, log), hub, log)
	creator := match.NewCreator(store, engine, hub, log)

	f := &queueFixture{
		manager:  NewManager(store, creator, hub, log),
		engine:   engine,
		registry: registry,
		store:    store,
		hub:      hub,
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.manager.now = func() time.Time { return f.now }
	return f
}

func (f *queueFixture) seedUser(t *testing.T, rating int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.store.SeedUser(&models.User{ID: id, Email: id.String() + "@example.com"})
	f.store.SeedRating(models.UserRating{UserID: id, GameType: "standard", Rating: rating})
	return id
}

func tenPlusZero() models.TimeControl {
	return models.TimeControl{InitialSec: 600, IncrementSec: 0}
}

func plusMinus(rating, width int) models.RatingRange {
	return models.RatingRange{Min: rating - width, Max: rating + width}
}

func TestJoinValidation(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, 1200)

	_, err := f.manager.Join(ctx, alice, "standard", tenPlusZero(), models.RatingRange{Min: 1400, Max: 1000})
	assert.True(t, arena.IsCode(err, arena.ValidationRejected), "min above max")

	_, err = f.manager.Join(ctx, alice, "standard", models.TimeControl{}, plusMinus(1200, 200))
	assert.True(t, arena.IsCode(err, arena.ValidationRejected), "empty time control")

	_, err = f.manager.Join(ctx, uuid.New(), "standard", tenPlusZero(), plusMinus(1200, 200))
	assert.True(t, arena.IsCode(err, arena.NotFound), "unknown user")
}

func TestImmediateMatchForCompatiblePair(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, 1200)
	bob := f.seedUser(t, 1200)

	res, err := f.manager.Join(ctx, alice, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)
	require.NotNil(t, res.Queued)
	assert.Equal(t, 1, res.Queued.Position)
	assert.Equal(t, 5, res.Queued.ETASeconds)

	res, err = f.manager.Join(ctx, bob, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)
	require.NotNil(t, res.Matched, "mutually compatible pair matches immediately")
	assert.Equal(t, models.StatusActive, res.Matched.Status)

	v, err := f.engine.Get(res.Matched.ID)
	require.NoError(t, err)
	seen := map[uuid.UUID]bool{*v.White.UserID: true, *v.Black.UserID: true}
	assert.True(t, seen[alice] && seen[bob])

	_, ok := f.manager.Status(alice)
	assert.False(t, ok, "matched users leave the queue")
	_, ok = f.manager.Status(bob)
	assert.False(t, ok)
}

func TestJoinReplacesExistingEntry(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, 1200)

	_, err := f.manager.Join(ctx, alice, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)
	_, err = f.manager.Join(ctx, alice, "blitz", models.TimeControl{InitialSec: 180, IncrementSec: 2}, plusMinus(1200, 200))
	require.NoError(t, err)

	st, ok := f.manager.Status(alice)
	require.True(t, ok)
	assert.Equal(t, "blitz", st.GameType, "one entry per user across all queues")
	assert.Equal(t, 1, st.Position)

	assert.Empty(t, f.manager.queues["standard"], "old entry removed from its queue")
}

func TestNonOverlappingRangesNeverMatchAndExpire(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	strong := f.seedUser(t, 1800)
	weak := f.seedUser(t, 800)

	_, err := f.manager.Join(ctx, strong, "standard", tenPlusZero(), models.RatingRange{Min: 1700, Max: 1900})
	require.NoError(t, err)
	res, err := f.manager.Join(ctx, weak, "standard", tenPlusZero(), models.RatingRange{Min: 400, Max: 2400})
	require.NoError(t, err)
	require.NotNil(t, res.Queued, "one-sided compatibility is not enough")

	f.manager.SweepOnce(ctx)
	_, ok := f.manager.Status(strong)
	assert.True(t, ok, "still waiting, not evicted yet")

	f.now = f.now.Add(11 * time.Minute)
	f.manager.SweepOnce(ctx)

	_, ok = f.manager.Status(strong)
	assert.False(t, ok)
	_, ok = f.manager.Status(weak)
	assert.False(t, ok)
	assert.Equal(t, 2, f.hub.count(arena.EventQueueExpired))
}

func TestFirstCompatibleCandidateWins(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	first := f.seedUser(t, 1250)
	second := f.seedUser(t, 1250)
	joiner := f.seedUser(t, 1200)

	// Non-overlapping pair so the two waiters never match each other.
	_, err := f.manager.Join(ctx, first, "standard", tenPlusZero(), models.RatingRange{Min: 1100, Max: 1200})
	require.NoError(t, err)
	_, err = f.manager.Join(ctx, second, "standard", tenPlusZero(), models.RatingRange{Min: 1100, Max: 1200})
	require.NoError(t, err)

	res, err := f.manager.Join(ctx, joiner, "standard", tenPlusZero(), plusMinus(1200, 100))
	require.NoError(t, err)
	require.NotNil(t, res.Matched)

	v, err := f.engine.Get(res.Matched.ID)
	require.NoError(t, err)
	seen := map[uuid.UUID]bool{*v.White.UserID: true, *v.Black.UserID: true}
	assert.True(t, seen[first], "oldest compatible entry is selected")
	assert.False(t, seen[second])

	st, ok := f.manager.Status(second)
	require.True(t, ok)
	assert.Equal(t, 1, st.Position)
}

func TestLeaveQueue(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, 1200)

	_, err := f.manager.Join(ctx, alice, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)

	assert.True(t, f.manager.Leave(alice))
	assert.False(t, f.manager.Leave(alice), "second leave finds nothing")
	_, ok := f.manager.Status(alice)
	assert.False(t, ok)
}

func TestFailedMatchReEnqueuesBothInOrder(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, 1200)
	bob := f.seedUser(t, 1200)

	_, err := f.manager.Join(ctx, alice, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)

	f.store.FailNext("create_match", arena.E(arena.TransientFailure, "db down"))
	res, err := f.manager.Join(ctx, bob, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)
	require.NotNil(t, res.Queued, "a failed match never counts as matched")

	st, ok := f.manager.Status(alice)
	require.True(t, ok)
	assert.Equal(t, 1, st.Position, "candidate keeps its seniority")
	st, ok = f.manager.Status(bob)
	require.True(t, ok)
	assert.Equal(t, 2, st.Position)

	// The store recovered; the next sweep pairs them.
	f.manager.SweepOnce(ctx)
	_, ok = f.manager.Status(alice)
	assert.False(t, ok)
	_, ok = f.manager.Status(bob)
	assert.False(t, ok)
	assert.Len(t, f.registry.All(), 1)
}

func TestSweepKeepsPartnerOfVanishedUser(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, 1200)
	bob := f.seedUser(t, 1200)

	_, err := f.manager.Join(ctx, alice, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)

	f.store.FailNext("create_match", arena.E(arena.TransientFailure, "db down"))
	res, err := f.manager.Join(ctx, bob, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)
	require.NotNil(t, res.Queued, "pair re-enqueued after the transient failure")

	// Alice's account disappears before the sweep retries the pair.
	f.store.RemoveUser(alice)
	f.manager.SweepOnce(ctx)

	_, ok := f.manager.Status(alice)
	assert.False(t, ok, "vanished user's entry is dropped")
	st, ok := f.manager.Status(bob)
	require.True(t, ok, "partner stays queued")
	assert.Equal(t, 1, st.Position, "and moves up to the front")
	assert.Empty(t, f.registry.All(), "no session came out of the broken pair")
}

func TestQueueETAFollowsSchedulerInterval(t *testing.T) {
	f := newQueueFixture(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	NewScheduler(f.manager, 7*time.Second, log)

	alice := f.seedUser(t, 1200)
	res, err := f.manager.Join(context.Background(), alice, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)
	require.NotNil(t, res.Queued)
	assert.Equal(t, 7, res.Queued.ETASeconds)
}

func TestSchedulerTickIsSingleFlight(t *testing.T) {
	f := newQueueFixture(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	s := NewScheduler(f.manager, time.Second, log)

	alice := f.seedUser(t, 1200)
	_, err := f.manager.Join(context.Background(), alice, "standard", tenPlusZero(), plusMinus(1200, 200))
	require.NoError(t, err)
	f.now = f.now.Add(11 * time.Minute)

	s.running.Store(true)
	s.Tick(context.Background())
	_, ok := f.manager.Status(alice)
	assert.True(t, ok, "tick skipped while another is in flight")

	s.running.Store(false)
	s.Tick(context.Background())
	_, ok = f.manager.Status(alice)
	assert.False(t, ok, "next tick evicts the stale entry")
}

func TestSchedulerHookRuns(t *testing.T) {
	f := newQueueFixture(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	s := NewScheduler(f.manager, time.Second, log)

	ran := false
	s.AddHook(func(context.Context) { ran = true })
	s.Tick(context.Background())
	assert.True(t, ran)
}
