package rating

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/database"
	"github.com/knightwatch/arena/internal/models"
)

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1200, 1200), 1e-9)
	assert.InDelta(t, 0.909, ExpectedScore(1600, 1200), 0.001)
	assert.InDelta(t, 0.091, ExpectedScore(1200, 1600), 0.001)
	// Symmetry: expectations of both sides sum to 1.
	assert.InDelta(t, 1.0, ExpectedScore(1432, 987)+ExpectedScore(987, 1432), 1e-9)
}

func TestKFactorTiers(t *testing.T) {
	assert.Equal(t, 40, KFactor(0))
	assert.Equal(t, 40, KFactor(29))
	assert.Equal(t, 32, KFactor(30))
	assert.Equal(t, 32, KFactor(99))
	assert.Equal(t, 24, KFactor(100))
	assert.Equal(t, 24, KFactor(5000))
}

func TestDeltaRounding(t *testing.T) {
	// 40 * (1 - 0.5) = 20
	assert.Equal(t, 20, Delta(40, 1.0, 0.5))
	// 40 * (0 - 0.5) = -20
	assert.Equal(t, -20, Delta(40, 0.0, 0.5))
	// Equal ratings drawing cancel exactly.
	assert.Equal(t, 0, Delta(32, 0.5, 0.5))
}

func TestApplyFloor(t *testing.T) {
	assert.Equal(t, 1180, Apply(1200, -20))
	assert.Equal(t, RatingFloor, Apply(405, -20))
	assert.Equal(t, RatingFloor, Apply(RatingFloor, -1))
	assert.Equal(t, 3020, Apply(3000, 20), "no ceiling")
}

func newSettleFixture(t *testing.T, whiteRating, blackRating int) (*Engine, *database.MemStore, *models.GameSession, *models.Seat, *models.Seat) {
	t.Helper()
	store := database.NewMemStore()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	whiteID, blackID := uuid.New(), uuid.New()
	store.SeedRating(models.UserRating{UserID: whiteID, GameType: "standard", Rating: whiteRating})
	store.SeedRating(models.UserRating{UserID: blackID, GameType: "standard", Rating: blackRating})

	sess := &models.GameSession{
		ID:       uuid.New(),
		GameType: "standard",
		Rated:    true,
		Status:   models.StatusPendingSettlement,
	}
	white := &models.Seat{ID: uuid.New(), SessionID: sess.ID, UserID: &whiteID, Color: models.White, RatingBefore: whiteRating}
	black := &models.Seat{ID: uuid.New(), SessionID: sess.ID, UserID: &blackID, Color: models.Black, RatingBefore: blackRating}

	require.NoError(t, store.CreateMatch(context.Background(), sess, white, black))
	return NewEngine(store, log), store, sess, white, black
}

func TestSettleWinLoss(t *testing.T) {
	e, store, sess, white, black := newSettleFixture(t, 1200, 1200)
	sess.Result = models.ResultWhiteWins

	require.NoError(t, e.Settle(context.Background(), sess, white, black))

	assert.Equal(t, models.StatusFinished, sess.Status)
	require.NotNil(t, white.RatingAfter)
	require.NotNil(t, black.RatingAfter)
	assert.Equal(t, 1220, *white.RatingAfter, "provisional K=40, expected 0.5")
	assert.Equal(t, 1180, *black.RatingAfter)

	records := store.Records()
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, rec.Delta, rec.RatingAfter-rec.RatingBefore)
		assert.Equal(t, 40, rec.KFactor)
	}

	wr, err := store.UserRating(context.Background(), *white.UserID, "standard")
	require.NoError(t, err)
	assert.Equal(t, 1220, wr.Rating)
	assert.Equal(t, 1, wr.GamesWon)
	assert.Equal(t, 1, wr.GamesPlayed())

	br, err := store.UserRating(context.Background(), *black.UserID, "standard")
	require.NoError(t, err)
	assert.Equal(t, 1, br.GamesLost)
	assert.Equal(t, 1, br.GamesPlayed())
}

func TestSettleEqualDrawIsZero(t *testing.T) {
	e, store, sess, white, black := newSettleFixture(t, 1200, 1200)
	sess.Result = models.ResultDraw

	require.NoError(t, e.Settle(context.Background(), sess, white, black))

	assert.Equal(t, 1200, *white.RatingAfter)
	assert.Equal(t, 1200, *black.RatingAfter)
	for _, rec := range store.Records() {
		assert.Zero(t, rec.Delta)
		assert.Equal(t, models.OutcomeDraw, rec.Outcome)
	}
}

func TestSettleRespectsFloor(t *testing.T) {
	e, store, sess, white, black := newSettleFixture(t, 405, 1400)
	sess.Result = models.ResultBlackWins

	require.NoError(t, e.Settle(context.Background(), sess, white, black))

	assert.Equal(t, RatingFloor, *white.RatingAfter)
	records := store.Records()
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, rec.Delta, rec.RatingAfter-rec.RatingBefore, "floor must not break the delta invariant")
	}
}

func TestSettleFailureLeavesStateUntouched(t *testing.T) {
	e, store, sess, white, black := newSettleFixture(t, 1200, 1200)
	sess.Result = models.ResultWhiteWins
	store.FailNext("settle", arena.E(arena.TransientFailure, "db down"))

	err := e.Settle(context.Background(), sess, white, black)
	require.Error(t, err)
	assert.True(t, arena.Retryable(err))

	assert.Equal(t, models.StatusPendingSettlement, sess.Status)
	assert.Nil(t, white.RatingAfter)
	assert.Empty(t, store.Records())

	// The retry completes exactly once.
	require.NoError(t, e.Settle(context.Background(), sess, white, black))
	assert.Len(t, store.Records(), 2)
	assert.Equal(t, models.StatusFinished, sess.Status)
}

func TestSettleRejectsUnratedAndMalformed(t *testing.T) {
	e, _, sess, white, black := newSettleFixture(t, 1200, 1200)
	sess.Result = models.ResultWhiteWins

	unrated := *sess
	unrated.Rated = false
	assert.True(t, arena.IsCode(e.Settle(context.Background(), &unrated, white, black), arena.InvalidState))

	sameColor := *black
	sameColor.Color = models.White
	assert.True(t, arena.IsCode(e.Settle(context.Background(), sess, white, &sameColor), arena.Fatal))

	bot := *black
	bot.UserID = nil
	assert.True(t, arena.IsCode(e.Settle(context.Background(), sess, white, &bot), arena.Fatal))
}
