package rating

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/database"
	"github.com/knightwatch/arena/internal/models"
)

// Engine settles rated sessions against the persistence collaborator.
type Engine struct {
	store database.Store
	log   *logrus.Logger
}

// NewEngine builds a settlement engine.
func NewEngine(store database.Store, log *logrus.Logger) *Engine {
	return &Engine{store: store, log: log}
}

func outcomes(result models.GameResult) (white, black models.SeatOutcome, err error) {
	switch result {
	case models.ResultWhiteWins:
		return models.OutcomeWin, models.OutcomeLoss, nil
	case models.ResultBlackWins:
		return models.OutcomeLoss, models.OutcomeWin, nil
	case models.ResultDraw:
		return models.OutcomeDraw, models.OutcomeDraw, nil
	}
	return 0, 0, arena.E(arena.Fatal, "settling session without a result: %q", result)
}

// Settle computes both seats' rating changes from the session result and
// commits them in one unit: new ratings, won/lost/drawn counters, one
// RatingRecord per seat, and the session's transition to finished. The
// passed structs are only mutated after the commit succeeds, so a failed
// settlement leaves the caller's state untouched for retry.
func (e *Engine) Settle(ctx context.Context, sess *models.GameSession, white, black *models.Seat) error {
	if !sess.Rated {
		return arena.E(arena.InvalidState, "session %s is not rated", sess.ID)
	}
	if white.Color == black.Color {
		return arena.E(arena.Fatal, "session %s has two %s seats", sess.ID, white.Color)
	}
	if !white.Human() || !black.Human() {
		return arena.E(arena.Fatal, "rated session %s has a non-human seat", sess.ID)
	}

	whiteOutcome, blackOutcome, err := outcomes(sess.Result)
	if err != nil {
		return err
	}

	whiteRow, err := e.store.UserRating(ctx, *white.UserID, sess.GameType)
	if err != nil {
		return arena.Wrap(arena.TransientFailure, err, "loading white rating")
	}
	blackRow, err := e.store.UserRating(ctx, *black.UserID, sess.GameType)
	if err != nil {
		return arena.Wrap(arena.TransientFailure, err, "loading black rating")
	}

	now := time.Now().UTC()
	records := []models.RatingRecord{
		buildRecord(sess, white, whiteRow, blackRow.Rating, whiteOutcome, now),
		buildRecord(sess, black, blackRow, whiteRow.Rating, blackOutcome, now),
	}

	sCopy, wCopy, bCopy := *sess, *white, *black
	sCopy.Status = models.StatusFinished
	wCopy.RatingAfter = intPtr(records[0].RatingAfter)
	bCopy.RatingAfter = intPtr(records[1].RatingAfter)

	if err := e.store.Settle(ctx, &sCopy, &wCopy, &bCopy, records); err != nil {
		return arena.Wrap(arena.TransientFailure, err, "persisting settlement for session %s", sess.ID)
	}

	*sess, *white, *black = sCopy, wCopy, bCopy
	e.log.WithFields(logrus.Fields{
		"session":     sess.ID,
		"result":      sess.Result,
		"white_delta": records[0].Delta,
		"black_delta": records[1].Delta,
	}).Info("ratings settled")
	return nil
}

func buildRecord(sess *models.GameSession, seat *models.Seat, row models.UserRating, oppRating int, outcome models.SeatOutcome, now time.Time) models.RatingRecord {
	expected := ExpectedScore(row.Rating, oppRating)
	k := KFactor(row.GamesPlayed())
	after := Apply(row.Rating, Delta(k, float64(outcome), expected))
	// Delta is recorded post-floor so after - before == delta always holds.
	delta := after - row.Rating
	return models.RatingRecord{
		ID:             uuid.New(),
		UserID:         *seat.UserID,
		SessionID:      sess.ID,
		GameType:       sess.GameType,
		RatingBefore:   row.Rating,
		RatingAfter:    after,
		Delta:          delta,
		OpponentRating: oppRating,
		Expected:       expected,
		KFactor:        k,
		Outcome:        outcome,
		CreatedAt:      now,
	}
}

func intPtr(v int) *int { return &v }
