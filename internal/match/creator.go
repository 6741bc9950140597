// Package match turns two compatible queue entries into a live session.
// Creation is all-or-nothing: the session and both seats persist in one
// unit, and a persistence failure reports TransientFailure so the queue
// can re-enqueue both entries. A session that did not durably commit is
// never handed to the engine.
package match

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/database"
	"github.com/knightwatch/arena/internal/game"
	"github.com/knightwatch/arena/internal/models"
)

// Notifier delivers the session_start event to the matched users.
type Notifier interface {
	Notify(userID uuid.UUID, event string, payload interface{})
}

// Creator builds sessions from matched pairs.
type Creator struct {
	db     database.Store
	engine *game.Engine
	hub    Notifier
	log    *logrus.Logger

	now  func() time.Time
	flip func() bool
}

func NewCreator(db database.Store, engine *game.Engine, hub Notifier, log *logrus.Logger) *Creator {
	return &Creator{
		db:     db,
		engine: engine,
		hub:    hub,
		log:    log,
		now:    time.Now,
		flip:   coinFlip,
	}
}

// coinFlip draws one unbiased bit for color assignment.
func coinFlip() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to the clock's low bit rather than refuse matches.
		return time.Now().UnixNano()&1 == 1
	}
	return b[0]&1 == 1
}

// CreateMatch verifies both users, flips for colors, persists the
// session with both seats atomically, registers it with the engine and
// notifies both players. On persistence failure nothing is registered
// and the entries remain unmatched.
func (c *Creator) CreateMatch(ctx context.Context, a, b *models.QueueEntry) (*models.GameSession, error) {
	if a.UserID == b.UserID {
		return nil, arena.E(arena.Fatal, "attempted self-match for user %s", a.UserID)
	}

	userA, err := c.db.GetUser(ctx, a.UserID)
	if err != nil {
		return nil, err
	}
	userB, err := c.db.GetUser(ctx, b.UserID)
	if err != nil {
		return nil, err
	}

	ratingA, err := c.db.UserRating(ctx, userA.ID, a.GameType)
	if err != nil {
		return nil, arena.Wrap(arena.TransientFailure, err, "loading rating for %s", userA.ID)
	}
	ratingB, err := c.db.UserRating(ctx, userB.ID, b.GameType)
	if err != nil {
		return nil, arena.Wrap(arena.TransientFailure, err, "loading rating for %s", userB.ID)
	}

	whiteID, whiteRating := userA.ID, ratingA.Rating
	blackID, blackRating := userB.ID, ratingB.Rating
	if c.flip() {
		whiteID, blackID = blackID, whiteID
		whiteRating, blackRating = blackRating, whiteRating
	}

	now := c.now()
	sess := &models.GameSession{
		ID:          uuid.New(),
		GameType:    a.GameType,
		TimeControl: a.TimeControl,
		Rated:       true,
		Status:      models.StatusActive,
		WhiteClock:  models.Clock{RemainingMs: a.TimeControl.InitialMs(), IncrementMs: a.TimeControl.IncrementMs()},
		BlackClock:  models.Clock{RemainingMs: a.TimeControl.InitialMs(), IncrementMs: a.TimeControl.IncrementMs()},
		CreatedAt:   now,
		StartedAt:   now,
	}
	white := &models.Seat{ID: uuid.New(), SessionID: sess.ID, UserID: &whiteID, Color: models.White, RatingBefore: whiteRating}
	black := &models.Seat{ID: uuid.New(), SessionID: sess.ID, UserID: &blackID, Color: models.Black, RatingBefore: blackRating}

	if err := c.db.CreateMatch(ctx, sess, white, black); err != nil {
		return nil, arena.Wrap(arena.TransientFailure, err, "persisting match for %s vs %s", userA.ID, userB.ID)
	}

	c.engine.Register(sess, white, black)
	c.announce(sess, white, blackRating)
	c.announce(sess, black, whiteRating)

	c.log.WithFields(logrus.Fields{
		"session":   sess.ID,
		"game_type": sess.GameType,
		"white":     whiteID,
		"black":     blackID,
	}).Info("match created")
	return sess, nil
}

// CreateBotMatch seats a user against a non-human opponent. Bot games
// are never rated and the bot seat carries no user id.
func (c *Creator) CreateBotMatch(ctx context.Context, userID uuid.UUID, gameType string, tc models.TimeControl) (*models.GameSession, error) {
	user, err := c.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rating, err := c.db.UserRating(ctx, user.ID, gameType)
	if err != nil {
		return nil, arena.Wrap(arena.TransientFailure, err, "loading rating for %s", user.ID)
	}

	now := c.now()
	sess := &models.GameSession{
		ID:          uuid.New(),
		GameType:    gameType,
		TimeControl: tc,
		Rated:       false,
		Status:      models.StatusActive,
		WhiteClock:  models.Clock{RemainingMs: tc.InitialMs(), IncrementMs: tc.IncrementMs()},
		BlackClock:  models.Clock{RemainingMs: tc.InitialMs(), IncrementMs: tc.IncrementMs()},
		CreatedAt:   now,
		StartedAt:   now,
	}
	white := &models.Seat{ID: uuid.New(), SessionID: sess.ID, Color: models.White, RatingBefore: models.DefaultRating}
	black := &models.Seat{ID: uuid.New(), SessionID: sess.ID, Color: models.Black, RatingBefore: models.DefaultRating}
	if c.flip() {
		white.UserID, white.RatingBefore = &user.ID, rating.Rating
	} else {
		black.UserID, black.RatingBefore = &user.ID, rating.Rating
	}

	if err := c.db.CreateMatch(ctx, sess, white, black); err != nil {
		return nil, arena.Wrap(arena.TransientFailure, err, "persisting bot match for %s", user.ID)
	}

	c.engine.Register(sess, white, black)
	human := white
	if !white.Human() {
		human = black
	}
	c.announce(sess, human, models.DefaultRating)
	return sess, nil
}

func (c *Creator) announce(sess *models.GameSession, seat *models.Seat, opponentRating int) {
	if !seat.Human() {
		return
	}
	c.hub.Notify(*seat.UserID, arena.EventSessionStart, map[string]interface{}{
		"session_id":      sess.ID,
		"game_type":       sess.GameType,
		"time_control":    sess.TimeControl.String(),
		"rated":           sess.Rated,
		"color":           seat.Color,
		"opponent_rating": opponentRating,
	})
}
