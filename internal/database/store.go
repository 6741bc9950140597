// Package database is the persistence collaborator for the matchmaking
// core: durable, transactional storage for sessions, seats, moves,
// rating records and per-game-type user ratings. The core assumes commit
// durability and propagates failures instead of masking them.
package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/knightwatch/arena/internal/models"
)

// Store is the transactional surface the core depends on. Multi-row
// methods commit atomically: either every row lands or none does.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// UserRating returns the user's rating row for a game type. A user
	// with no recorded games gets the default rating with zero counters.
	UserRating(ctx context.Context, userID uuid.UUID, gameType string) (models.UserRating, error)

	// CreateMatch persists a new session and its two seats in one unit.
	CreateMatch(ctx context.Context, sess *models.GameSession, white, black *models.Seat) error

	// CommitMove appends a move and updates the session's clocks, move
	// count, status and, for a terminal move, both seats' winner flags
	// in one unit.
	CommitMove(ctx context.Context, sess *models.GameSession, white, black *models.Seat, mv *models.Move) error

	// UpdateSession rewrites the session row and both seats' result
	// fields. Used for terminal transitions without a move (resignation,
	// timeout, mutual draw).
	UpdateSession(ctx context.Context, sess *models.GameSession, white, black *models.Seat) error

	// Settle applies a rated result: both users' ratings and
	// won/lost/drawn counters, one rating record per human seat, the
	// seats' rating_after, and the session's flip to finished, all in
	// one unit.
	Settle(ctx context.Context, sess *models.GameSession, white, black *models.Seat, records []models.RatingRecord) error
}
