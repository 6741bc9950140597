package models

import "github.com/google/uuid"

// User is the persisted account a seat binds to. Only the fields the
// matchmaking and rating core needs are modeled here; profile and social
// data belong to other services.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	IsEphemeral bool `json:"is_ephemeral"`
}

// UserRating is a user's standing for a single game type. GamesPlayed
// drives K-factor selection; the won/lost/drawn counters move in lockstep
// with rating settlement.
type UserRating struct {
	UserID     uuid.UUID `json:"user_id"`
	GameType   string    `json:"game_type"`
	Rating     int       `json:"rating"`
	GamesWon   int       `json:"games_won"`
	GamesLost  int       `json:"games_lost"`
	GamesDrawn int       `json:"games_drawn"`
}

// GamesPlayed is the total number of rated results recorded for this
// rating row.
func (r UserRating) GamesPlayed() int {
	return r.GamesWon + r.GamesLost + r.GamesDrawn
}

// DefaultRating is the rating a user starts at in every game type.
const DefaultRating = 1200
