package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatOutcome is the actual score of one seat in a finished game,
// expressed in Elo terms.
type SeatOutcome float64

const (
	OutcomeWin  SeatOutcome = 1.0
	OutcomeDraw SeatOutcome = 0.5
	OutcomeLoss SeatOutcome = 0.0
)

// RatingRecord is the append-only audit row produced once per seat per
// finished rated session. It is written exactly once by settlement and
// never revised; Delta always equals RatingAfter - RatingBefore, with
// the 400 floor already applied.
type RatingRecord struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
	GameType  string    `json:"game_type"`

	RatingBefore   int     `json:"rating_before"`
	RatingAfter    int     `json:"rating_after"`
	Delta          int     `json:"delta"`
	OpponentRating int     `json:"opponent_rating"`
	Expected       float64 `json:"expected"`
	KFactor        int     `json:"k_factor"`

	Outcome   SeatOutcome `json:"outcome"`
	CreatedAt time.Time   `json:"created_at"`
}
