package models

import (
	"time"

	"github.com/google/uuid"
)

// Move is one committed half-move. Rows are append-only: once a move is
// committed it is never mutated or deleted. Number is the chess fullmove
// number, so white's and black's Nth moves share it.
type Move struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	SeatID    uuid.UUID `json:"seat_id"`
	Color     Color     `json:"color"`
	Number    int       `json:"number"`

	Notation string `json:"notation"`
	Position string `json:"position"`

	IsCheck    bool `json:"is_check"`
	IsTerminal bool `json:"is_terminal"`

	TimeSpentMs     int64     `json:"time_spent_ms"`
	TimeRemainingMs int64     `json:"time_remaining_ms"`
	PlayedAt        time.Time `json:"played_at"`
}
