package models

import (
	"time"

	"github.com/google/uuid"
)

// Color identifies a seat's side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// GameStatus is a session's lifecycle state. Waiting exists only
// momentarily before match creation flips the session active;
// PendingSettlement is the recoverable sub-state between a terminal
// trigger on a rated session and its completed rating settlement.
type GameStatus string

const (
	StatusWaiting           GameStatus = "waiting"
	StatusActive            GameStatus = "active"
	StatusPendingSettlement GameStatus = "pending_settlement"
	StatusFinished          GameStatus = "finished"
	StatusAborted           GameStatus = "aborted"
	StatusAbandoned         GameStatus = "abandoned"
)

// Terminal reports whether the status is an irreversible outcome.
// PendingSettlement is terminal for gameplay purposes: no further moves
// are accepted, only the settlement retry may touch the session.
func (s GameStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusAborted, StatusAbandoned, StatusPendingSettlement:
		return true
	}
	return false
}

// GameResult is the outcome of a finished session.
type GameResult string

const (
	ResultWhiteWins GameResult = "white_wins"
	ResultBlackWins GameResult = "black_wins"
	ResultDraw      GameResult = "draw"
)

// WinnerFor maps a winning color to its result.
func WinnerFor(c Color) GameResult {
	if c == White {
		return ResultWhiteWins
	}
	return ResultBlackWins
}

// Result reasons recorded on terminal transitions.
const (
	ReasonCheckmate   = "checkmate"
	ReasonStalemate   = "stalemate"
	ReasonDrawRule    = "draw_rule"
	ReasonTimeout     = "timeout"
	ReasonResignation = "resignation"
	ReasonMutualDraw  = "mutual_agreement"
)

// Clock is one seat's remaining budget. RemainingMs never goes negative;
// hitting zero forces a timeout transition.
type Clock struct {
	RemainingMs int64 `json:"remaining_ms"`
	IncrementMs int64 `json:"increment_ms"`
}

// GameSession is the persisted record of a two-seat game. It is owned
// exclusively by the session engine and mutated only through its
// transition operations.
type GameSession struct {
	ID          uuid.UUID   `json:"id"`
	GameType    string      `json:"game_type"`
	TimeControl TimeControl `json:"time_control"`
	Rated       bool        `json:"rated"`

	Status       GameStatus `json:"status"`
	Result       GameResult `json:"result,omitempty"`
	ResultReason string     `json:"result_reason,omitempty"`
	MoveCount    int        `json:"move_count"`

	WhiteClock Clock `json:"white_clock"`
	BlackClock Clock `json:"black_clock"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// ClockFor returns the clock of the given side.
func (g *GameSession) ClockFor(c Color) Clock {
	if c == White {
		return g.WhiteClock
	}
	return g.BlackClock
}

// SetClock replaces the clock of the given side.
func (g *GameSession) SetClock(c Color, cl Clock) {
	if c == White {
		g.WhiteClock = cl
	} else {
		g.BlackClock = cl
	}
}

// Seat is one of the two participant slots of a session. UserID is nil
// for a non-human participant. RatingAfter and IsWinner stay nil until
// settlement and result respectively; IsWinner is nil for a draw.
type Seat struct {
	ID        uuid.UUID  `json:"id"`
	SessionID uuid.UUID  `json:"session_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Color     Color      `json:"color"`

	RatingBefore int   `json:"rating_before"`
	RatingAfter  *int  `json:"rating_after,omitempty"`
	IsWinner     *bool `json:"is_winner,omitempty"`
}

// Human reports whether the seat is bound to a real user.
func (s *Seat) Human() bool { return s.UserID != nil }
