package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeControl describes a session's clock: initial time per side plus a
// per-move increment. Matching requires exact equality on both fields.
type TimeControl struct {
	InitialSec   int `json:"initial_sec"`
	IncrementSec int `json:"increment_sec"`
}

// ParseTimeControl parses the conventional "minutes+increment" notation,
// e.g. "10+0" or "3+2".
func ParseTimeControl(s string) (TimeControl, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "+", 2)
	if len(parts) != 2 {
		return TimeControl{}, fmt.Errorf("invalid time control %q", s)
	}
	mins, err := strconv.Atoi(parts[0])
	if err != nil || mins <= 0 {
		return TimeControl{}, fmt.Errorf("invalid time control minutes %q", parts[0])
	}
	inc, err := strconv.Atoi(parts[1])
	if err != nil || inc < 0 {
		return TimeControl{}, fmt.Errorf("invalid time control increment %q", parts[1])
	}
	return TimeControl{InitialSec: mins * 60, IncrementSec: inc}, nil
}

// String renders the control back to "minutes+increment" form.
func (tc TimeControl) String() string {
	return fmt.Sprintf("%d+%d", tc.InitialSec/60, tc.IncrementSec)
}

// InitialMs is the starting clock budget per side in milliseconds.
func (tc TimeControl) InitialMs() int64 {
	return int64(tc.InitialSec) * 1000
}

// IncrementMs is the per-move increment in milliseconds.
func (tc TimeControl) IncrementMs() int64 {
	return int64(tc.IncrementSec) * 1000
}

// RatingRange is the symmetric acceptance window a queued user declares
// for an opponent's rating.
type RatingRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether rating falls inside the window, inclusive.
func (r RatingRange) Contains(rating int) bool {
	return rating >= r.Min && rating <= r.Max
}

// QueueEntry is one user's waiting registration in a game-type queue.
// A user holds at most one entry across all queues at any time; the
// queue manager enforces that invariant on join.
type QueueEntry struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	GameType    string      `json:"game_type"`
	TimeControl TimeControl `json:"time_control"`
	Range       RatingRange `json:"range"`

	// Rating is the user's rating for GameType, snapshotted at join time
	// and used for mutual-range compatibility checks.
	Rating   int       `json:"rating"`
	JoinedAt time.Time `json:"joined_at"`
}
