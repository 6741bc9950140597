// Package rules is the boundary to the chess rules engine. The session
// core never implements legality or terminal detection itself; it calls
// through the Adapter interface, and non-human seats obtain replies
// through MoveSuggester.
package rules

import (
	"context"
	"time"

	"github.com/knightwatch/arena/internal/models"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// MoveResult describes the board after a legal move was applied.
type MoveResult struct {
	// Position is the FEN of the resulting position.
	Position string
	// Notation is the canonical SAN of the applied move.
	Notation string

	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	// IsDraw covers draws by rule: threefold repetition, fifty moves,
	// insufficient material. Stalemate is reported separately.
	IsDraw bool

	// SideToMove is the color to move in the resulting position.
	SideToMove models.Color
}

// Terminal reports whether the move ended the game.
func (r *MoveResult) Terminal() bool {
	return r.IsCheckmate || r.IsStalemate || r.IsDraw
}

// Adapter answers legality and terminal-state queries for a position.
// Positions are FEN strings; moves are accepted in SAN or UCI form.
type Adapter interface {
	// SideToMove returns the color to move in the given position.
	SideToMove(position string) (models.Color, error)
	// ApplyMove validates notation against position and returns the
	// resulting state. An illegal or unparsable move returns an error and
	// implies no state anywhere changed.
	ApplyMove(position, notation string) (*MoveResult, error)
	// LegalMoves lists all legal moves from position in SAN.
	LegalMoves(position string) ([]string, error)
}

// MoveSuggester produces a reply move for a non-human seat. It is an
// opaque external collaborator; the core only forwards its answer into
// the normal move path.
type MoveSuggester interface {
	SuggestMove(ctx context.Context, position string, strengthTier int, budget time.Duration) (string, error)
}
