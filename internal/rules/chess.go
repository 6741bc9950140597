package rules

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/knightwatch/arena/internal/models"
)

// ChessAdapter implements Adapter on top of the corentings/chess engine.
// It is stateless: every call reconstructs the position from FEN.
type ChessAdapter struct{}

// NewChessAdapter returns the production rules adapter.
func NewChessAdapter() *ChessAdapter { return &ChessAdapter{} }

func gameFromFEN(position string) (*chess.Game, error) {
	fen := strings.TrimSpace(position)
	if fen == "" {
		fen = StartingFEN
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid position %q: %w", position, err)
	}
	return chess.NewGame(opt), nil
}

func colorFrom(c chess.Color) models.Color {
	if c == chess.White {
		return models.White
	}
	return models.Black
}

// SideToMove implements Adapter.
func (a *ChessAdapter) SideToMove(position string) (models.Color, error) {
	game, err := gameFromFEN(position)
	if err != nil {
		return "", err
	}
	return colorFrom(game.Position().Turn()), nil
}

// ApplyMove implements Adapter. Notation is tried as SAN first, then as
// lowercase UCI, matching what clients actually send.
func (a *ChessAdapter) ApplyMove(position, notation string) (*MoveResult, error) {
	game, err := gameFromFEN(position)
	if err != nil {
		return nil, err
	}
	pos := game.Position()

	raw := strings.TrimSpace(notation)
	if raw == "" {
		return nil, fmt.Errorf("empty move")
	}
	move, err := chess.AlgebraicNotation{}.Decode(pos, raw)
	if err != nil {
		move, err = chess.UCINotation{}.Decode(pos, strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("illegal move %q: %w", notation, err)
		}
	}
	san := chess.AlgebraicNotation{}.Encode(pos, move)
	if err := game.Move(move, nil); err != nil {
		return nil, fmt.Errorf("illegal move %q: %w", notation, err)
	}

	res := &MoveResult{
		Position:   game.FEN(),
		Notation:   san,
		IsCheck:    move.HasTag(chess.Check),
		SideToMove: colorFrom(game.Position().Turn()),
	}
	switch game.Outcome() {
	case chess.WhiteWon, chess.BlackWon:
		res.IsCheckmate = true
	case chess.Draw:
		if game.Method() == chess.Stalemate {
			res.IsStalemate = true
		} else {
			res.IsDraw = true
		}
	}
	return res, nil
}

// LegalMoves implements Adapter.
func (a *ChessAdapter) LegalMoves(position string) ([]string, error) {
	game, err := gameFromFEN(position)
	if err != nil {
		return nil, err
	}
	pos := game.Position()
	valid := game.ValidMoves()
	out := make([]string, 0, len(valid))
	for i := range valid {
		out = append(out, chess.AlgebraicNotation{}.Encode(pos, &valid[i]))
	}
	return out, nil
}

// RandomSuggester is the stand-in move source used when no external
// engine is configured: it answers with a uniformly random legal move.
// Strength tier and time budget are ignored.
type RandomSuggester struct {
	Adapter Adapter
}

// SuggestMove implements MoveSuggester.
func (s *RandomSuggester) SuggestMove(ctx context.Context, position string, _ int, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	moves, err := s.Adapter.LegalMoves(position)
	if err != nil {
		return "", err
	}
	if len(moves) == 0 {
		return "", fmt.Errorf("no legal moves in position %q", position)
	}
	return moves[rand.Intn(len(moves))], nil
}
