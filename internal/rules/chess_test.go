package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightwatch/arena/internal/models"
)

func TestSideToMoveFromStart(t *testing.T) {
	a := NewChessAdapter()

	side, err := a.SideToMove(StartingFEN)
	require.NoError(t, err)
	assert.Equal(t, models.White, side)

	res, err := a.ApplyMove(StartingFEN, "e4")
	require.NoError(t, err)
	side, err = a.SideToMove(res.Position)
	require.NoError(t, err)
	assert.Equal(t, models.Black, side)
}

func TestApplyMoveAcceptsSANAndUCI(t *testing.T) {
	a := NewChessAdapter()

	san, err := a.ApplyMove(StartingFEN, "Nf3")
	require.NoError(t, err)
	uci, err := a.ApplyMove(StartingFEN, "g1f3")
	require.NoError(t, err)

	assert.Equal(t, san.Position, uci.Position)
	assert.Equal(t, "Nf3", uci.Notation, "UCI input should canonicalize to SAN")
}

func TestApplyMoveRejectsIllegal(t *testing.T) {
	a := NewChessAdapter()

	for _, notation := range []string{"e5", "Ke2", "a1a8", "garbage", ""} {
		_, err := a.ApplyMove(StartingFEN, notation)
		assert.Error(t, err, "move %q should be rejected from the start position", notation)
	}
}

func TestApplyMoveDetectsCheckmate(t *testing.T) {
	a := NewChessAdapter()

	// Fool's mate.
	pos := StartingFEN
	for _, notation := range []string{"f3", "e5", "g4"} {
		res, err := a.ApplyMove(pos, notation)
		require.NoError(t, err)
		require.False(t, res.Terminal())
		pos = res.Position
	}
	res, err := a.ApplyMove(pos, "Qh4#")
	require.NoError(t, err)
	assert.True(t, res.IsCheckmate)
	assert.True(t, res.IsCheck)
	assert.True(t, res.Terminal())
}

func TestApplyMoveDetectsStalemate(t *testing.T) {
	a := NewChessAdapter()

	// Qg6 boxes in the cornered black king without check.
	res, err := a.ApplyMove("7k/8/5Q2/8/8/8/8/6K1 w - - 0 1", "Qg6")
	require.NoError(t, err)
	assert.True(t, res.IsStalemate)
	assert.False(t, res.IsCheckmate)
}

func TestLegalMovesFromStart(t *testing.T) {
	a := NewChessAdapter()

	moves, err := a.LegalMoves(StartingFEN)
	require.NoError(t, err)
	assert.Len(t, moves, 20)
	assert.Contains(t, moves, "e4")
	assert.Contains(t, moves, "Nf3")
}

func TestRandomSuggesterReturnsLegalMove(t *testing.T) {
	a := NewChessAdapter()
	s := &RandomSuggester{Adapter: a}

	notation, err := s.SuggestMove(context.Background(), StartingFEN, 1, time.Second)
	require.NoError(t, err)

	_, err = a.ApplyMove(StartingFEN, notation)
	assert.NoError(t, err, "suggested move %q should be applicable", notation)
}
