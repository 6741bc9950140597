package game

import (
	"context"
	"time"

	"github.com/knightwatch/arena/internal/models"
)

// RunClockSweep periodically checks every live session for clock expiry
// and retries deferred settlements until ctx is cancelled. The sweep
// interval bounds how long a fallen flag can go unnoticed while the
// side to move sits idle.
func (e *Engine) RunClockSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepOnce(ctx)
		}
	}
}

// SweepOnce walks the registry a single time. Exposed for tests and for
// a forced sweep after recovery.
func (e *Engine) SweepOnce(ctx context.Context) {
	now := e.now()
	for _, s := range e.sessions.All() {
		s.mu.Lock()
		switch s.data.Status {
		case models.StatusActive:
			e.sweepClockLocked(ctx, s, now)
		case models.StatusPendingSettlement:
			e.trySettleLocked(ctx, s)
		}
		s.mu.Unlock()
	}
}

func (e *Engine) sweepClockLocked(ctx context.Context, s *Session, now time.Time) {
	side := s.sideToMove
	clk := s.data.ClockFor(side)
	if clk.RemainingMs-now.Sub(s.turnStartedAt).Milliseconds() > 0 {
		return
	}

	// Flag fell while the side to move sat idle. Zero the clock first;
	// if the terminal commit fails the next tick tries again.
	s.data.SetClock(side, models.Clock{RemainingMs: 0, IncrementMs: clk.IncrementMs})

	status, result := models.StatusFinished, models.WinnerFor(side.Opponent())
	if s.data.MoveCount < 2 {
		// Neither player got a real game in; treat it as abandoned
		// rather than a rated loss.
		status, result = models.StatusAbandoned, ""
	}
	if err := e.closeLocked(ctx, s, status, result, models.ReasonTimeout); err != nil {
		e.log.WithError(err).WithField("session", s.data.ID).Warn("timeout finalize failed; retrying next sweep")
	}
}
