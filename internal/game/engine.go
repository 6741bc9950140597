package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/database"
	"github.com/knightwatch/arena/internal/models"
	"github.com/knightwatch/arena/internal/rules"
)

// Notifier delivers fire-and-forget events to a single user. The engine
// resolves recipients itself while holding the session lock, so the
// implementation must never call back into the session registry.
type Notifier interface {
	Notify(userID uuid.UUID, event string, payload interface{})
}

// Settler commits rating changes for a rated terminal session. It must
// mutate its arguments only after a successful commit.
type Settler interface {
	Settle(ctx context.Context, sess *models.GameSession, white, black *models.Seat) error
}

// Engine owns every live session's transitions. One engine instance
// serves all sessions; per-session locks keep them independent.
type Engine struct {
	sessions *Store
	db       database.Store
	rules    rules.Adapter
	settler  Settler
	hub      Notifier
	log      *logrus.Logger

	suggest   rules.MoveSuggester
	botBudget time.Duration
	botTier   int

	now func() time.Time
}

func NewEngine(sessions *Store, db database.Store, adapter rules.Adapter, settler Settler, hub Notifier, log *logrus.Logger) *Engine {
	return &Engine{
		sessions:  sessions,
		db:        db,
		rules:     adapter,
		settler:   settler,
		hub:       hub,
		log:       log,
		botBudget: 2 * time.Second,
		botTier:   1,
		now:       time.Now,
	}
}

// SetSuggester enables bot replies on sessions with a non-human seat.
func (e *Engine) SetSuggester(s rules.MoveSuggester) {
	e.suggest = s
}

// Register takes ownership of a freshly created session. The session
// arrives active with clocks set; the engine adds the live board state.
func (e *Engine) Register(sess *models.GameSession, white, black *models.Seat) {
	s := &Session{
		data:          *sess,
		white:         *white,
		black:         *black,
		position:      rules.StartingFEN,
		sideToMove:    models.White,
		turnStartedAt: e.now(),
	}
	e.sessions.Add(s)

	// White opens against a bot opponent.
	if !white.Human() && e.suggest != nil {
		go e.playBotReply(sess.ID)
	}
}

// Get returns a snapshot of the session.
func (e *Engine) Get(sessionID uuid.UUID) (View, error) {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return View{}, arena.E(arena.NotFound, "session %s not found", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(), nil
}

// ApplyMove validates and commits one half-move for the calling user.
// The whole unit of move append, clock update and status transition
// either fully commits or fully rolls back; a rejected move leaves
// every piece of session state untouched.
func (e *Engine) ApplyMove(ctx context.Context, sessionID, userID uuid.UUID, notation string, timeSpentMs int64) (*models.Move, error) {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil, arena.E(arena.NotFound, "session %s not found", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, err := s.seatForUser(userID)
	if err != nil {
		return nil, err
	}
	return e.applyMoveLocked(ctx, s, seat, notation, timeSpentMs)
}

func (e *Engine) applyMoveLocked(ctx context.Context, s *Session, seat *models.Seat, notation string, spentMs int64) (*models.Move, error) {
	if s.data.Status != models.StatusActive {
		return nil, arena.E(arena.InvalidState, "session %s is %s", s.data.ID, s.data.Status)
	}
	if seat.Color != s.sideToMove {
		return nil, arena.E(arena.Unauthorized, "it is %s to move", s.sideToMove)
	}
	if spentMs < 0 {
		return nil, arena.E(arena.ValidationRejected, "negative time spent")
	}

	res, err := e.rules.ApplyMove(s.position, notation)
	if err != nil {
		return nil, arena.Wrap(arena.ValidationRejected, err, "move %q rejected", notation)
	}

	clk := s.data.ClockFor(seat.Color)
	remaining := clk.RemainingMs - spentMs + clk.IncrementMs
	if remaining < 0 {
		remaining = 0
	}
	flagFell := remaining == 0

	now := e.now()
	mv := &models.Move{
		ID:              uuid.New(),
		SessionID:       s.data.ID,
		SeatID:          seat.ID,
		Color:           seat.Color,
		Number:          s.data.MoveCount/2 + 1,
		Notation:        res.Notation,
		Position:        res.Position,
		IsCheck:         res.IsCheck,
		IsTerminal:      flagFell || res.Terminal(),
		TimeSpentMs:     spentMs,
		TimeRemainingMs: remaining,
		PlayedAt:        now,
	}

	sCopy, wCopy, bCopy := s.data, s.white, s.black
	sCopy.MoveCount++
	sCopy.SetClock(seat.Color, models.Clock{RemainingMs: remaining, IncrementMs: clk.IncrementMs})

	if mv.IsTerminal {
		var result models.GameResult
		var reason string
		switch {
		case flagFell:
			// Clock expiry outranks whatever happened on the board.
			result, reason = models.WinnerFor(seat.Color.Opponent()), models.ReasonTimeout
		case res.IsCheckmate:
			result, reason = models.WinnerFor(seat.Color), models.ReasonCheckmate
		case res.IsStalemate:
			result, reason = models.ResultDraw, models.ReasonStalemate
		default:
			result, reason = models.ResultDraw, models.ReasonDrawRule
		}
		sCopy.Result, sCopy.ResultReason = result, reason
		sCopy.FinishedAt = now
		sCopy.Status = terminalStatus(&sCopy, &wCopy, &bCopy)
		setWinners(&wCopy, &bCopy, result)
	}

	if err := e.db.CommitMove(ctx, &sCopy, &wCopy, &bCopy, mv); err != nil {
		return nil, arena.Wrap(arena.TransientFailure, err, "committing move for session %s", s.data.ID)
	}

	s.data, s.white, s.black = sCopy, wCopy, bCopy
	s.position = res.Position
	s.sideToMove = res.SideToMove
	s.drawOfferFrom = nil
	s.turnStartedAt = now

	e.notifySeatsLocked(s, arena.EventMovePlayed, map[string]interface{}{
		"session_id":  s.data.ID,
		"move":        mv,
		"white_clock": s.data.WhiteClock,
		"black_clock": s.data.BlackClock,
	})

	if mv.IsTerminal {
		e.finalizeLocked(ctx, s)
	} else if opp := s.seatFor(seat.Color.Opponent()); !opp.Human() && e.suggest != nil {
		go e.playBotReply(s.data.ID)
	}
	return mv, nil
}

// Resign ends the session in the opponent's favor.
func (e *Engine) Resign(ctx context.Context, sessionID, userID uuid.UUID) error {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return arena.E(arena.NotFound, "session %s not found", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, err := s.seatForUser(userID)
	if err != nil {
		return err
	}
	if s.data.Status != models.StatusActive {
		return arena.E(arena.InvalidState, "session %s is %s", s.data.ID, s.data.Status)
	}
	return e.closeLocked(ctx, s, models.StatusFinished, models.WinnerFor(seat.Color.Opponent()), models.ReasonResignation)
}

// OfferDraw records an outstanding draw offer from the caller's seat.
// Offers are purely in-memory and are voided by any committed move.
func (e *Engine) OfferDraw(ctx context.Context, sessionID, userID uuid.UUID) error {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return arena.E(arena.NotFound, "session %s not found", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, err := s.seatForUser(userID)
	if err != nil {
		return err
	}
	if s.data.Status != models.StatusActive {
		return arena.E(arena.InvalidState, "session %s is %s", s.data.ID, s.data.Status)
	}
	if s.drawOfferFrom != nil {
		return arena.E(arena.Conflict, "a draw offer is already outstanding")
	}
	c := seat.Color
	s.drawOfferFrom = &c

	if opp := s.seatFor(c.Opponent()); opp.Human() {
		e.hub.Notify(*opp.UserID, arena.EventDrawOffered, map[string]interface{}{
			"session_id": s.data.ID,
			"from":       c,
		})
	}
	return nil
}

// RespondToDraw accepts or declines the opponent's outstanding offer.
// Accepting ends the session as a mutual-agreement draw; declining just
// clears the offer.
func (e *Engine) RespondToDraw(ctx context.Context, sessionID, userID uuid.UUID, accept bool) error {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return arena.E(arena.NotFound, "session %s not found", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, err := s.seatForUser(userID)
	if err != nil {
		return err
	}
	if s.data.Status != models.StatusActive {
		return arena.E(arena.InvalidState, "session %s is %s", s.data.ID, s.data.Status)
	}
	if s.drawOfferFrom == nil || *s.drawOfferFrom != seat.Color.Opponent() {
		return arena.E(arena.InvalidState, "no draw offer awaiting a response from %s", seat.Color)
	}
	if !accept {
		s.drawOfferFrom = nil
		if off := s.seatFor(seat.Color.Opponent()); off.Human() {
			e.hub.Notify(*off.UserID, arena.EventDrawDeclined, map[string]interface{}{
				"session_id": s.data.ID,
			})
		}
		return nil
	}
	return e.closeLocked(ctx, s, models.StatusFinished, models.ResultDraw, models.ReasonMutualDraw)
}

// Abort cancels a barely started session without a result. Either seat
// may abort until both sides have moved; after that the only ways out
// are resignation, a draw or the board. No settlement runs.
func (e *Engine) Abort(ctx context.Context, sessionID, userID uuid.UUID) error {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return arena.E(arena.NotFound, "session %s not found", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.seatForUser(userID); err != nil {
		return err
	}
	if s.data.Status != models.StatusActive {
		return arena.E(arena.InvalidState, "session %s is %s", s.data.ID, s.data.Status)
	}
	if s.data.MoveCount >= 2 {
		return arena.E(arena.InvalidState, "session %s is past move two", s.data.ID)
	}
	return e.closeLocked(ctx, s, models.StatusAborted, "", "")
}

// RetrySettlement re-runs settlement for a session stuck in
// pending_settlement. Completes at most once; a session that already
// finished reports InvalidState.
func (e *Engine) RetrySettlement(ctx context.Context, sessionID uuid.UUID) error {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return arena.E(arena.NotFound, "session %s not found", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Status != models.StatusPendingSettlement {
		return arena.E(arena.InvalidState, "session %s is %s, not awaiting settlement", s.data.ID, s.data.Status)
	}
	if err := e.settler.Settle(ctx, &s.data, &s.white, &s.black); err != nil {
		return err
	}
	e.notifyEndLocked(s)
	return nil
}

// closeLocked commits a terminal transition that is not tied to a move:
// resignation, mutual draw, timeout, abort. State is mutated only after
// the persistence unit commits, so a transient failure leaves the
// session retryable.
func (e *Engine) closeLocked(ctx context.Context, s *Session, status models.GameStatus, result models.GameResult, reason string) error {
	sCopy, wCopy, bCopy := s.data, s.white, s.black
	sCopy.Result, sCopy.ResultReason = result, reason
	sCopy.FinishedAt = e.now()
	sCopy.Status = status
	if status == models.StatusFinished {
		sCopy.Status = terminalStatus(&sCopy, &wCopy, &bCopy)
		setWinners(&wCopy, &bCopy, result)
	}

	if err := e.db.UpdateSession(ctx, &sCopy, &wCopy, &bCopy); err != nil {
		return arena.Wrap(arena.TransientFailure, err, "finalizing session %s", s.data.ID)
	}

	s.data, s.white, s.black = sCopy, wCopy, bCopy
	s.drawOfferFrom = nil
	e.finalizeLocked(ctx, s)
	return nil
}

// finalizeLocked runs post-terminal work: settlement for rated sessions,
// the session_end notification otherwise.
func (e *Engine) finalizeLocked(ctx context.Context, s *Session) {
	if s.data.Status == models.StatusPendingSettlement {
		e.trySettleLocked(ctx, s)
		return
	}
	e.notifyEndLocked(s)
}

func (e *Engine) trySettleLocked(ctx context.Context, s *Session) {
	if err := e.settler.Settle(ctx, &s.data, &s.white, &s.black); err != nil {
		e.log.WithError(err).WithField("session", s.data.ID).Warn("settlement deferred for retry")
		return
	}
	e.notifyEndLocked(s)
}

func (e *Engine) notifyEndLocked(s *Session) {
	e.notifySeatsLocked(s, arena.EventSessionEnd, map[string]interface{}{
		"session_id":    s.data.ID,
		"status":        s.data.Status,
		"result":        s.data.Result,
		"result_reason": s.data.ResultReason,
		"white":         s.white,
		"black":         s.black,
	})
}

// notifySeatsLocked fans an event to both human seats. The hub sends off
// this goroutine, so holding the session lock here is safe.
func (e *Engine) notifySeatsLocked(s *Session, event string, payload interface{}) {
	for _, seat := range []*models.Seat{&s.white, &s.black} {
		if seat.Human() {
			e.hub.Notify(*seat.UserID, event, payload)
		}
	}
}

// playBotReply asks the move suggester for the bot seat's answer and
// feeds it through the normal move path. Runs off the mover's goroutine.
func (e *Engine) playBotReply(sessionID uuid.UUID) {
	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.data.Status != models.StatusActive || s.seatFor(s.sideToMove).Human() {
		s.mu.Unlock()
		return
	}
	position := s.position
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.botBudget+time.Second)
	defer cancel()
	start := e.now()
	notation, err := e.suggest.SuggestMove(ctx, position, e.botTier, e.botBudget)
	if err != nil {
		e.log.WithError(err).WithField("session", sessionID).Warn("move suggestion failed")
		return
	}
	spent := e.now().Sub(start).Milliseconds()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Status != models.StatusActive || s.position != position {
		return
	}
	if _, err := e.applyMoveLocked(ctx, s, s.seatFor(s.sideToMove), notation, spent); err != nil {
		e.log.WithError(err).WithField("session", sessionID).Warn("bot move rejected")
	}
}

// terminalStatus picks where a finished result lands: rated games with
// two human seats must pass through settlement before they read as
// finished.
func terminalStatus(sess *models.GameSession, white, black *models.Seat) models.GameStatus {
	if sess.Rated && white.Human() && black.Human() {
		return models.StatusPendingSettlement
	}
	return models.StatusFinished
}

func setWinners(white, black *models.Seat, result models.GameResult) {
	t, f := true, false
	switch result {
	case models.ResultWhiteWins:
		white.IsWinner, black.IsWinner = &t, &f
	case models.ResultBlackWins:
		white.IsWinner, black.IsWinner = &f, &t
	default:
		white.IsWinner, black.IsWinner = nil, nil
	}
}
