package database

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/models"
)

type ratingKey struct {
	userID   uuid.UUID
	gameType string
}

// MemStore is an in-memory Store used by tests and by local development
// when no DATABASE_URL is configured. It honors the same atomicity
// contract as the Postgres implementation and supports one-shot failure
// injection per operation so callers' rollback paths can be exercised.
type MemStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	byEmail  map[string]uuid.UUID
	ratings  map[ratingKey]models.UserRating
	sessions map[uuid.UUID]models.GameSession
	seats    map[uuid.UUID][]models.Seat
	moves    map[uuid.UUID][]models.Move
	records  []models.RatingRecord
	failures map[string]error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[uuid.UUID]*models.User),
		byEmail:  make(map[string]uuid.UUID),
		ratings:  make(map[ratingKey]models.UserRating),
		sessions: make(map[uuid.UUID]models.GameSession),
		seats:    make(map[uuid.UUID][]models.Seat),
		moves:    make(map[uuid.UUID][]models.Move),
		failures: make(map[string]error),
	}
}

// FailNext arms a one-shot error for the named operation: one of
// "create_match", "commit_move", "update_session", "settle".
func (s *MemStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *MemStore) takeFailure(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// SeedUser inserts a user directly, bypassing validation. Test helper.
func (s *MemStore) SeedUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	if u.Email != "" {
		s.byEmail[strings.ToLower(u.Email)] = u.ID
	}
}

// SeedRating installs a rating row directly. Test helper.
func (s *MemStore) SeedRating(r models.UserRating) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[ratingKey{r.UserID, r.GameType}] = r
}

// CreateUser implements Store.
func (s *MemStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	email := strings.ToLower(u.Email)
	if _, exists := s.byEmail[email]; exists && email != "" {
		return arena.E(arena.Conflict, "email %s already registered", u.Email)
	}
	cp := *u
	s.users[u.ID] = &cp
	if email != "" {
		s.byEmail[email] = u.ID
	}
	return nil
}

// GetUser implements Store.
func (s *MemStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, arena.E(arena.NotFound, "user %s", id)
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail implements Store.
func (s *MemStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok {
		return nil, arena.E(arena.NotFound, "user %s", email)
	}
	return s.GetUser(ctx, id)
}

// UserRating implements Store.
func (s *MemStore) UserRating(_ context.Context, userID uuid.UUID, gameType string) (models.UserRating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[ratingKey{userID, gameType}]; ok {
		return r, nil
	}
	return models.UserRating{UserID: userID, GameType: gameType, Rating: models.DefaultRating}, nil
}

// CreateMatch implements Store.
func (s *MemStore) CreateMatch(_ context.Context, sess *models.GameSession, white, black *models.Seat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("create_match"); err != nil {
		return err
	}
	if _, exists := s.sessions[sess.ID]; exists {
		return arena.E(arena.Conflict, "session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = *sess
	s.seats[sess.ID] = []models.Seat{*white, *black}
	return nil
}

// CommitMove implements Store.
func (s *MemStore) CommitMove(_ context.Context, sess *models.GameSession, white, black *models.Seat, mv *models.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("commit_move"); err != nil {
		return err
	}
	if _, exists := s.sessions[sess.ID]; !exists {
		return arena.E(arena.NotFound, "session %s", sess.ID)
	}
	s.moves[sess.ID] = append(s.moves[sess.ID], *mv)
	s.sessions[sess.ID] = *sess
	s.seats[sess.ID] = []models.Seat{*white, *black}
	return nil
}

// UpdateSession implements Store.
func (s *MemStore) UpdateSession(_ context.Context, sess *models.GameSession, white, black *models.Seat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("update_session"); err != nil {
		return err
	}
	if _, exists := s.sessions[sess.ID]; !exists {
		return arena.E(arena.NotFound, "session %s", sess.ID)
	}
	s.sessions[sess.ID] = *sess
	s.seats[sess.ID] = []models.Seat{*white, *black}
	return nil
}

// Settle implements Store.
func (s *MemStore) Settle(_ context.Context, sess *models.GameSession, white, black *models.Seat, records []models.RatingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("settle"); err != nil {
		return err
	}
	if _, exists := s.sessions[sess.ID]; !exists {
		return arena.E(arena.NotFound, "session %s", sess.ID)
	}
	s.sessions[sess.ID] = *sess
	s.seats[sess.ID] = []models.Seat{*white, *black}
	for _, rec := range records {
		key := ratingKey{rec.UserID, rec.GameType}
		r, ok := s.ratings[key]
		if !ok {
			r = models.UserRating{UserID: rec.UserID, GameType: rec.GameType, Rating: models.DefaultRating}
		}
		r.Rating = rec.RatingAfter
		switch rec.Outcome {
		case models.OutcomeWin:
			r.GamesWon++
		case models.OutcomeLoss:
			r.GamesLost++
		case models.OutcomeDraw:
			r.GamesDrawn++
		}
		s.ratings[key] = r
		s.records = append(s.records, rec)
	}
	return nil
}

// RemoveUser deletes a user row directly. Test helper.
func (s *MemStore) RemoveUser(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		delete(s.byEmail, strings.ToLower(u.Email))
	}
	delete(s.users, id)
}

// SeatsFor returns the stored seat copies of a session. Test helper.
func (s *MemStore) SeatsFor(id uuid.UUID) []models.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Seat, len(s.seats[id]))
	copy(out, s.seats[id])
	return out
}

// SessionRow returns the stored session copy. Test helper.
func (s *MemStore) SessionRow(id uuid.UUID) (models.GameSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// MovesFor returns the committed moves of a session. Test helper.
func (s *MemStore) MovesFor(id uuid.UUID) []models.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Move, len(s.moves[id]))
	copy(out, s.moves[id])
	return out
}

// Records returns all rating records written so far. Test helper.
func (s *MemStore) Records() []models.RatingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RatingRecord, len(s.records))
	copy(out, s.records)
	return out
}
