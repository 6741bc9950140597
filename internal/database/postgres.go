package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/models"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect builds a pool from the connection string and verifies it with
// a ping.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }

// Migrate creates the schema if it does not exist yet. Idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
		   id UUID PRIMARY KEY,
		   email TEXT UNIQUE NOT NULL,
		   password TEXT NOT NULL,
		   username TEXT NOT NULL DEFAULT '',
		   is_ephemeral BOOLEAN NOT NULL DEFAULT FALSE
		 )`,
		`CREATE TABLE IF NOT EXISTS user_ratings (
		   user_id UUID NOT NULL REFERENCES users(id),
		   game_type TEXT NOT NULL,
		   rating INT NOT NULL,
		   games_won INT NOT NULL DEFAULT 0,
		   games_lost INT NOT NULL DEFAULT 0,
		   games_drawn INT NOT NULL DEFAULT 0,
		   PRIMARY KEY (user_id, game_type)
		 )`,
		`CREATE TABLE IF NOT EXISTS game_sessions (
		   id UUID PRIMARY KEY,
		   game_type TEXT NOT NULL,
		   initial_sec INT NOT NULL,
		   increment_sec INT NOT NULL,
		   rated BOOLEAN NOT NULL,
		   status TEXT NOT NULL,
		   result TEXT,
		   result_reason TEXT,
		   move_count INT NOT NULL DEFAULT 0,
		   white_remaining_ms BIGINT NOT NULL,
		   black_remaining_ms BIGINT NOT NULL,
		   created_at TIMESTAMPTZ NOT NULL,
		   started_at TIMESTAMPTZ NOT NULL,
		   finished_at TIMESTAMPTZ
		 )`,
		`CREATE TABLE IF NOT EXISTS seats (
		   id UUID PRIMARY KEY,
		   session_id UUID NOT NULL REFERENCES game_sessions(id),
		   user_id UUID REFERENCES users(id),
		   color TEXT NOT NULL,
		   rating_before INT NOT NULL,
		   rating_after INT,
		   is_winner BOOLEAN
		 )`,
		`CREATE TABLE IF NOT EXISTS moves (
		   id UUID PRIMARY KEY,
		   session_id UUID NOT NULL REFERENCES game_sessions(id),
		   seat_id UUID NOT NULL REFERENCES seats(id),
		   color TEXT NOT NULL,
		   number INT NOT NULL,
		   notation TEXT NOT NULL,
		   position TEXT NOT NULL,
		   is_check BOOLEAN NOT NULL,
		   is_terminal BOOLEAN NOT NULL,
		   time_spent_ms BIGINT NOT NULL,
		   time_remaining_ms BIGINT NOT NULL,
		   played_at TIMESTAMPTZ NOT NULL
		 )`,
		`CREATE TABLE IF NOT EXISTS rating_records (
		   id UUID PRIMARY KEY,
		   user_id UUID NOT NULL REFERENCES users(id),
		   session_id UUID NOT NULL REFERENCES game_sessions(id),
		   game_type TEXT NOT NULL,
		   rating_before INT NOT NULL,
		   rating_after INT NOT NULL,
		   delta INT NOT NULL,
		   opponent_rating INT NOT NULL,
		   expected DOUBLE PRECISION NOT NULL,
		   k_factor INT NOT NULL,
		   outcome DOUBLE PRECISION NOT NULL,
		   created_at TIMESTAMPTZ NOT NULL
		 )`,
	}
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return transient(err, "applying schema")
		}
	}
	return nil
}

func transient(err error, op string) error {
	return arena.Wrap(arena.TransientFailure, err, "%s", op)
}

// CreateUser inserts a new user row.
func (p *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	q := `INSERT INTO users (id, email, password, username, is_ephemeral)
	      VALUES ($1, $2, $3, $4, $5)`
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, u.ID, u.Email, u.Password, u.Username, u.IsEphemeral)
		return execErr
	})
	if err != nil {
		return transient(err, "inserting user")
	}
	return nil
}

// GetUser loads a user by id.
func (p *Postgres) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `SELECT id, email, password, username, is_ephemeral FROM users WHERE id = $1`
	err := p.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.IsEphemeral)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, arena.E(arena.NotFound, "user %s", id)
	}
	if err != nil {
		return nil, transient(err, "loading user")
	}
	return &u, nil
}

// GetUserByEmail loads a user by email.
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	q := `SELECT id, email, password, username, is_ephemeral FROM users WHERE email = $1`
	err := p.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.IsEphemeral)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, arena.E(arena.NotFound, "user %s", email)
	}
	if err != nil {
		return nil, transient(err, "loading user")
	}
	return &u, nil
}

// UserRating loads the per-game-type rating row, defaulting when absent.
func (p *Postgres) UserRating(ctx context.Context, userID uuid.UUID, gameType string) (models.UserRating, error) {
	r := models.UserRating{UserID: userID, GameType: gameType, Rating: models.DefaultRating}
	q := `SELECT rating, games_won, games_lost, games_drawn
	      FROM user_ratings WHERE user_id = $1 AND game_type = $2`
	err := p.pool.QueryRow(ctx, q, userID, gameType).Scan(&r.Rating, &r.GamesWon, &r.GamesLost, &r.GamesDrawn)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, nil
	}
	if err != nil {
		return r, transient(err, "loading user rating")
	}
	return r, nil
}

// CreateMatch persists session plus both seats in one transaction.
func (p *Postgres) CreateMatch(ctx context.Context, sess *models.GameSession, white, black *models.Seat) error {
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `INSERT INTO game_sessions
		        (id, game_type, initial_sec, increment_sec, rated, status,
		         move_count, white_remaining_ms, black_remaining_ms, created_at, started_at)
		      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		if _, e := tx.Exec(ctx, q,
			sess.ID, sess.GameType, sess.TimeControl.InitialSec, sess.TimeControl.IncrementSec,
			sess.Rated, sess.Status, sess.MoveCount,
			sess.WhiteClock.RemainingMs, sess.BlackClock.RemainingMs,
			sess.CreatedAt, sess.StartedAt,
		); e != nil {
			return e
		}
		sq := `INSERT INTO seats (id, session_id, user_id, color, rating_before)
		       VALUES ($1, $2, $3, $4, $5)`
		for _, seat := range []*models.Seat{white, black} {
			if _, e := tx.Exec(ctx, sq, seat.ID, seat.SessionID, seat.UserID, seat.Color, seat.RatingBefore); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return transient(err, "creating match")
	}
	return nil
}

// CommitMove appends the move and updates the session row atomically.
// A terminal move carries the seats' winner flags in the same unit.
func (p *Postgres) CommitMove(ctx context.Context, sess *models.GameSession, white, black *models.Seat, mv *models.Move) error {
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		mq := `INSERT INTO moves
		         (id, session_id, seat_id, color, number, notation, position,
		          is_check, is_terminal, time_spent_ms, time_remaining_ms, played_at)
		       VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		if _, e := tx.Exec(ctx, mq,
			mv.ID, mv.SessionID, mv.SeatID, mv.Color, mv.Number, mv.Notation, mv.Position,
			mv.IsCheck, mv.IsTerminal, mv.TimeSpentMs, mv.TimeRemainingMs, mv.PlayedAt,
		); e != nil {
			return e
		}
		sq := `UPDATE game_sessions
		       SET status = $1, result = NULLIF($2, ''), result_reason = NULLIF($3, ''),
		           move_count = $4, white_remaining_ms = $5, black_remaining_ms = $6,
		           finished_at = $7
		       WHERE id = $8`
		var finished *time.Time
		if !sess.FinishedAt.IsZero() {
			finished = &sess.FinishedAt
		}
		if _, e := tx.Exec(ctx, sq,
			sess.Status, string(sess.Result), sess.ResultReason,
			sess.MoveCount, sess.WhiteClock.RemainingMs, sess.BlackClock.RemainingMs,
			finished, sess.ID,
		); e != nil {
			return e
		}
		if !mv.IsTerminal {
			return nil
		}
		wq := `UPDATE seats SET is_winner = $1 WHERE id = $2`
		for _, seat := range []*models.Seat{white, black} {
			if _, e := tx.Exec(ctx, wq, seat.IsWinner, seat.ID); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return transient(err, "committing move")
	}
	return nil
}

// UpdateSession rewrites the session row and both seats' winner flags.
func (p *Postgres) UpdateSession(ctx context.Context, sess *models.GameSession, white, black *models.Seat) error {
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return updateSessionTx(ctx, tx, sess, white, black)
	})
	if err != nil {
		return transient(err, "updating session")
	}
	return nil
}

func updateSessionTx(ctx context.Context, tx pgx.Tx, sess *models.GameSession, white, black *models.Seat) error {
	q := `UPDATE game_sessions
	      SET status = $1, result = NULLIF($2, ''), result_reason = NULLIF($3, ''),
	          move_count = $4, white_remaining_ms = $5, black_remaining_ms = $6,
	          finished_at = $7
	      WHERE id = $8`
	var finished *time.Time
	if !sess.FinishedAt.IsZero() {
		finished = &sess.FinishedAt
	}
	if _, e := tx.Exec(ctx, q,
		sess.Status, string(sess.Result), sess.ResultReason,
		sess.MoveCount, sess.WhiteClock.RemainingMs, sess.BlackClock.RemainingMs,
		finished, sess.ID,
	); e != nil {
		return e
	}
	sq := `UPDATE seats SET rating_after = $1, is_winner = $2 WHERE id = $3`
	for _, seat := range []*models.Seat{white, black} {
		if _, e := tx.Exec(ctx, sq, seat.RatingAfter, seat.IsWinner, seat.ID); e != nil {
			return e
		}
	}
	return nil
}

// Settle applies a rated result in one transaction: session flip to
// finished, seat rating_after, user rating rows and counters, and the
// append-only rating records.
func (p *Postgres) Settle(ctx context.Context, sess *models.GameSession, white, black *models.Seat, records []models.RatingRecord) error {
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if e := updateSessionTx(ctx, tx, sess, white, black); e != nil {
			return e
		}
		for _, rec := range records {
			uq := `INSERT INTO user_ratings (user_id, game_type, rating, games_won, games_lost, games_drawn)
			       VALUES ($1, $2, $3,
			               CASE WHEN $4 = 1.0 THEN 1 ELSE 0 END,
			               CASE WHEN $4 = 0.0 THEN 1 ELSE 0 END,
			               CASE WHEN $4 = 0.5 THEN 1 ELSE 0 END)
			       ON CONFLICT (user_id, game_type) DO UPDATE SET
			         rating = $3,
			         games_won = user_ratings.games_won + CASE WHEN $4 = 1.0 THEN 1 ELSE 0 END,
			         games_lost = user_ratings.games_lost + CASE WHEN $4 = 0.0 THEN 1 ELSE 0 END,
			         games_drawn = user_ratings.games_drawn + CASE WHEN $4 = 0.5 THEN 1 ELSE 0 END`
			if _, e := tx.Exec(ctx, uq, rec.UserID, rec.GameType, rec.RatingAfter, float64(rec.Outcome)); e != nil {
				return e
			}
			rq := `INSERT INTO rating_records
			         (id, user_id, session_id, game_type, rating_before, rating_after,
			          delta, opponent_rating, expected, k_factor, outcome, created_at)
			       VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
			if _, e := tx.Exec(ctx, rq,
				rec.ID, rec.UserID, rec.SessionID, rec.GameType, rec.RatingBefore, rec.RatingAfter,
				rec.Delta, rec.OpponentRating, rec.Expected, rec.KFactor, float64(rec.Outcome), rec.CreatedAt,
			); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return transient(err, "settling ratings")
	}
	return nil
}
