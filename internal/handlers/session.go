package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/middleware"
	"github.com/knightwatch/arena/internal/models"
)

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, arena.E(arena.ValidationRejected, "malformed session id")
	}
	return id, nil
}

func (s *ArenaServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	view, err := s.engine.Get(id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *ArenaServer) handleMove(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	id, err := sessionID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	var req struct {
		Notation    string `json:"notation"`
		TimeSpentMs int64  `json:"time_spent_ms"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	mv, err := s.engine.ApplyMove(r.Context(), id, userID, req.Notation, req.TimeSpentMs)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	view, err := s.engine.Get(id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"move": mv, "session": view})
}

func (s *ArenaServer) handleResign(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	id, err := sessionID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.engine.Resign(r.Context(), id, userID); err != nil {
		writeError(w, s.log, err)
		return
	}
	view, err := s.engine.Get(id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *ArenaServer) handleAbort(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	id, err := sessionID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.engine.Abort(r.Context(), id, userID); err != nil {
		writeError(w, s.log, err)
		return
	}
	view, err := s.engine.Get(id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *ArenaServer) handleOfferDraw(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	id, err := sessionID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.engine.OfferDraw(r.Context(), id, userID); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"offered": true})
}

func (s *ArenaServer) handleRespondDraw(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	id, err := sessionID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	var req struct {
		Accept bool `json:"accept"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.RespondToDraw(r.Context(), id, userID, req.Accept); err != nil {
		writeError(w, s.log, err)
		return
	}
	view, err := s.engine.Get(id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *ArenaServer) handleBotMatch(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req struct {
		GameType    string `json:"game_type"`
		TimeControl string `json:"time_control"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	tc, err := models.ParseTimeControl(req.TimeControl)
	if err != nil {
		writeError(w, s.log, arena.Wrap(arena.ValidationRejected, err, "bad time control"))
		return
	}

	sess, err := s.creator.CreateBotMatch(r.Context(), userID, req.GameType, tc)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	view, err := s.engine.Get(sess.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}
