package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/knightwatch/arena/internal/auth"
	"github.com/knightwatch/arena/internal/models"
)

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	Token    string    `json:"token"`
}

func (s *ArenaServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and a password of at least 8 characters are required"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	user := &models.User{
		ID:       uuid.New(),
		Email:    req.Email,
		Password: hash,
		Username: req.Username,
	}
	if err := s.db.CreateUser(r.Context(), user); err != nil {
		writeError(w, s.log, err)
		return
	}

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email, Username: user.Username, Token: token})
}

func (s *ArenaServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Do not reveal whether the account exists.
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}
	ok, err := auth.CheckPassword(req.Password, user.Password)
	if err != nil || !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email, Username: user.Username, Token: token})
}
