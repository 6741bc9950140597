package handlers

import (
	"net/http"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/middleware"
	"github.com/knightwatch/arena/internal/models"
)

func (s *ArenaServer) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req struct {
		GameType    string `json:"game_type"`
		TimeControl string `json:"time_control"`
		RatingRange struct {
			Min int `json:"min"`
			Max int `json:"max"`
		} `json:"rating_range"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	tc, err := models.ParseTimeControl(req.TimeControl)
	if err != nil {
		writeError(w, s.log, arena.Wrap(arena.ValidationRejected, err, "bad time control"))
		return
	}

	res, err := s.queue.Join(r.Context(), userID, req.GameType, tc, models.RatingRange{
		Min: req.RatingRange.Min,
		Max: req.RatingRange.Max,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *ArenaServer) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"removed": s.queue.Leave(userID)})
}

func (s *ArenaServer) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	st, ok := s.queue.Status(userID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not queued"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
