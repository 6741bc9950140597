package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/knightwatch/arena/internal/auth"
	"github.com/knightwatch/arena/internal/database"
	"github.com/knightwatch/arena/internal/game"
	"github.com/knightwatch/arena/internal/hub"
	"github.com/knightwatch/arena/internal/match"
	"github.com/knightwatch/arena/internal/middleware"
	"github.com/knightwatch/arena/internal/queue"
)

// ArenaServer bundles the wired components behind the HTTP surface.
type ArenaServer struct {
	db      database.Store
	queue   *queue.Manager
	engine  *game.Engine
	creator *match.Creator
	hub     *hub.Hub
	auth    *auth.Service
	log     *logrus.Logger
}

func NewArenaServer(db database.Store, qm *queue.Manager, engine *game.Engine, creator *match.Creator, h *hub.Hub, authSvc *auth.Service, log *logrus.Logger) *ArenaServer {
	return &ArenaServer{
		db:      db,
		queue:   qm,
		engine:  engine,
		creator: creator,
		hub:     h,
		auth:    authSvc,
		log:     log,
	}
}

// Routes builds the full router: public user endpoints plus the
// authenticated queue, session and websocket surface.
func (s *ArenaServer) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /user/create", s.handleCreateUser)
	mux.HandleFunc("POST /user/login", s.handleLogin)

	authed := middleware.Auth(s.auth)
	mux.Handle("POST /queue/join", authed(http.HandlerFunc(s.handleJoinQueue)))
	mux.Handle("POST /queue/leave", authed(http.HandlerFunc(s.handleLeaveQueue)))
	mux.Handle("GET /queue/status", authed(http.HandlerFunc(s.handleQueueStatus)))

	mux.Handle("GET /session/{id}", authed(http.HandlerFunc(s.handleGetSession)))
	mux.Handle("POST /session/{id}/move", authed(http.HandlerFunc(s.handleMove)))
	mux.Handle("POST /session/{id}/resign", authed(http.HandlerFunc(s.handleResign)))
	mux.Handle("POST /session/{id}/abort", authed(http.HandlerFunc(s.handleAbort)))
	mux.Handle("POST /session/{id}/draw/offer", authed(http.HandlerFunc(s.handleOfferDraw)))
	mux.Handle("POST /session/{id}/draw/respond", authed(http.HandlerFunc(s.handleRespondDraw)))
	mux.Handle("POST /match/bot", authed(http.HandlerFunc(s.handleBotMatch)))

	mux.Handle("GET /ws", authed(http.HandlerFunc(s.handleWS)))

	return middleware.Logging(s.log)(mux)
}
