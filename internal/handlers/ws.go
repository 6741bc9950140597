package handlers

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/arena/internal/hub"
	"github.com/knightwatch/arena/internal/middleware"
)

// handleWS upgrades the connection and registers it as the user's
// current event channel. The socket is write-mostly: the read loop only
// exists to observe disconnection, which never mutates game state.
func (s *ArenaServer) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := hub.NewWSConn(ws)
	s.hub.Register(userID, conn)
	s.log.WithFields(logrus.Fields{
		"user":   userID,
		"remote": r.RemoteAddr,
	}).Info("websocket connected")

	ctx := r.Context()
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			break
		}
	}

	s.hub.Unregister(userID, conn)
	_ = conn.Close()
	s.log.WithField("user", userID).Info("websocket disconnected")
}
