package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureConn struct {
	msgs chan []byte
}

func newCaptureConn() *captureConn {
	return &captureConn{msgs: make(chan []byte, 16)}
}

func (c *captureConn) Send(_ context.Context, data []byte) error {
	c.msgs <- data
	return nil
}

func (c *captureConn) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case data := <-c.msgs:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

// blockedConn never completes a send until its context expires.
type blockedConn struct{}

func (blockedConn) Send(ctx context.Context, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestNotifyDeliversToRegisteredConn(t *testing.T) {
	h := New(quietLogger())
	userID := uuid.New()
	conn := newCaptureConn()
	h.Register(userID, conn)

	h.Notify(userID, "move_played", map[string]string{"notation": "e4"})

	env := conn.next(t)
	assert.Equal(t, "move_played", env.Type)
}

func TestNotifyWithoutConnIsDropped(t *testing.T) {
	h := New(quietLogger())
	// Must not panic or block.
	h.Notify(uuid.New(), "session_end", nil)
}

func TestLastRegistrationWins(t *testing.T) {
	h := New(quietLogger())
	userID := uuid.New()
	stale := newCaptureConn()
	fresh := newCaptureConn()

	h.Register(userID, stale)
	h.Register(userID, fresh)

	h.Notify(userID, "session_start", nil)

	assert.Equal(t, "session_start", fresh.next(t).Type)
	assert.Empty(t, stale.msgs)
}

func TestUnregisterOnlyDropsOwnConn(t *testing.T) {
	h := New(quietLogger())
	userID := uuid.New()
	stale := newCaptureConn()
	fresh := newCaptureConn()

	h.Register(userID, stale)
	h.Register(userID, fresh)
	// A late disconnect of the stale socket must not evict the fresh one.
	h.Unregister(userID, stale)

	h.Notify(userID, "move_played", nil)
	assert.Equal(t, "move_played", fresh.next(t).Type)

	h.Unregister(userID, fresh)
	h.Notify(userID, "move_played", nil)
	assert.Empty(t, fresh.msgs)
}

func TestBroadcastToSessionHitsConnectedSeatsOnly(t *testing.T) {
	h := New(quietLogger())
	sessionID := uuid.New()
	whiteID, blackID := uuid.New(), uuid.New()

	h.SetResolver(func(id uuid.UUID) []uuid.UUID {
		if id == sessionID {
			return []uuid.UUID{whiteID, blackID}
		}
		return nil
	})

	white := newCaptureConn()
	h.Register(whiteID, white)
	// black never connected.

	h.BroadcastToSession(sessionID, "session_end", map[string]string{"result": "draw"})

	env := white.next(t)
	assert.Equal(t, "session_end", env.Type)
}

func TestSlowConnDoesNotBlockCaller(t *testing.T) {
	h := New(quietLogger())
	h.writeTimeout = 20 * time.Millisecond
	userID := uuid.New()
	h.Register(userID, blockedConn{})

	done := make(chan struct{})
	go func() {
		h.Notify(userID, "move_played", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stuck connection")
	}
}
