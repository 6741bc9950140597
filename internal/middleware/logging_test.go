package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knightwatch/arena/internal/auth"
)

func TestAuthInjectsUserID(t *testing.T) {
	svc, err := auth.NewService(time.Hour)
	require.NoError(t, err)
	userID := uuid.New()
	token, err := svc.IssueToken(userID)
	require.NoError(t, err)

	var seen bool
	handler := Auth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserID(r.Context())
		assert.True(t, ok)
		assert.Equal(t, userID, got)
		seen = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/queue/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, seen)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Same token via query parameter, the websocket path.
	seen = false
	req = httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.True(t, seen)
}

func TestAuthRejectsMissingOrBadToken(t *testing.T) {
	svc, err := auth.NewService(time.Hour)
	require.NoError(t, err)

	handler := Auth(svc)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/queue/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/queue/status", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
