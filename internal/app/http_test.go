package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"auth-client/internal/auth/handler"
	"auth-client/internal/db/memory"
	"auth-client/internal/permissions"
	"auth-client/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) (*gin.Engine, *session.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sessions := session.NewMemoryStore()
	h := handler.NewHandler(handler.Deps{Sessions: sessions}, handler.Config{SessionTTL: time.Hour})
	return newRouter(h, sessions), sessions
}

func TestHealth(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	r, _ := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_token_exchange_duration_seconds")
}

func TestMe(t *testing.T) {
	r, sessions := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s, err := session.New(time.Now(), time.Hour)
	require.NoError(t, err)
	s.UserID = "user-1"
	require.NoError(t, sessions.Create(context.Background(), s))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: s.ID})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body["user_id"])
}

func TestNewPermissionAssigner(t *testing.T) {
	a, err := newPermissionAssigner("", memory.New())
	require.NoError(t, err)
	assert.IsType(t, permissions.Noop{}, a)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - claim: hd\n    value: b.com\n    permissions: [x]\n"), 0o600))
	a, err = newPermissionAssigner(path, memory.New())
	require.NoError(t, err)
	assert.IsType(t, &permissions.Assigner{}, a)

	_, err = newPermissionAssigner(filepath.Join(t.TempDir(), "missing.yaml"), memory.New())
	assert.Error(t, err)
}
