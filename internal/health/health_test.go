package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/backend/internal/health"
	"github.com/certforge/backend/pkg/database"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type redisCheck bool

func (r redisCheck) Healthy(context.Context) bool { return bool(r) }

func check(t *testing.T, h *health.Handler) (int, health.Status) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Check)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body struct {
		Data health.Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body.Data
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		db         health.Pinger
		redis      health.RedisChecker
		wantCode   int
		wantStatus health.Status
	}{
		{
			name: "all up", db: pinger{}, redis: redisCheck(true),
			wantCode:   http.StatusOK,
			wantStatus: health.Status{Status: "ok", Database: "up", Redis: "up"},
		},
		{
			name: "redis disabled", db: pinger{},
			wantCode:   http.StatusOK,
			wantStatus: health.Status{Status: "ok", Database: "up", Redis: "disabled"},
		},
		{
			name: "redis down", db: pinger{}, redis: redisCheck(false),
			wantCode:   http.StatusOK,
			wantStatus: health.Status{Status: "degraded", Database: "up", Redis: "down"},
		},
		{
			name: "database down", db: pinger{err: errors.New("dial tcp: refused")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: health.Status{Status: "unavailable", Database: "down", Redis: "disabled"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, st := check(t, health.NewHandler(tt.db, tt.redis, nil))
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, st)
		})
	}
}

func TestCheck_unconnectedHandle(t *testing.T) {
	code, st := check(t, health.NewHandler(database.NewHandle(nil), nil, nil))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "down", st.Database)
}
