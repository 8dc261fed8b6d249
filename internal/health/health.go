// Package health reports whether the server and its backing services are reachable.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certforge/backend/pkg/response"
)

const checkTimeout = 2 * time.Second

// Component states.
const (
	StateUp       = "up"
	StateDown     = "down"
	StateDisabled = "disabled"
)

// Pinger is the database check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisChecker is the optional Redis check.
type RedisChecker interface {
	Healthy(ctx context.Context) bool
}

// Status is the body of GET /health.
type Status struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Handler serves GET /health.
type Handler struct {
	db     Pinger
	redis  RedisChecker
	logger *zap.Logger
}

// NewHandler creates a health handler. redis may be nil when Redis is not configured.
func NewHandler(db Pinger, redis RedisChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{db: db, redis: redis, logger: logger}
}

// Check returns 200 while the database answers and 503 otherwise. Redis being down only
// degrades the status.
func (h *Handler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	st := Status{Status: "ok", Database: StateUp, Redis: StateDisabled}
	if h.redis != nil {
		st.Redis = StateUp
		if !h.redis.Healthy(ctx) {
			st.Redis = StateDown
			st.Status = "degraded"
		}
	}
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health: database ping failed", zap.Error(err))
		st.Database = StateDown
		st.Status = "unavailable"
		response.Fail(c, http.StatusServiceUnavailable, "database unavailable", st)
		return
	}
	response.OK(c, st)
}
