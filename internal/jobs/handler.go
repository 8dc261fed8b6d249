package jobs

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/apierr"
	"github.com/certforge/backend/pkg/response"
)

// Handler serves job status.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a job status handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Get handles GET /jobs/:id.
func (h *Handler) Get(c *gin.Context) {
	job, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Respond(c, h.logger, err, "job not found")
		return
	}
	response.OK(c, job)
}
