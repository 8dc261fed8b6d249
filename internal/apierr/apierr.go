// Package apierr maps service errors onto the JSON response envelope.
package apierr

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/response"
)

// Respond writes the status for err. notFound is the message used for models.ErrNotFound.
// Unclassified errors are logged and reported as 500 without detail.
func Respond(c *gin.Context, logger *zap.Logger, err error, notFound string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(c, verr.Error())
	case errors.Is(err, models.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, models.ErrArtifactMissing):
		response.NotFound(c, "certificate file not found")
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, notFound)
	case errors.Is(err, models.ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, models.ErrUnavailable):
		response.ServiceUnavailable(c, "database unavailable, try again shortly")
	default:
		if logger != nil {
			logger.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
		}
		response.Internal(c, "internal server error")
	}
}
