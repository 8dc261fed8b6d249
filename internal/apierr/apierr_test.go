package apierr_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/backend/internal/apierr"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/response"
)

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", fmt.Errorf("create: %w", models.Invalid("font_size", "must be positive")), http.StatusBadRequest, "font_size: must be positive"},
		{"not found", fmt.Errorf("get: %w", models.ErrNotFound), http.StatusNotFound, "event not found"},
		{"artifact missing", models.ErrArtifactMissing, http.StatusNotFound, "certificate file not found"},
		{"conflict", models.ErrConflict, http.StatusConflict, "conflict"},
		{"unavailable", fmt.Errorf("list: %w", models.ErrUnavailable), http.StatusServiceUnavailable, "database unavailable, try again shortly"},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			apierr.Respond(c, nil, tc.err, "event not found")

			assert.Equal(t, tc.status, w.Code)
			var body response.Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tc.message, body.Error)
		})
	}
}
