package events

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/apierr"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/response"
	"github.com/certforge/backend/pkg/storage"
)

// Servicer is the event service as seen by the HTTP layer.
type Servicer interface {
	Create(ctx context.Context, in CreateInput) (*models.Event, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetBySlug(ctx context.Context, slug string) (*models.Event, error)
	List(ctx context.Context) ([]models.Event, error)
	Delete(ctx context.Context, id uuid.UUID) (int, error)
}

var _ Servicer = (*Service)(nil)

// Handler handles event HTTP endpoints.
type Handler struct {
	svc    Servicer
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(svc Servicer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /events (multipart: name, template, text_position_x, text_position_y,
// font_size, font_color, font_style).
func (h *Handler) Create(c *gin.Context) {
	fh, err := c.FormFile("template")
	if err != nil {
		response.BadRequest(c, "template: file is required")
		return
	}
	if fh.Size > storage.MaxTemplateFileSize {
		response.BadRequest(c, "template: exceeds 10MB")
		return
	}

	in := CreateInput{
		Name:             c.PostForm("name"),
		TemplateFilename: fh.Filename,
		FontColor:        c.PostForm("font_color"),
		FontStyle:        c.PostForm("font_style"),
	}
	ints := []struct {
		field string
		dst   *int
		def   string
	}{
		{"text_position_x", &in.TextPositionX, ""},
		{"text_position_y", &in.TextPositionY, ""},
		{"font_size", &in.FontSize, strconv.Itoa(DefaultFontSize)},
	}
	for _, f := range ints {
		raw := strings.TrimSpace(c.DefaultPostForm(f.field, f.def))
		if raw == "" {
			response.BadRequest(c, f.field+": is required")
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, f.field+": must be an integer")
			return
		}
		*f.dst = n
	}

	file, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "template: cannot read upload")
		return
	}
	defer file.Close()
	in.Template = file

	e, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	response.Created(c, e)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	response.OK(c, e)
}

// GetBySlug handles GET /events/slug/:slug.
func (h *Handler) GetBySlug(c *gin.Context) {
	e, err := h.svc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	response.OK(c, e)
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /events/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	n, err := h.svc.Delete(c.Request.Context(), id)
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	response.OK(c, gin.H{"deleted": true, "certificates_deleted": n})
}
