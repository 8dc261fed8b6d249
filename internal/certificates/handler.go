package certificates

import (
	"bytes"
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/apierr"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/response"
)

// BatchRunner generates certificates synchronously.
type BatchRunner interface {
	Generate(ctx context.Context, eventID uuid.UUID, csvData io.Reader) (*models.GenerationReport, error)
}

// BatchSubmitter queues a batch for the worker.
type BatchSubmitter interface {
	Submit(ctx context.Context, eventID uuid.UUID, rows []models.Recipient) (*models.GenerationJob, error)
}

// Finder serves recipient and organizer lookups.
type Finder interface {
	Download(ctx context.Context, req DownloadRequest) (*Artifact, error)
	Verify(ctx context.Context, id string) (*models.VerifyResult, error)
	List(ctx context.Context, eventID uuid.UUID) ([]models.Certificate, error)
	ExportCSV(ctx context.Context, eventID uuid.UUID, w io.Writer) (*models.Event, error)
}

var (
	_ BatchRunner = (*Generator)(nil)
	_ Finder      = (*Lookup)(nil)
)

// Handler handles certificate HTTP endpoints.
type Handler struct {
	runner BatchRunner
	async  BatchSubmitter // nil when Redis is not configured
	events EventFinder
	finder Finder
	logger *zap.Logger
}

// NewHandler creates a certificate handler. async may be nil.
func NewHandler(runner BatchRunner, async BatchSubmitter, events EventFinder, finder Finder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runner: runner, async: async, events: events, finder: finder, logger: logger}
}

// Generate handles POST /events/:id/generate (multipart csv_file). With ?async=1 the batch
// is queued and 202 is returned with the job.
func (h *Handler) Generate(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	fh, err := c.FormFile("csv_file")
	if err != nil {
		response.BadRequest(c, "csv_file: file is required")
		return
	}
	if fh.Size > MaxCSVFileSize {
		response.BadRequest(c, "csv_file: exceeds 5MB")
		return
	}
	file, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "csv_file: cannot read upload")
		return
	}
	defer file.Close()
	ctx := c.Request.Context()

	if c.Query("async") == "1" || c.Query("async") == "true" {
		h.submit(c, eventID, file)
		return
	}

	report, err := h.runner.Generate(ctx, eventID, io.LimitReader(file, MaxCSVFileSize))
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	response.OK(c, report)
}

func (h *Handler) submit(c *gin.Context, eventID uuid.UUID, csvData io.Reader) {
	if h.async == nil {
		response.ServiceUnavailable(c, "asynchronous generation is not configured")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.events.Get(ctx, eventID); err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	rows, err := ParseRecipients(io.LimitReader(csvData, MaxCSVFileSize))
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	job, err := h.async.Submit(ctx, eventID, rows)
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	response.Accepted(c, gin.H{"job_id": job.ID, "status": job.Status})
}

// Download handles POST /certificates/download.
func (h *Handler) Download(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.finder.Download(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, h.logger, err, "certificate not found")
		return
	}
	response.Attachment(c, a.Filename, a.ContentType, a.Body)
}

// Verify handles GET /certificates/verify/:id.
func (h *Handler) Verify(c *gin.Context) {
	res, err := h.finder.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Respond(c, h.logger, err, "certificate not found")
		return
	}
	response.OK(c, res)
}

// List handles GET /events/:id/certificates.
func (h *Handler) List(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.finder.List(c.Request.Context(), eventID)
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	response.OK(c, list)
}

// Export handles GET /events/:id/certificates/export.
func (h *Handler) Export(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var buf bytes.Buffer
	e, err := h.finder.ExportCSV(c.Request.Context(), eventID, &buf)
	if err != nil {
		apierr.Respond(c, h.logger, err, "event not found")
		return
	}
	name := e.ID.String()
	if e.Slug != nil {
		name = *e.Slug
	}
	response.Attachment(c, name+"_certificates.csv", "text/csv; charset=utf-8", buf.Bytes())
}
