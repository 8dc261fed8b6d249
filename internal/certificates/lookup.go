package certificates

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/internal/render"
	"github.com/certforge/backend/pkg/storage"
)

// ListLimit caps GET /events/:id/certificates.
const ListLimit = 10000

// Download formats.
const (
	FormatPNG = "png"
	FormatPDF = "pdf"
)

// EventResolver finds events by ID or by ID-or-slug reference.
type EventResolver interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Resolve(ctx context.Context, ref string) (*models.Event, error)
}

// LookupStore is the persistence lookups need.
type LookupStore interface {
	FindByNameEmail(ctx context.Context, eventID *uuid.UUID, name, email string) (*models.Certificate, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Certificate, error)
}

var _ LookupStore = (*Repository)(nil)

// DownloadRequest identifies a recipient's certificate. Event is an event ID or slug;
// empty searches every event.
type DownloadRequest struct {
	Event  string `json:"event"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Format string `json:"format"`
}

// Artifact is a downloadable file.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Lookup serves recipient downloads, verification and organizer exports.
type Lookup struct {
	store  LookupStore
	events EventResolver
	blobs  storage.Store
	logger *zap.Logger
}

// NewLookup creates a lookup service.
func NewLookup(store LookupStore, events EventResolver, blobs storage.Store, logger *zap.Logger) *Lookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookup{store: store, events: events, blobs: blobs, logger: logger}
}

// Download returns the stored certificate for a name and email. The name matches
// case-insensitively; the email is normalized.
func (l *Lookup) Download(ctx context.Context, req DownloadRequest) (*Artifact, error) {
	name := strings.TrimSpace(req.Name)
	email := models.NormalizeEmail(req.Email)
	if name == "" || email == "" {
		return nil, models.Invalid("", "name and email are required")
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = FormatPNG
	}
	if format != FormatPNG && format != FormatPDF {
		return nil, models.Invalid("format", "must be png or pdf")
	}

	var eventID *uuid.UUID
	if ref := strings.TrimSpace(req.Event); ref != "" {
		e, err := l.events.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		eventID = &e.ID
	}

	cert, err := l.store.FindByNameEmail(ctx, eventID, name, email)
	if err != nil {
		return nil, err
	}
	body, err := l.readArtifact(ctx, cert.CertificatePath)
	if err != nil {
		return nil, err
	}

	a := &Artifact{Filename: fileBase(cert.Name) + "_certificate.png", ContentType: "image/png", Body: body}
	if format == FormatPDF {
		pdf, err := render.ToPDF(body)
		if err != nil {
			return nil, fmt.Errorf("convert to pdf: %w", err)
		}
		a = &Artifact{Filename: fileBase(cert.Name) + "_certificate.pdf", ContentType: "application/pdf", Body: pdf}
	}
	l.logger.Debug("certificate downloaded", zap.String("certificate_id", cert.ID.String()), zap.String("format", format))
	return a, nil
}

func (l *Lookup) readArtifact(ctx context.Context, key string) ([]byte, error) {
	rc, err := l.blobs.Open(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		l.logger.Warn("certificate file missing", zap.String("key", key))
		return nil, models.ErrArtifactMissing
	}
	if err != nil {
		return nil, fmt.Errorf("open certificate: %w", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	return body, nil
}

// Verify reports whether id names an issued certificate. Unknown or malformed IDs are
// not errors; they verify as invalid.
func (l *Lookup) Verify(ctx context.Context, id string) (*models.VerifyResult, error) {
	certID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return &models.VerifyResult{Valid: false}, nil
	}
	cert, err := l.store.GetByID(ctx, certID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.VerifyResult{Valid: false}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &models.VerifyResult{
		Valid:         true,
		CertificateID: &cert.ID,
		Name:          cert.Name,
		EventID:       &cert.EventID,
		IssuedAt:      &cert.CreatedAt,
	}
	e, err := l.events.Get(ctx, cert.EventID)
	switch {
	case err == nil:
		res.EventName = e.Name
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}
	return res, nil
}

// List returns an event's certificates, newest first.
func (l *Lookup) List(ctx context.Context, eventID uuid.UUID) ([]models.Certificate, error) {
	if _, err := l.events.Get(ctx, eventID); err != nil {
		return nil, err
	}
	list, err := l.store.ListByEvent(ctx, eventID, ListLimit)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].CertificateURL = l.blobs.URL(list[i].CertificatePath)
	}
	return list, nil
}

// ExportCSV writes name,email,certificate_id,created_at for every certificate of the event.
func (l *Lookup) ExportCSV(ctx context.Context, eventID uuid.UUID, w io.Writer) (*models.Event, error) {
	e, err := l.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	list, err := l.store.ListByEvent(ctx, eventID, 0)
	if err != nil {
		return nil, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "email", "certificate_id", "created_at"}); err != nil {
		return nil, err
	}
	for _, c := range list {
		rec := []string{c.Name, c.Email, c.ID.String(), c.CreatedAt.UTC().Format(time.RFC3339)}
		if err := cw.Write(rec); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return e, nil
}

// fileBase makes a recipient name safe for a Content-Disposition filename.
func fileBase(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "certificate"
	}
	return b.String()
}
