// Package events manages certificate events: template upload, slugs, lookup and deletion.
package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/internal/render"
	"github.com/certforge/backend/internal/slug"
	"github.com/certforge/backend/pkg/database"
	"github.com/certforge/backend/pkg/storage"
)

const (
	// ListLimit caps GET /events.
	ListLimit = 1000
	// cleanupConcurrency bounds parallel artifact deletes after an event is removed.
	cleanupConcurrency = 8
	// DefaultFontSize and DefaultFontColor apply when the form omits them.
	DefaultFontSize  = 60
	DefaultFontColor = "#000000"

	slugAttempts = 3
)

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetBySlug(ctx context.Context, slug string) (*models.Event, error)
	List(ctx context.Context, limit int) ([]models.Event, error)
	SlugsLike(ctx context.Context, base string) ([]string, error)
	DeleteCascade(ctx context.Context, id uuid.UUID) (*Deleted, error)
}

var _ Store = (*Repository)(nil)

// CreateInput is a new event with its uploaded template.
type CreateInput struct {
	Name             string
	TemplateFilename string
	Template         io.Reader
	TextPositionX    int
	TextPositionY    int
	FontSize         int
	FontColor        string
	FontStyle        string
}

// Service implements event operations.
type Service struct {
	store  Store
	blobs  storage.Store
	logger *zap.Logger
}

// NewService creates an event service.
func NewService(store Store, blobs storage.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, blobs: blobs, logger: logger}
}

// Create validates the input, stores the template and inserts the event with a unique slug.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Event, error) {
	e, err := validate(in)
	if err != nil {
		return nil, err
	}
	data, contentType, err := readTemplate(in.TemplateFilename, in.Template)
	if err != nil {
		return nil, err
	}

	e.ID = uuid.New()
	e.TemplatePath = storage.TemplateKey(e.ID.String(), in.TemplateFilename)
	if err := s.blobs.Put(ctx, e.TemplatePath, contentType, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, fmt.Errorf("store template: %w", err)
	}

	if err := s.insertWithSlug(ctx, e); err != nil {
		if derr := s.blobs.Delete(ctx, e.TemplatePath); derr != nil {
			s.logger.Warn("template cleanup failed", zap.String("key", e.TemplatePath), zap.Error(derr))
		}
		return nil, err
	}
	s.decorate(e)
	s.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.Stringp("slug", e.Slug))
	return e, nil
}

// insertWithSlug picks the next free slug and inserts, recomputing when a concurrent
// create takes the same slug first.
func (s *Service) insertWithSlug(ctx context.Context, e *models.Event) error {
	base := slug.Slugify(e.Name)
	if base == "" {
		base = slug.Fallback
	}
	var err error
	for attempt := 1; attempt <= slugAttempts; attempt++ {
		var existing []string
		existing, err = s.store.SlugsLike(ctx, base)
		if err != nil {
			return fmt.Errorf("load slugs: %w", err)
		}
		sl := slug.NextAvailable(base, existing)
		e.Slug = &sl
		err = s.store.Create(ctx, e)
		if err == nil {
			return nil
		}
		if !database.IsUniqueViolation(err, SlugConstraint) {
			return err
		}
		s.logger.Debug("slug taken, retrying", zap.String("slug", sl), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("%w: slug %q is taken", models.ErrConflict, base)
}

// Get returns an event by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.decorate(e)
	return e, nil
}

// GetBySlug returns an event by slug.
func (s *Service) GetBySlug(ctx context.Context, sl string) (*models.Event, error) {
	e, err := s.store.GetBySlug(ctx, sl)
	if err != nil {
		return nil, err
	}
	s.decorate(e)
	return e, nil
}

// Resolve finds an event by ID when ref parses as a UUID, otherwise by slug.
func (s *Service) Resolve(ctx context.Context, ref string) (*models.Event, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.Get(ctx, id)
	}
	return s.GetBySlug(ctx, ref)
}

// List returns events newest first.
func (s *Service) List(ctx context.Context) ([]models.Event, error) {
	list, err := s.store.List(ctx, ListLimit)
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.decorate(&list[i])
	}
	return list, nil
}

// Delete removes an event with its certificates, then their stored files (best effort).
// It returns the number of certificates removed.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (int, error) {
	d, err := s.store.DeleteCascade(ctx, id)
	if err != nil {
		return 0, err
	}
	keys := append([]string{d.TemplatePath}, d.CertificatePaths...)
	var eg errgroup.Group
	eg.SetLimit(cleanupConcurrency)
	for _, key := range keys {
		eg.Go(func() error {
			if err := s.blobs.Delete(ctx, key); err != nil {
				s.logger.Warn("artifact cleanup failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		})
	}
	_ = eg.Wait()
	s.logger.Info("event deleted", zap.String("event_id", id.String()), zap.Int("certificates", len(d.CertificatePaths)))
	return len(d.CertificatePaths), nil
}

func (s *Service) decorate(e *models.Event) {
	e.TemplateURL = s.blobs.URL(e.TemplatePath)
}

func validate(in CreateInput) (*models.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.Invalid("name", "is required")
	}
	if in.Template == nil || in.TemplateFilename == "" {
		return nil, models.Invalid("template", "is required")
	}
	if !storage.ValidTemplateExtension(in.TemplateFilename) {
		return nil, models.Invalid("template", "must be a PNG or JPEG image")
	}

	if in.FontSize <= 0 {
		return nil, models.Invalid("font_size", "must be positive")
	}
	if in.TextPositionX < 0 || in.TextPositionY < 0 {
		return nil, models.Invalid("text_position", "must not be negative")
	}

	color := strings.TrimSpace(in.FontColor)
	if color == "" {
		color = DefaultFontColor
	}
	if _, err := render.ParseHexColor(color); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(color, "#") {
		color = "#" + color
	}

	e := &models.Event{
		Name:          name,
		TextPositionX: in.TextPositionX,
		TextPositionY: in.TextPositionY,
		FontSize:      in.FontSize,
		FontColor:     strings.ToUpper(color),
	}
	if style := strings.ToLower(strings.TrimSpace(in.FontStyle)); style != "" {
		if !render.ValidStyle(style) {
			return nil, models.Invalid("font_style", "must be one of bold, regular, italic, bold-italic")
		}
		e.FontStyle = &style
	}
	return e, nil
}

// readTemplate reads the upload, enforcing the size limit and checking the sniffed type
// agrees with an image extension.
func readTemplate(filename string, r io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, storage.MaxTemplateFileSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read template: %w", err)
	}
	if len(data) > storage.MaxTemplateFileSize {
		return nil, "", models.Invalid("template", "exceeds 10MB")
	}
	if len(data) == 0 {
		return nil, "", models.Invalid("template", "is empty")
	}
	mt := mimetype.Detect(data)
	if _, ok := storage.AllowedTemplateTypes[mt.String()]; !ok {
		return nil, "", models.Invalid("template", fmt.Sprintf("content is %s, want PNG or JPEG", mt.String()))
	}
	if _, err := render.DecodeTemplate(bytes.NewReader(data)); err != nil {
		return nil, "", models.Invalid("template", "image cannot be decoded")
	}
	return data, storage.ContentTypeForFilename(path.Base(filename)), nil
}
