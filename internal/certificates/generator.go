// Package certificates generates, stores and serves per-recipient certificates.
package certificates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/internal/render"
	"github.com/certforge/backend/pkg/storage"
)

// EventFinder loads the event a batch is generated for.
type EventFinder interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// BatchStore is the persistence a batch needs.
type BatchStore interface {
	EmailsByEvent(ctx context.Context, eventID uuid.UUID) ([]string, error)
	InsertBatch(ctx context.Context, certs []models.Certificate) ([]bool, error)
	Insert(ctx context.Context, c *models.Certificate) (bool, error)
}

// Renderer draws a recipient name onto a template.
type Renderer interface {
	Render(tpl image.Image, text string, l render.Layout) ([]byte, error)
}

var (
	_ BatchStore = (*Repository)(nil)
	_ Renderer   = (*render.Renderer)(nil)
)

// Generator runs batch certificate generation for an event.
type Generator struct {
	events   EventFinder
	store    BatchStore
	renderer Renderer
	blobs    storage.Store
	locker   Locker
	logger   *zap.Logger
}

// NewGenerator creates a generator. A nil locker means no cross-request lock.
func NewGenerator(events EventFinder, store BatchStore, renderer Renderer, blobs storage.Store, locker Locker, logger *zap.Logger) *Generator {
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{events: events, store: store, renderer: renderer, blobs: blobs, locker: locker, logger: logger}
}

// Generate parses a recipient CSV and runs GenerateRows on it. Header problems are rejected
// before anything is rendered.
func (g *Generator) Generate(ctx context.Context, eventID uuid.UUID, csvData io.Reader) (*models.GenerationReport, error) {
	event, err := g.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rows, err := ParseRecipients(csvData)
	if err != nil {
		return nil, err
	}
	return g.run(ctx, event, rows)
}

// GenerateRows issues one certificate per new (event, email) pair in rows.
//
// Rows with an empty name or email, and emails already issued for the event or seen earlier
// in the batch, are skipped. A failure on one row, including text the database cannot store,
// is recorded in the report and the batch continues. Running the same rows twice yields no new certificates.
func (g *Generator) GenerateRows(ctx context.Context, eventID uuid.UUID, rows []models.Recipient) (*models.GenerationReport, error) {
	event, err := g.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return g.run(ctx, event, rows)
}

func (g *Generator) run(ctx context.Context, event *models.Event, rows []models.Recipient) (*models.GenerationReport, error) {
	started := time.Now()
	eventID := event.ID
	unlock, err := g.locker.Lock(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tpl, err := g.loadTemplate(ctx, event.TemplatePath)
	if err != nil {
		return nil, err
	}
	existing, err := g.store.EmailsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load issued emails: %w", err)
	}
	seen := make(map[string]struct{}, len(existing)+len(rows))
	for _, e := range existing {
		seen[models.NormalizeEmail(e)] = struct{}{}
	}

	report := &models.GenerationReport{Errors: []string{}}
	layout := render.LayoutFor(event)
	staged := make([]models.Certificate, 0, len(rows))
	stagedRows := make([]int, 0, len(rows))

	for i, row := range rows {
		name := strings.TrimSpace(row.Name)
		email := models.NormalizeEmail(row.Email)
		if name == "" || email == "" {
			report.Skipped++
			continue
		}
		if !storableText(row.Name) || !storableText(row.Email) {
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: name and email must be valid UTF-8 without NUL bytes", i+1))
			continue
		}
		if _, dup := seen[email]; dup {
			report.Skipped++
			continue
		}
		seen[email] = struct{}{}

		cert, err := g.issue(ctx, tpl, layout, eventID, name, email)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("row %d (%s): %v", i+1, name, err))
			continue
		}
		staged = append(staged, *cert)
		stagedRows = append(stagedRows, i+1)
	}

	if err := g.persist(ctx, staged, stagedRows, report); err != nil {
		return nil, err
	}

	g.logger.Info("certificate batch finished",
		zap.String("event_id", eventID.String()),
		zap.Int("rows", len(rows)),
		zap.Int("generated", report.Generated),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return report, nil
}

// persist stores staged certificates in one batch. If the batch is rejected while the database is
// reachable, rows are stored one at a time and each failure becomes a row error.
func (g *Generator) persist(ctx context.Context, staged []models.Certificate, rowNums []int, report *models.GenerationReport) error {
	inserted, err := g.store.InsertBatch(ctx, staged)
	if err != nil {
		if errors.Is(err, models.ErrUnavailable) || ctx.Err() != nil {
			g.discard(ctx, staged)
			return fmt.Errorf("persist certificates: %w", err)
		}
		g.logger.Warn("certificate batch insert rejected, storing rows individually", zap.Error(err))
		return g.persistEach(ctx, staged, rowNums, report)
	}
	var lost []models.Certificate
	for i, ok := range inserted {
		if ok {
			report.Generated++
			continue
		}
		report.Skipped++
		lost = append(lost, staged[i])
	}
	g.discard(ctx, lost)
	return nil
}

func (g *Generator) persistEach(ctx context.Context, staged []models.Certificate, rowNums []int, report *models.GenerationReport) error {
	var lost []models.Certificate
	for i := range staged {
		c := &staged[i]
		ok, err := g.store.Insert(ctx, c)
		switch {
		case err == nil && ok:
			report.Generated++
		case err == nil:
			report.Skipped++
			lost = append(lost, *c)
		case errors.Is(err, models.ErrUnavailable) || ctx.Err() != nil:
			g.discard(ctx, append(lost, staged[i:]...))
			return fmt.Errorf("persist certificates: %w", err)
		default:
			report.Errors = append(report.Errors, fmt.Sprintf("row %d (%s): %v", rowNums[i], c.Name, err))
			lost = append(lost, *c)
		}
	}
	g.discard(ctx, lost)
	return nil
}

// storableText reports whether s can be stored in a PostgreSQL text column.
func storableText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

func (g *Generator) issue(ctx context.Context, tpl image.Image, layout render.Layout, eventID uuid.UUID, name, email string) (*models.Certificate, error) {
	img, err := g.renderer.Render(tpl, name, layout)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	id := uuid.New()
	key := storage.CertificateKey(id.String())
	if err := g.blobs.Put(ctx, key, "image/png", bytes.NewReader(img), int64(len(img))); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &models.Certificate{
		ID:              id,
		EventID:         eventID,
		Name:            name,
		Email:           email,
		CertificatePath: key,
	}, nil
}

func (g *Generator) loadTemplate(ctx context.Context, key string) (image.Image, error) {
	rc, err := g.blobs.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", key, err)
	}
	defer rc.Close()
	tpl, err := render.DecodeTemplate(rc)
	if err != nil {
		return nil, fmt.Errorf("decode template %s: %w", key, err)
	}
	return tpl, nil
}

// discard removes stored artifacts whose rows were never persisted.
func (g *Generator) discard(ctx context.Context, certs []models.Certificate) {
	ctx = context.WithoutCancel(ctx)
	for _, c := range certs {
		if err := g.blobs.Delete(ctx, c.CertificatePath); err != nil {
			g.logger.Warn("orphaned certificate cleanup failed", zap.String("key", c.CertificatePath), zap.Error(err))
		}
	}
}
