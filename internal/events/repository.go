package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/database"
)

// SlugConstraint is the unique constraint backing event slugs.
const SlugConstraint = "events_slug_key"

const eventColumns = `id, slug, name, template_path, text_position_x, text_position_y, font_size, font_color, font_style, created_at`

// Deleted describes the rows removed by DeleteCascade.
type Deleted struct {
	TemplatePath     string
	CertificatePaths []string
}

// Repository handles event persistence.
type Repository struct {
	db *database.Handle
}

// NewRepository creates an event repository.
func NewRepository(db *database.Handle) *Repository {
	return &Repository{db: db}
}

// Create inserts a new event. ID must be set; created_at is filled in.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	pool, err := r.db.Pool()
	if err != nil {
		return storeErr(err)
	}
	const q = `INSERT INTO events (id, slug, name, template_path, text_position_x, text_position_y, font_size, font_color, font_style)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`
	err = pool.QueryRow(ctx, q, e.ID, e.Slug, e.Name, e.TemplatePath, e.TextPositionX, e.TextPositionY, e.FontSize, e.FontColor, e.FontStyle).
		Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", storeErr(err))
	}
	return nil
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	e, err := scanEvent(pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get event: %w", storeErr(err))
	}
	return e, nil
}

// GetBySlug returns an event by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Event, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	e, err := scanEvent(pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE slug = $1`, slug))
	if err != nil {
		return nil, fmt.Errorf("get event by slug: %w", storeErr(err))
	}
	return e, nil
}

// List returns up to limit events, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Event, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	rows, err := pool.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", storeErr(err))
	}
	defer rows.Close()

	list := make([]models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// Recent returns the limit newest events.
func (r *Repository) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	return r.List(ctx, limit)
}

// SlugsLike returns existing slugs equal to base or starting with base followed by a hyphen.
func (r *Repository) SlugsLike(ctx context.Context, base string) ([]string, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	const q = `SELECT slug FROM events WHERE slug = $1 OR slug LIKE $1 || '-%'`
	rows, err := pool.Query(ctx, q, base)
	if err != nil {
		return nil, fmt.Errorf("query slugs: %w", storeErr(err))
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slugs = append(slugs, s)
	}
	return slugs, rows.Err()
}

// DeleteCascade removes an event and, through the foreign key, its certificates.
// It returns the artifact paths that belonged to the removed rows.
func (r *Repository) DeleteCascade(ctx context.Context, id uuid.UUID) (*Deleted, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", storeErr(err))
	}
	defer tx.Rollback(ctx)

	var d Deleted
	// FOR UPDATE blocks concurrent certificate inserts referencing the event.
	err = tx.QueryRow(ctx, `SELECT template_path FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&d.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", storeErr(err))
	}

	rows, err := tx.Query(ctx, `DELETE FROM certificates WHERE event_id = $1 RETURNING certificate_path`, id)
	if err == nil {
		d.CertificatePaths, err = pgx.CollectRows(rows, pgx.RowTo[string])
	}
	if err != nil {
		return nil, fmt.Errorf("delete certificates: %w", storeErr(err))
	}
	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete event: %w", storeErr(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", storeErr(err))
	}
	return &d, nil
}

// Count returns the number of events.
func (r *Repository) Count(ctx context.Context) (int, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return 0, storeErr(err)
	}
	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", storeErr(err))
	}
	return n, nil
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Slug, &e.Name, &e.TemplatePath, &e.TextPositionX, &e.TextPositionY, &e.FontSize, &e.FontColor, &e.FontStyle, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func storeErr(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return models.ErrNotFound
	case database.IsUnavailable(err):
		return fmt.Errorf("%w: %v", models.ErrUnavailable, err)
	}
	return err
}
