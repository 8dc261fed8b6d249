package certificates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/database"
)

const certificateColumns = `id, event_id, name, email, certificate_path, created_at`

// Repository handles certificate persistence.
type Repository struct {
	db *database.Handle
}

// NewRepository creates a certificate repository.
func NewRepository(db *database.Handle) *Repository {
	return &Repository{db: db}
}

const insertCertificate = `INSERT INTO certificates (id, event_id, name, email, certificate_path)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (event_id, email) DO NOTHING
	RETURNING created_at`

// Insert stores one certificate. It reports false when the (event, email) pair already exists.
func (r *Repository) Insert(ctx context.Context, c *models.Certificate) (bool, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return false, storeErr(err)
	}
	err = pool.QueryRow(ctx, insertCertificate, c.ID, c.EventID, c.Name, c.Email, c.CertificatePath).Scan(&c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert certificate: %w", storeErr(err))
	}
	return true, nil
}

// InsertBatch stores certs in one transaction. inserted[i] is false when certs[i] lost to an
// existing row for the same event and email.
func (r *Repository) InsertBatch(ctx context.Context, certs []models.Certificate) ([]bool, error) {
	inserted := make([]bool, len(certs))
	if len(certs) == 0 {
		return inserted, nil
	}
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", storeErr(err))
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range certs {
		c := &certs[i]
		batch.Queue(insertCertificate, c.ID, c.EventID, c.Name, c.Email, c.CertificatePath)
	}
	results := tx.SendBatch(ctx, batch)
	for i := range certs {
		err := results.QueryRow().Scan(&certs[i].CreatedAt)
		switch {
		case err == nil:
			inserted[i] = true
		case errors.Is(err, pgx.ErrNoRows):
		default:
			results.Close()
			return nil, fmt.Errorf("insert certificate %d: %w", i, storeErr(err))
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", storeErr(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", storeErr(err))
	}
	return inserted, nil
}

// FindByEventAndEmail returns the certificate for an event and normalized email.
func (r *Repository) FindByEventAndEmail(ctx context.Context, eventID uuid.UUID, email string) (*models.Certificate, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	const q = `SELECT ` + certificateColumns + ` FROM certificates WHERE event_id = $1 AND email = $2`
	c, err := scanCertificate(pool.QueryRow(ctx, q, eventID, email))
	if err != nil {
		return nil, fmt.Errorf("find certificate: %w", storeErr(err))
	}
	return c, nil
}

// FindByNameEmail matches name case-insensitively and email exactly, newest first.
// A nil eventID searches every event.
func (r *Repository) FindByNameEmail(ctx context.Context, eventID *uuid.UUID, name, email string) (*models.Certificate, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	const q = `SELECT ` + certificateColumns + ` FROM certificates
		WHERE ($1::uuid IS NULL OR event_id = $1) AND lower(name) = lower($2) AND email = $3
		ORDER BY created_at DESC
		LIMIT 1`
	c, err := scanCertificate(pool.QueryRow(ctx, q, eventID, name, email))
	if err != nil {
		return nil, fmt.Errorf("find certificate by name: %w", storeErr(err))
	}
	return c, nil
}

// GetByID returns a certificate by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	c, err := scanCertificate(pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get certificate: %w", storeErr(err))
	}
	return c, nil
}

// ListByEvent returns certificates for an event, newest first. limit <= 0 means no limit.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Certificate, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	const q = `SELECT ` + certificateColumns + ` FROM certificates
		WHERE event_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2::int, 0)`
	rows, err := pool.Query(ctx, q, eventID, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", storeErr(err))
	}
	defer rows.Close()

	list := make([]models.Certificate, 0)
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// EmailsByEvent returns every stored email for an event in one query.
func (r *Repository) EmailsByEvent(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	rows, err := pool.Query(ctx, `SELECT email FROM certificates WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query emails: %w", storeErr(err))
	}
	emails, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect emails: %w", storeErr(err))
	}
	return emails, nil
}

// Count returns the number of certificates.
func (r *Repository) Count(ctx context.Context) (int, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return 0, storeErr(err)
	}
	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count certificates: %w", storeErr(err))
	}
	return n, nil
}

// GroupedByEvent returns certificate counts per event, largest first.
func (r *Repository) GroupedByEvent(ctx context.Context, limit int) ([]models.EventCertificateCount, error) {
	pool, err := r.db.Pool()
	if err != nil {
		return nil, storeErr(err)
	}
	const q = `SELECT e.id, e.name, e.slug, COUNT(c.id) AS n
		FROM certificates c
		JOIN events e ON e.id = c.event_id
		GROUP BY e.id, e.name, e.slug
		ORDER BY n DESC, e.name
		LIMIT $1`
	rows, err := pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("group certificates: %w", storeErr(err))
	}
	defer rows.Close()

	list := make([]models.EventCertificateCount, 0)
	for rows.Next() {
		var ec models.EventCertificateCount
		if err := rows.Scan(&ec.EventID, &ec.EventName, &ec.EventSlug, &ec.Count); err != nil {
			return nil, err
		}
		list = append(list, ec)
	}
	return list, rows.Err()
}

func scanCertificate(row pgx.Row) (*models.Certificate, error) {
	var c models.Certificate
	if err := row.Scan(&c.ID, &c.EventID, &c.Name, &c.Email, &c.CertificatePath, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
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
