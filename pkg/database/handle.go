package database

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Handle.Pool before the first successful connect.
var ErrNotConnected = errors.New("database not connected")

// Handle is the shared store handle passed to every repository. It starts empty and
// becomes usable once Connect succeeds, so the HTTP server can come up (and report 503)
// while the database is still starting.
type Handle struct {
	pool   atomic.Pointer[pgxpool.Pool]
	logger *zap.Logger
}

// NewHandle creates an unconnected handle.
func NewHandle(logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{logger: logger}
}

// NewHandleFromPool wraps an already connected pool.
func NewHandleFromPool(pool *pgxpool.Pool) *Handle {
	h := NewHandle(nil)
	h.pool.Store(pool)
	return h
}

// Connect opens the pool with bounded retries, applies migrations and publishes the pool.
func (h *Handle) Connect(ctx context.Context, dsn string, attempts int) error {
	pool, err := NewPostgresPool(ctx, dsn, attempts, h.logger)
	if err != nil {
		return err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	h.pool.Store(pool)
	h.logger.Info("database ready")
	return nil
}

// KeepConnecting runs Connect in rounds until it succeeds or ctx is done, pausing interval
// between rounds. An unparsable DSN fails immediately.
func (h *Handle) KeepConnecting(ctx context.Context, dsn string, attempts int, interval time.Duration) error {
	if _, err := pgxpool.ParseConfig(dsn); err != nil {
		return fmt.Errorf("parse pgx config: %w", err)
	}
	for {
		err := h.Connect(ctx, dsn, attempts)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Error("database unavailable, retrying", zap.Duration("retry_in", interval), zap.Error(err))
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Pool returns the connection pool, or ErrNotConnected.
func (h *Handle) Pool() (*pgxpool.Pool, error) {
	p := h.pool.Load()
	if p == nil {
		return nil, ErrNotConnected
	}
	return p, nil
}

// Ping checks connectivity for health reporting.
func (h *Handle) Ping(ctx context.Context) error {
	p, err := h.Pool()
	if err != nil {
		return err
	}
	return p.Ping(ctx)
}

// Close releases the pool if one was opened.
func (h *Handle) Close() {
	if p := h.pool.Swap(nil); p != nil {
		p.Close()
	}
}

// IsUnavailable reports whether err means the database cannot be reached.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
