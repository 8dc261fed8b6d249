package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	connectBaseDelay = 500 * time.Millisecond
	connectMaxDelay  = 10 * time.Second
)

// NewPostgresPool creates a pgx connection pool for PostgreSQL, retrying up to attempts times
// with exponential backoff until the database answers a ping.
func NewPostgresPool(ctx context.Context, dsn string, attempts int, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("PostgreSQL connection pool established", zap.Int("attempt", attempt))
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn("PostgreSQL not reachable", zap.Int("attempt", attempt), zap.Int("max_attempts", attempts), zap.Error(err))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ConnectBackoff(attempt)):
		}
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", attempts, lastErr)
}

// ConnectBackoff is the delay after the given 1-based failed attempt.
func ConnectBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return connectMaxDelay
	}
	d := connectBaseDelay << (attempt - 1)
	if d > connectMaxDelay {
		d = connectMaxDelay
	}
	return d
}
