package certificates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/redis"
)

// Locker serializes batches per event. unlock must be called once the batch is done.
type Locker interface {
	Lock(ctx context.Context, eventID uuid.UUID) (unlock func(), err error)
}

// NoopLocker lets every batch through; the unique index still prevents duplicates.
type NoopLocker struct{}

// Lock implements Locker.
func (NoopLocker) Lock(context.Context, uuid.UUID) (func(), error) { return func() {}, nil }

// RedisLocker holds a per-event Redis lease for the duration of a batch.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a locker whose leases expire after ttl if never released.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// LockKey is the Redis key guarding generation for an event.
func LockKey(eventID uuid.UUID) string {
	return "certgen:lock:" + eventID.String()
}

// Lock implements Locker. A held lease yields models.ErrConflict. If Redis itself fails the
// batch proceeds unlocked.
func (l *RedisLocker) Lock(ctx context.Context, eventID uuid.UUID) (func(), error) {
	lease, err := l.client.TryLock(ctx, LockKey(eventID), l.ttl)
	if errors.Is(err, redis.ErrLockHeld) {
		return nil, fmt.Errorf("%w: a generation batch is already running for this event", models.ErrConflict)
	}
	if err != nil {
		l.logger.Warn("generation lock unavailable, continuing without it", zap.String("event_id", eventID.String()), zap.Error(err))
		return func() {}, nil
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(ctx); err != nil {
			l.logger.Warn("generation lock release failed", zap.String("event_id", eventID.String()), zap.Error(err))
		}
	}, nil
}
