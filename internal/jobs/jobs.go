// Package jobs tracks asynchronous certificate batches.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/queue"
)

// Payload is the body of a certificate batch job.
type Payload struct {
	EventID    uuid.UUID          `json:"event_id"`
	Recipients []models.Recipient `json:"recipients"`
}

// KV is the subset of the go-redis client the tracker uses.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Publisher announces status changes to live watchers.
type Publisher interface {
	PublishJob(ctx context.Context, job *models.GenerationJob) error
}

// Tracker stores job status in Redis with a retention TTL.
type Tracker struct {
	client    KV
	ttl       time.Duration
	publisher Publisher
}

// NewTracker creates a tracker keeping job status for ttl.
func NewTracker(client KV, ttl time.Duration) *Tracker {
	return &Tracker{client: client, ttl: ttl}
}

// SetPublisher makes Save also publish each status.
func (t *Tracker) SetPublisher(p Publisher) { t.publisher = p }

func statusKey(id string) string { return "certjob:" + id }

// Save writes the job status, stamping UpdatedAt.
func (t *Tracker) Save(ctx context.Context, job *models.GenerationJob) error {
	job.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}
	if err := t.client.Set(ctx, statusKey(job.ID), raw, t.ttl).Err(); err != nil {
		return fmt.Errorf("save job status: %w", err)
	}
	if t.publisher != nil {
		// Watchers that miss an update still see it via GET /jobs/:id.
		_ = t.publisher.PublishJob(ctx, job)
	}
	return nil
}

// Get returns the job status, or models.ErrNotFound once it expired or never existed.
func (t *Tracker) Get(ctx context.Context, id string) (*models.GenerationJob, error) {
	raw, err := t.client.Get(ctx, statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job status: %w", err)
	}
	var job models.GenerationJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &job, nil
}

// Pusher enqueues jobs.
type Pusher interface {
	Push(ctx context.Context, job *queue.Job) error
}

// Service submits batches for the worker and reports their progress.
type Service struct {
	tracker *Tracker
	queue   Pusher
	logger  *zap.Logger
}

// NewService creates a job service.
func NewService(tracker *Tracker, q Pusher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tracker: tracker, queue: q, logger: logger}
}

// Submit records a queued job for the rows and pushes it to the worker queue.
func (s *Service) Submit(ctx context.Context, eventID uuid.UUID, rows []models.Recipient) (*models.GenerationJob, error) {
	job, err := queue.NewJob(queue.JobTypeCertificateBatch, Payload{EventID: eventID, Recipients: rows})
	if err != nil {
		return nil, err
	}
	status := &models.GenerationJob{ID: job.ID, EventID: eventID, Status: models.JobStatusQueued}
	if err := s.tracker.Save(ctx, status); err != nil {
		return nil, err
	}
	if err := s.queue.Push(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue batch: %w", err)
	}
	s.logger.Info("certificate batch queued", zap.String("job_id", job.ID), zap.String("event_id", eventID.String()), zap.Int("rows", len(rows)))
	return status, nil
}

// Get returns a job's status.
func (s *Service) Get(ctx context.Context, id string) (*models.GenerationJob, error) {
	return s.tracker.Get(ctx, id)
}
