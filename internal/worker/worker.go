package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/jobs"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/queue"
)

// JobSource is the queue the processor drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// StatusStore persists job progress.
type StatusStore interface {
	Save(ctx context.Context, job *models.GenerationJob) error
}

// BatchGenerator runs one certificate batch.
type BatchGenerator interface {
	GenerateRows(ctx context.Context, eventID uuid.UUID, rows []models.Recipient) (*models.GenerationReport, error)
}

// BatchProcessor processes certificate batch jobs: generate, record the report, retry
// transient failures.
type BatchProcessor struct {
	source    JobSource
	status    StatusStore
	generator BatchGenerator
	logger    *zap.Logger
	backoff   time.Duration
	drain     time.Duration
}

// DefaultDrainTimeout is how long a running job may continue after Run's context is cancelled.
const DefaultDrainTimeout = 25 * time.Second

// NewBatchProcessor creates a certificate batch processor.
func NewBatchProcessor(source JobSource, status StatusStore, generator BatchGenerator, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{source: source, status: status, generator: generator, logger: logger, backoff: queue.RetryBackoff, drain: DefaultDrainTimeout}
}

// SetBackoff overrides the pause after a failed dequeue or job.
func (p *BatchProcessor) SetBackoff(d time.Duration) { p.backoff = d }

// SetDrainTimeout overrides DefaultDrainTimeout.
func (p *BatchProcessor) SetDrainTimeout(d time.Duration) { p.drain = d }

// errRetry marks failures worth another attempt.
var errRetry = errors.New("transient failure")

// Process executes one certificate batch job.
func (p *BatchProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeCertificateBatch {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload jobs.Payload
	if err := job.Decode(&payload); err != nil {
		p.fail(ctx, job.ID, payload.EventID, err)
		return err
	}

	p.save(ctx, &models.GenerationJob{ID: job.ID, EventID: payload.EventID, Status: models.JobStatusRunning})
	report, err := p.generator.GenerateRows(ctx, payload.EventID, payload.Recipients)
	if err != nil {
		if errors.Is(err, models.ErrUnavailable) || errors.Is(err, models.ErrConflict) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", errRetry, err)
		}
		p.fail(ctx, job.ID, payload.EventID, err)
		return err
	}

	p.save(ctx, &models.GenerationJob{ID: job.ID, EventID: payload.EventID, Status: models.JobStatusDone, Report: report})
	p.logger.Info("certificate batch job completed",
		zap.String("job_id", job.ID),
		zap.String("event_id", payload.EventID.String()),
		zap.Int("generated", report.Generated),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on transient error. It returns when ctx is
// done. A job in flight keeps running for up to the drain timeout after that; if it is cut off it
// goes back on the queue.
func (p *BatchProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("certificate worker stopping")
			return
		default:
		}

		job, err := p.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("dequeue error", zap.Error(err))
			}
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		err = p.processDraining(ctx, job)
		if err == nil {
			continue
		}
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if !errors.Is(err, errRetry) {
			continue
		}
		p.retry(ctx, job, err)
		p.sleep(ctx)
	}
}

// processDraining runs Process on a context that outlives ctx by the drain timeout.
func (p *BatchProcessor) processDraining(ctx context.Context, job *queue.Job) error {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		t := time.NewTimer(p.drain)
		defer t.Stop()
		select {
		case <-jobCtx.Done():
		case <-t.C:
			p.logger.Warn("drain timeout reached, interrupting job", zap.String("job_id", job.ID))
			cancel()
		}
	})
	defer stop()
	return p.Process(jobCtx, job)
}

// retry puts job back on the queue, or marks it failed once it is dead-lettered or cannot be requeued.
func (p *BatchProcessor) retry(ctx context.Context, job *queue.Job, cause error) {
	var payload jobs.Payload
	_ = job.Decode(&payload)
	dead, err := p.source.Retry(context.WithoutCancel(ctx), job)
	switch {
	case err != nil:
		p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		p.fail(ctx, job.ID, payload.EventID, fmt.Errorf("%w (requeue failed: %v)", cause, err))
	case dead:
		p.fail(ctx, job.ID, payload.EventID, cause)
	default:
		p.save(ctx, &models.GenerationJob{ID: job.ID, EventID: payload.EventID, Status: models.JobStatusQueued})
	}
}

func (p *BatchProcessor) fail(ctx context.Context, id string, eventID uuid.UUID, cause error) {
	p.save(ctx, &models.GenerationJob{ID: id, EventID: eventID, Status: models.JobStatusFailed, Error: cause.Error()})
}

func (p *BatchProcessor) save(ctx context.Context, job *models.GenerationJob) {
	if err := p.status.Save(context.WithoutCancel(ctx), job); err != nil {
		p.logger.Warn("job status update failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (p *BatchProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
