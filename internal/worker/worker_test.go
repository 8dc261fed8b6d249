package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/certforge/backend/internal/jobs"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/internal/worker"
	"github.com/certforge/backend/pkg/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chanSource hands out jobs from a channel and records retries.
type chanSource struct {
	jobs chan *queue.Job

	mu       sync.Mutex
	retried  []*queue.Job
	retryErr error
}

func (s *chanSource) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case j := <-s.jobs:
		return j, nil
	}
}

func (s *chanSource) Retry(_ context.Context, job *queue.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryErr != nil {
		return false, s.retryErr
	}
	job.Attempt++
	s.retried = append(s.retried, job)
	return job.Attempt >= queue.MaxRetries, nil
}

type memStatus struct {
	mu      sync.Mutex
	history map[string][]string
	last    map[string]models.GenerationJob
}

func newMemStatus() *memStatus {
	return &memStatus{history: map[string][]string{}, last: map[string]models.GenerationJob{}}
}

func (m *memStatus) Save(_ context.Context, job *models.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[job.ID] = append(m.history[job.ID], job.Status)
	m.last[job.ID] = *job
	return nil
}

func (m *memStatus) get(id string) (models.GenerationJob, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[id], append([]string(nil), m.history[id]...)
}

type genFunc func(ctx context.Context, eventID uuid.UUID, rows []models.Recipient) (*models.GenerationReport, error)

func (f genFunc) GenerateRows(ctx context.Context, eventID uuid.UUID, rows []models.Recipient) (*models.GenerationReport, error) {
	return f(ctx, eventID, rows)
}

func batchJob(t *testing.T, eventID uuid.UUID, rows ...models.Recipient) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeCertificateBatch, jobs.Payload{EventID: eventID, Recipients: rows})
	require.NoError(t, err)
	return job
}

func TestProcess_Success(t *testing.T) {
	status := newMemStatus()
	eventID := uuid.New()
	var gotRows []models.Recipient
	gen := genFunc(func(_ context.Context, id uuid.UUID, rows []models.Recipient) (*models.GenerationReport, error) {
		assert.Equal(t, eventID, id)
		gotRows = rows
		return &models.GenerationReport{Generated: len(rows), Errors: []string{}}, nil
	})
	p := worker.NewBatchProcessor(&chanSource{}, status, gen, nil)
	job := batchJob(t, eventID, models.Recipient{Name: "Ada", Email: "ada@example.com"})

	require.NoError(t, p.Process(context.Background(), job))

	last, history := status.get(job.ID)
	assert.Equal(t, []string{models.JobStatusRunning, models.JobStatusDone}, history)
	require.NotNil(t, last.Report)
	assert.Equal(t, 1, last.Report.Generated)
	assert.Len(t, gotRows, 1)
}

func TestProcess_PermanentFailure(t *testing.T) {
	status := newMemStatus()
	gen := genFunc(func(context.Context, uuid.UUID, []models.Recipient) (*models.GenerationReport, error) {
		return nil, models.ErrNotFound
	})
	p := worker.NewBatchProcessor(&chanSource{}, status, gen, nil)
	job := batchJob(t, uuid.New())

	err := p.Process(context.Background(), job)

	require.ErrorIs(t, err, models.ErrNotFound)
	last, _ := status.get(job.ID)
	assert.Equal(t, models.JobStatusFailed, last.Status)
	assert.Equal(t, "not found", last.Error)
}

func TestProcess_UnknownType(t *testing.T) {
	p := worker.NewBatchProcessor(&chanSource{}, newMemStatus(), nil, nil)

	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "email"})

	assert.ErrorContains(t, err, "unknown job type")
}

func TestRun_RetriesTransientThenStops(t *testing.T) {
	src := &chanSource{jobs: make(chan *queue.Job, 1)}
	status := newMemStatus()
	calls := make(chan struct{}, queue.MaxRetries)
	gen := genFunc(func(context.Context, uuid.UUID, []models.Recipient) (*models.GenerationReport, error) {
		calls <- struct{}{}
		return nil, errors.Join(models.ErrUnavailable, errors.New("db starting"))
	})
	p := worker.NewBatchProcessor(src, status, gen, nil)
	p.SetBackoff(time.Millisecond)
	job := batchJob(t, uuid.New())
	src.jobs <- job

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never processed")
	}
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.retried) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	last, history := status.get(job.ID)
	assert.Equal(t, models.JobStatusQueued, last.Status)
	assert.Equal(t, []string{models.JobStatusRunning, models.JobStatusQueued}, history)
}

func TestRun_DeadLetterMarksFailed(t *testing.T) {
	src := &chanSource{jobs: make(chan *queue.Job, 1)}
	status := newMemStatus()
	gen := genFunc(func(context.Context, uuid.UUID, []models.Recipient) (*models.GenerationReport, error) {
		return nil, models.ErrConflict
	})
	p := worker.NewBatchProcessor(src, status, gen, nil)
	p.SetBackoff(time.Millisecond)
	job := batchJob(t, uuid.New())
	job.Attempt = queue.MaxRetries - 1
	src.jobs <- job

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		last, _ := status.get(job.ID)
		return last.Status == models.JobStatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

// runUntil starts Run, waits for started, cancels and returns once Run has exited.
func runUntil(t *testing.T, p *worker.BatchProcessor, started <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("job was never processed")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRun_ShutdownLetsRunningJobFinish(t *testing.T) {
	src := &chanSource{jobs: make(chan *queue.Job, 1)}
	status := newMemStatus()
	started := make(chan struct{})
	gen := genFunc(func(ctx context.Context, _ uuid.UUID, rows []models.Recipient) (*models.GenerationReport, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &models.GenerationReport{Generated: len(rows), Errors: []string{}}, nil
	})
	p := worker.NewBatchProcessor(src, status, gen, nil)
	p.SetBackoff(time.Millisecond)
	job := batchJob(t, uuid.New(), models.Recipient{Name: "Ada", Email: "ada@example.com"})
	src.jobs <- job

	runUntil(t, p, started)

	last, history := status.get(job.ID)
	assert.Equal(t, []string{models.JobStatusRunning, models.JobStatusDone}, history)
	require.NotNil(t, last.Report)
	assert.Equal(t, 1, last.Report.Generated)
	assert.Empty(t, src.retried)
}

func TestRun_DrainTimeoutRequeuesJob(t *testing.T) {
	src := &chanSource{jobs: make(chan *queue.Job, 1)}
	status := newMemStatus()
	started := make(chan struct{})
	gen := genFunc(func(ctx context.Context, _ uuid.UUID, _ []models.Recipient) (*models.GenerationReport, error) {
		close(started)
		<-ctx.Done()
		return nil, fmt.Errorf("persist certificates: begin: %w", ctx.Err())
	})
	p := worker.NewBatchProcessor(src, status, gen, nil)
	p.SetBackoff(time.Millisecond)
	p.SetDrainTimeout(20 * time.Millisecond)
	job := batchJob(t, uuid.New())
	src.jobs <- job

	runUntil(t, p, started)

	last, history := status.get(job.ID)
	assert.Equal(t, []string{models.JobStatusRunning, models.JobStatusQueued}, history)
	assert.Equal(t, models.JobStatusQueued, last.Status)
	require.Len(t, src.retried, 1)
	assert.Equal(t, job.ID, src.retried[0].ID)
}

func TestRun_RequeueFailureMarksFailed(t *testing.T) {
	src := &chanSource{jobs: make(chan *queue.Job, 1), retryErr: errors.New("redis down")}
	status := newMemStatus()
	gen := genFunc(func(context.Context, uuid.UUID, []models.Recipient) (*models.GenerationReport, error) {
		return nil, models.ErrUnavailable
	})
	p := worker.NewBatchProcessor(src, status, gen, nil)
	p.SetBackoff(time.Millisecond)
	job := batchJob(t, uuid.New())
	src.jobs <- job

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		last, _ := status.get(job.ID)
		return last.Status == models.JobStatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	last, _ := status.get(job.ID)
	assert.Contains(t, last.Error, "redis down")
}
