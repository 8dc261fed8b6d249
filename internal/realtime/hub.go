// Package realtime streams asynchronous job progress to WebSocket clients.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/certforge/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Message events.
const (
	EventJobStatus   = "job_status"
	EventJobFinished = "job_finished"
)

// JobSubscriber subscribes to status updates for one job.
type JobSubscriber interface {
	SubscribeJob(jobID string, handler func(*models.GenerationJob)) (cancel func(), err error)
}

// Hub maintains job_id -> set of connections. One Redis subscription is held per watched
// job, opened by the first watcher and closed by the last.
type Hub struct {
	jobs   map[string]map[string]*Client
	subs   map[string]func()
	mu     sync.RWMutex
	sub    JobSubscriber
	logger *zap.Logger
}

// NewHub creates a hub. sub may be nil, in which case only local broadcasts are delivered.
func NewHub(sub JobSubscriber, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		jobs:   make(map[string]map[string]*Client),
		subs:   make(map[string]func()),
		sub:    sub,
		logger: logger,
	}
}

// Register adds a client to its job's room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.jobs[c.JobID] == nil {
		h.jobs[c.JobID] = make(map[string]*Client)
		if h.sub != nil {
			jobID := c.JobID
			cancel, err := h.sub.SubscribeJob(jobID, func(job *models.GenerationJob) {
				h.Broadcast(jobID, job)
			})
			if err != nil {
				h.logger.Warn("realtime: subscribe failed", zap.String("job_id", jobID), zap.Error(err))
			} else {
				h.subs[jobID] = cancel
			}
		}
	}
	h.jobs[c.JobID][c.ID] = c
	h.logger.Debug("client watching job", zap.String("client_id", c.ID), zap.String("job_id", c.JobID))
}

// Unregister removes a client; the subscription is dropped with the last watcher.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.jobs[c.JobID]
	if !ok {
		return
	}
	delete(m, c.ID)
	if len(m) == 0 {
		delete(h.jobs, c.JobID)
		if cancel, ok := h.subs[c.JobID]; ok {
			cancel()
			delete(h.subs, c.JobID)
		}
	}
}

// Broadcast sends the job status to every local watcher. Slow clients miss updates rather
// than block the hub.
func (h *Hub) Broadcast(jobID string, job *models.GenerationJob) {
	msg, err := NewMessage(job)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.jobs[jobID] {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Watchers returns the number of local clients watching a job.
func (h *Hub) Watchers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.jobs[jobID])
}

// NewMessage wraps a job status, marking terminal states as job_finished.
func NewMessage(job *models.GenerationJob) (WSMessage, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return WSMessage{}, err
	}
	event := EventJobStatus
	if finished(job) {
		event = EventJobFinished
	}
	return WSMessage{Event: event, Data: data}, nil
}

func finished(job *models.GenerationJob) bool {
	return job.Status == models.JobStatusDone || job.Status == models.JobStatusFailed
}
