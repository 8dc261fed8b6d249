package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status values for asynchronous generation.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// GenerationJob tracks an asynchronous batch generation request.
type GenerationJob struct {
	ID        string            `json:"id"`
	EventID   uuid.UUID         `json:"event_id"`
	Status    string            `json:"status"`
	Report    *GenerationReport `json:"report,omitempty"`
	Error     string            `json:"error,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}
