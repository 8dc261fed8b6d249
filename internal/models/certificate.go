package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Certificate is one generated, persisted certificate for a recipient.
type Certificate struct {
	ID              uuid.UUID `json:"id"`
	EventID         uuid.UUID `json:"event_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	CertificatePath string    `json:"certificate_path"`
	CertificateURL  string    `json:"certificate_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Recipient is one row of an uploaded recipient list.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GenerationReport summarises one batch generation run.
type GenerationReport struct {
	Generated int      `json:"generated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// VerifyResult is the public validity check response. Absent certificates yield Valid=false.
type VerifyResult struct {
	Valid         bool       `json:"valid"`
	CertificateID *uuid.UUID `json:"certificate_id,omitempty"`
	Name          string     `json:"name,omitempty"`
	EventID       *uuid.UUID `json:"event_id,omitempty"`
	EventName     string     `json:"event_name,omitempty"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`
}

// NormalizeEmail is the dedup key for certificates within an event.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
