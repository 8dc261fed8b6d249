package models

import "github.com/google/uuid"

// EventCertificateCount is the number of certificates issued for one event.
type EventCertificateCount struct {
	EventID   uuid.UUID `json:"event_id"`
	EventName string    `json:"event_name"`
	EventSlug *string   `json:"event_slug"`
	Count     int       `json:"count"`
}

// DashboardStats aggregates counts for the organizer dashboard.
type DashboardStats struct {
	TotalEvents         int                     `json:"totalEvents"`
	TotalCertificates   int                     `json:"totalCertificates"`
	RecentEvents        []Event                 `json:"recentEvents"`
	CertificatesByEvent []EventCertificateCount `json:"certificatesByEvent"`
}
