// Package dashboard aggregates organizer statistics.
package dashboard

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certforge/backend/internal/apierr"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/response"
)

const (
	recentEvents  = 10
	groupedEvents = 100
)

// EventCounter is the event side of the statistics.
type EventCounter interface {
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}

// CertificateCounter is the certificate side of the statistics.
type CertificateCounter interface {
	Count(ctx context.Context) (int, error)
	GroupedByEvent(ctx context.Context, limit int) ([]models.EventCertificateCount, error)
}

// TemplateURLs resolves the public URL of a stored template.
type TemplateURLs interface {
	URL(key string) string
}

// Service computes dashboard statistics.
type Service struct {
	events EventCounter
	certs  CertificateCounter
	urls   TemplateURLs
}

// NewService creates a dashboard service. Recent events get a template_url when urls is non-nil.
func NewService(events EventCounter, certs CertificateCounter, urls TemplateURLs) *Service {
	return &Service{events: events, certs: certs, urls: urls}
}

// Stats returns totals, the newest events and per-event certificate counts.
func (s *Service) Stats(ctx context.Context) (*models.DashboardStats, error) {
	var (
		st  models.DashboardStats
		err error
	)
	if st.TotalEvents, err = s.events.Count(ctx); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	if st.TotalCertificates, err = s.certs.Count(ctx); err != nil {
		return nil, fmt.Errorf("count certificates: %w", err)
	}
	if st.RecentEvents, err = s.events.Recent(ctx, recentEvents); err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	if st.CertificatesByEvent, err = s.certs.GroupedByEvent(ctx, groupedEvents); err != nil {
		return nil, fmt.Errorf("certificates by event: %w", err)
	}
	if st.RecentEvents == nil {
		st.RecentEvents = []models.Event{}
	}
	if s.urls != nil {
		for i := range st.RecentEvents {
			st.RecentEvents[i].TemplateURL = s.urls.URL(st.RecentEvents[i].TemplatePath)
		}
	}
	if st.CertificatesByEvent == nil {
		st.CertificatesByEvent = []models.EventCertificateCount{}
	}
	return &st, nil
}

// Handler handles GET /dashboard/stats.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Stats handles GET /dashboard/stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		apierr.Respond(c, h.logger, err, "not found")
		return
	}
	response.OK(c, st)
}
