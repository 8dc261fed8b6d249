package certificates_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/backend/internal/certificates"
	"github.com/certforge/backend/internal/models"
)

type fakeSubmitter struct {
	rows []models.Recipient
}

func (s *fakeSubmitter) Submit(_ context.Context, eventID uuid.UUID, rows []models.Recipient) (*models.GenerationJob, error) {
	s.rows = rows
	return &models.GenerationJob{ID: "job-1", EventID: eventID, Status: models.JobStatusQueued}, nil
}

func newCertRouter(t *testing.T, f *fixture, async certificates.BatchSubmitter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lookup := certificates.NewLookup(f.certs, f.events, f.blobs, nil)
	h := certificates.NewHandler(f.gen, async, f.events, lookup, nil)
	r := gin.New()
	r.POST("/events/:id/generate", h.Generate)
	r.GET("/events/:id/certificates", h.List)
	r.GET("/events/:id/certificates/export", h.Export)
	r.POST("/certificates/download", h.Download)
	r.GET("/certificates/verify/:id", h.Verify)
	return r
}

func csvUpload(t *testing.T, url, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("csv_file", "roster.csv")
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type reportEnvelope struct {
	Success bool                    `json:"success"`
	Data    models.GenerationReport `json:"data"`
	Error   string                  `json:"error"`
}

func TestHandler_GenerateThenDownload(t *testing.T) {
	f := newFixture(t, nil)
	r := newCertRouter(t, f, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, csvUpload(t, "/events/"+f.event.ID.String()+"/generate", roster))
	require.Equal(t, http.StatusOK, w.Code)
	var env reportEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, 2, env.Data.Generated)
	assert.NotNil(t, env.Data.Errors)

	body := `{"event":"demo-day","name":"GRACE HOPPER","email":"Grace@Example.com"}`
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/certificates/download", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Grace_Hopper_certificate.png"`, w.Header().Get("Content-Disposition"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/certificates/download", strings.NewReader(`{"name":"Nobody","email":"no@example.com"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "certificate not found")
}

func TestHandler_Generate_MissingColumns(t *testing.T) {
	f := newFixture(t, nil)
	r := newCertRouter(t, f, nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, csvUpload(t, "/events/"+f.event.ID.String()+"/generate", "email\nx@y.z\n"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "CSV must contain 'name' and 'email' columns")
}

func TestHandler_Generate_UnknownEvent(t *testing.T) {
	f := newFixture(t, nil)
	w := httptest.NewRecorder()

	newCertRouter(t, f, nil).ServeHTTP(w, csvUpload(t, "/events/"+uuid.NewString()+"/generate", roster))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Generate_Async(t *testing.T) {
	f := newFixture(t, nil)
	sub := &fakeSubmitter{}
	w := httptest.NewRecorder()

	newCertRouter(t, f, sub).ServeHTTP(w, csvUpload(t, "/events/"+f.event.ID.String()+"/generate?async=1", roster))

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"job-1"`)
	assert.Len(t, sub.rows, 2)
	assert.Empty(t, f.certs.rows)
}

func TestHandler_Generate_AsyncUnconfigured(t *testing.T) {
	f := newFixture(t, nil)
	w := httptest.NewRecorder()

	newCertRouter(t, f, nil).ServeHTTP(w, csvUpload(t, "/events/"+f.event.ID.String()+"/generate?async=1", roster))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_VerifyAndExport(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.gen.Generate(context.Background(), f.event.ID, strings.NewReader(roster))
	require.NoError(t, err)
	r := newCertRouter(t, f, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/certificates/verify/garbage", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"valid":false}}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/"+f.event.ID.String()+"/certificates/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="demo-day_certificates.csv"`, w.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "name,email,certificate_id,created_at", lines[0])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/"+f.event.ID.String()+"/certificates", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
