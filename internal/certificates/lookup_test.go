package certificates_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/backend/internal/certificates"
	"github.com/certforge/backend/internal/models"
	"github.com/certforge/backend/pkg/storage"
)

func generated(t *testing.T) (*fixture, *certificates.Lookup) {
	t.Helper()
	f := newFixture(t, nil)
	_, err := f.gen.Generate(context.Background(), f.event.ID, strings.NewReader(roster))
	require.NoError(t, err)
	return f, certificates.NewLookup(f.certs, f.events, f.blobs, nil)
}

func TestDownload_CaseInsensitive(t *testing.T) {
	f, l := generated(t)

	for _, ref := range []string{"", f.event.ID.String(), "demo-day"} {
		a, err := l.Download(context.Background(), certificates.DownloadRequest{
			Event: ref, Name: "  ada LOVELACE ", Email: "ADA@Example.com",
		})
		require.NoError(t, err, "event ref %q", ref)
		assert.Equal(t, "Ada_Lovelace_certificate.png", a.Filename)
		assert.Equal(t, "image/png", a.ContentType)
		assert.True(t, bytes.HasPrefix(a.Body, []byte("\x89PNG")))
	}
}

func TestDownload_PDF(t *testing.T) {
	_, l := generated(t)

	a, err := l.Download(context.Background(), certificates.DownloadRequest{
		Name: "Grace Hopper", Email: "grace@example.com", Format: "PDF",
	})

	require.NoError(t, err)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.Equal(t, "Grace_Hopper_certificate.pdf", a.Filename)
	assert.True(t, bytes.HasPrefix(a.Body, []byte("%PDF")))
}

func TestDownload_Errors(t *testing.T) {
	f, l := generated(t)
	ctx := context.Background()

	_, err := l.Download(ctx, certificates.DownloadRequest{Name: "Ada Lovelace", Email: "nobody@example.com"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = l.Download(ctx, certificates.DownloadRequest{Event: "other-event", Name: "Ada Lovelace", Email: "ada@example.com"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = l.Download(ctx, certificates.DownloadRequest{Name: "", Email: "ada@example.com"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = l.Download(ctx, certificates.DownloadRequest{Name: "Ada Lovelace", Email: "ada@example.com", Format: "gif"})
	assert.ErrorIs(t, err, models.ErrValidation)

	cert, err := f.certs.FindByNameEmail(ctx, nil, "Ada Lovelace", "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(ctx, cert.CertificatePath))
	_, err = l.Download(ctx, certificates.DownloadRequest{Name: "Ada Lovelace", Email: "ada@example.com"})
	assert.ErrorIs(t, err, models.ErrArtifactMissing)
}

func TestVerify(t *testing.T) {
	f, l := generated(t)
	ctx := context.Background()
	cert, err := f.certs.FindByNameEmail(ctx, nil, "Grace Hopper", "grace@example.com")
	require.NoError(t, err)

	res, err := l.Verify(ctx, cert.ID.String())
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Grace Hopper", res.Name)
	assert.Equal(t, "Demo Day", res.EventName)
	assert.Equal(t, cert.ID, *res.CertificateID)
	assert.Equal(t, f.event.ID, *res.EventID)

	for _, id := range []string{uuid.NewString(), "not-a-uuid", ""} {
		res, err := l.Verify(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, &models.VerifyResult{Valid: false}, res)
	}
}

func TestVerify_StoreUnavailable(t *testing.T) {
	l := certificates.NewLookup(unavailableStore{}, &fakeEvents{}, nil, nil)

	_, err := l.Verify(context.Background(), uuid.NewString())

	assert.ErrorIs(t, err, models.ErrUnavailable)
}

type unavailableStore struct{ certificates.LookupStore }

func (unavailableStore) GetByID(context.Context, uuid.UUID) (*models.Certificate, error) {
	return nil, models.ErrUnavailable
}

func TestExportCSV_Quoting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	issued := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	id := uuid.New()
	f.certs.rows = append(f.certs.rows, models.Certificate{
		ID: id, EventID: f.event.ID, Name: `Smith, "Jo"`, Email: "jo@example.com", CreatedAt: issued,
	})
	l := certificates.NewLookup(f.certs, f.events, f.blobs, nil)

	var buf bytes.Buffer
	e, err := l.ExportCSV(ctx, f.event.ID, &buf)

	require.NoError(t, err)
	assert.Equal(t, f.event.ID, e.ID)
	assert.Equal(t, "name,email,certificate_id,created_at\n"+
		`"Smith, ""Jo""",jo@example.com,`+id.String()+",2024-03-01T09:30:00Z\n", buf.String())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, `Smith, "Jo"`, records[1][0])

	_, err = l.ExportCSV(ctx, uuid.New(), &bytes.Buffer{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestList_SetsURLs(t *testing.T) {
	f, l := generated(t)

	list, err := l.List(context.Background(), f.event.ID)

	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, c := range list {
		assert.Equal(t, "/static/"+storage.CertificateKey(c.ID.String()), c.CertificateURL)
	}
}
