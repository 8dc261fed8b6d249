package storage_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/backend/pkg/storage"
)

func TestLocal_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := storage.NewLocal(root, "/static/", nil)
	require.NoError(t, err)

	key := storage.CertificateKey("abc")
	require.NoError(t, s.Put(ctx, key, "image/png", strings.NewReader("png-bytes"), 9))

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.FileExists(t, filepath.Join(root, "certificates", "abc.png"))
	assert.Equal(t, "/static/certificates/abc.png", s.URL(key))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Open(ctx, key)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	// Deleting twice is fine.
	assert.NoError(t, s.Delete(ctx, key))
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	s, err := storage.NewLocal(t.TempDir(), "/static", nil)
	require.NoError(t, err)

	err = s.Put(context.Background(), "../outside.png", "image/png", strings.NewReader("x"), 1)
	assert.Error(t, err)
	_, err = s.Open(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestLocal_CreatesFolders(t *testing.T) {
	root := filepath.Join(t.TempDir(), "static")
	_, err := storage.NewLocal(root, "/static", nil)
	require.NoError(t, err)

	for _, dir := range []string{storage.FolderTemplates, storage.FolderCertificates} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestKeysAndTypes(t *testing.T) {
	assert.Equal(t, "templates/e1_template.png", storage.TemplateKey("e1", "Certificate.PNG"))
	assert.Equal(t, "templates/e1_template.jpeg", storage.TemplateKey("e1", "a.jpeg"))
	assert.True(t, storage.ValidTemplateExtension("a.JPG"))
	assert.False(t, storage.ValidTemplateExtension("a.gif"))
	assert.Equal(t, "image/jpeg", storage.ContentTypeForFilename("x.jpeg"))
	assert.Equal(t, "application/octet-stream", storage.ContentTypeForFilename("x.bmp"))
}
