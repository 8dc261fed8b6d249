// Package storage keeps template images and generated certificates.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

const (
	// MaxTemplateFileSize is the maximum allowed template upload (10MB).
	MaxTemplateFileSize = 10 * 1024 * 1024
	// FolderTemplates is the key prefix for template images.
	FolderTemplates = "templates"
	// FolderCertificates is the key prefix for generated certificates.
	FolderCertificates = "certificates"
)

// ErrObjectNotFound is returned by Open when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Allowed template MIME types and extensions.
var (
	AllowedTemplateTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/jpg":  ".jpg",
		"image/png":  ".png",
	}
	AllowedTemplateExtensions = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
	}
)

// Store is an object store addressed by slash-separated keys.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL is where clients can fetch the object.
	URL(key string) string
}

// ValidTemplateExtension reports whether filename has a png/jpg/jpeg extension.
func ValidTemplateExtension(filename string) bool {
	_, ok := AllowedTemplateExtensions[strings.ToLower(path.Ext(filename))]
	return ok
}

// ContentTypeForFilename returns the MIME type for a template filename extension.
func ContentTypeForFilename(filename string) string {
	if ct, ok := AllowedTemplateExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// TemplateKey returns the key for an event template: templates/{event_id}_template{ext}.
func TemplateKey(eventID, filename string) string {
	return path.Join(FolderTemplates, eventID+"_template"+strings.ToLower(path.Ext(filename)))
}

// CertificateKey returns the key for a certificate image: certificates/{certificate_id}.png.
func CertificateKey(certificateID string) string {
	return path.Join(FolderCertificates, certificateID+".png")
}
