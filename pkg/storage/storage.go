// Package storage keeps uploaded images and template assets.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Common errors
var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrNotFound        = errors.New("object not found")
)

// Store persists binary assets and returns their public URL
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// IsAllowedType reports whether uploads of contentType are accepted
func IsAllowedType(contentType string) bool {
	_, ok := imageExtensions[normalizeType(contentType)]
	return ok
}

// NewKey returns a fresh object key under prefix, dated and with an
// extension matching contentType.
func NewKey(prefix, contentType string, now time.Time) (string, error) {
	ext, ok := imageExtensions[normalizeType(contentType)]
	if !ok {
		return "", errors.Wrapf(ErrUnsupportedType, "%q", contentType)
	}
	return path.Join(strings.Trim(prefix, "/"), now.UTC().Format("2006/01"), uuid.NewString()+ext), nil
}

func normalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
