// Package storage defines where archived chapter content ends up. Backends live in the
// local, memory and gcs subpackages; the archive catalog lives in postgres.
package storage

import (
	"context"
	"io"
)

// BlobStore persists and retrieves content by relative path.
type BlobStore interface {
	// PutObject writes data under path and returns a URI for it.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject opens the object stored under path. Missing objects yield an error
	// wrapping crawlerr.ErrNotFound.
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}
