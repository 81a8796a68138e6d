// Package storage defines where report artifacts are written.
package storage

import (
	"context"
	"io"
)

// BlobStore persists a named artifact and returns a URI for it. Writing the
// same path twice replaces the earlier content.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error)
}
