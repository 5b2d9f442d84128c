package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// BlobStore is the object-storage interface the upload gateway programs
// against. The S3 implementation is the only production backend; tests
// substitute an in-memory fake.
type BlobStore interface {
	// Put writes an object.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// SignedURL returns a time-limited retrieval URL for an object.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ObjectKey derives the storage key for a recording. Objects are grouped
// by script so takes of the same script sit under one prefix; the record
// id keeps keys unique, so repeated takes never overwrite each other.
func ObjectKey(scriptID, recordingID string) string {
	return fmt.Sprintf("scripts/%s/%s.mpeg", scriptID, recordingID)
}
