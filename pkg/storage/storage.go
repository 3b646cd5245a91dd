// Package storage defines the blob store surface the media engine depends
// on. Backends are content-addressable object stores keyed by object path;
// Delete is idempotent and a missing object is reported as ErrNotFound so the
// cleanup policy can distinguish it from a real failure.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound signals a delete against an object that no longer exists.
var ErrNotFound = errors.New("storage: object not found")

// ProgressFunc receives byte-level progress while an upload is in flight.
type ProgressFunc func(transferred, total int64)

// Store is the object store abstraction shared by GCS and MinIO backends.
type Store interface {
	// Upload streams the object to the backend and returns its durable
	// public URL. The progress callback may be nil. Cancellation of ctx
	// aborts the transfer.
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string, progress ProgressFunc) (string, error)
	// Delete removes the object. Returns ErrNotFound when it was absent.
	Delete(ctx context.Context, objectPath string) error
	// PublicURL resolves the durable URL for an object path.
	PublicURL(objectPath string) string
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
