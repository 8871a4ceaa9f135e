// Package storage defines the Storage interface over the backends that hold
// source media objects.
//
// New backends are added by implementing the Storage interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init(),
// so adding a backend requires no changes to the factory or main package.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the requested object does not exist in the
// backend. Callers distinguish it from transport failures with errors.Is.
var ErrNotFound = errors.New("object not found")

// Storage is the interface all media source backends implement. The gateway
// is read-mostly: Download and Stat drive the render path, Upload and Delete
// exist for ingest tooling.
type Storage interface {
	// Upload stores an object and returns its size and SHA256 checksum.
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download retrieves an object as a stream. Returns ErrNotFound if the
	// object does not exist.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns object metadata without transferring the body. The
	// LastModified timestamp is the staleness fingerprint for derived
	// artifacts, so it must be cheap; Stat never hashes content.
	Stat(ctx context.Context, path string) (*ObjectInfo, error)
}

// UploadResult describes a stored object.
type UploadResult struct {
	// Path is the storage path where the object was stored
	Path string

	// Size is the object size in bytes
	Size int64

	// Checksum is the SHA256 hash of the object contents
	Checksum string
}

// ObjectInfo is lightweight object metadata.
type ObjectInfo struct {
	// Path is the storage path of the object
	Path string

	// Size is the object size in bytes
	Size int64

	// LastModified is when the object content last changed
	LastModified time.Time
}
