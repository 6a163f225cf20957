// Package storage provides read access to object storage holding mirrored
// membership partitions.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrDownloadFailed = errors.New("download failed")
	ErrInvalidPath    = errors.New("invalid object path")
)

// ObjectStorage abstracts read-only object storage operations.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Download copies an object to localPath. It returns ErrObjectNotFound
	// when the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
