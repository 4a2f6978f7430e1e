package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object storage operations used for archiving submitted sources.
type ObjectStorage interface {
	// PutObject uploads size bytes from reader to bucket/objectKey.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, size int64, contentType string) error

	// GetObject opens a reader for an object. Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)
}
