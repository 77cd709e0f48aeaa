package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage with preconditions. A failed
// precondition is reported as ErrPreconditionFailed.
type BlobWriter interface {
	// PutIfAbsent creates the object only when no object exists at path.
	PutIfAbsent(ctx context.Context, path string, data io.Reader, contentType string) error
	// PutIfMatch replaces the object only when its current ETag equals etag.
	PutIfMatch(ctx context.Context, path string, data io.Reader, contentType, etag string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	// Get returns the object body and its ETag.
	Get(ctx context.Context, path string) (body io.ReadCloser, etag string, err error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// BlobDeleter removes objects.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}
