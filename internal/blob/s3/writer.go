package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

// Writer implements domain.BlobWriter using conditional PutObject requests.
type Writer struct {
	client API
	bucket string
}

// NewWriter creates a new Writer that uploads objects to the given client's
// configured bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// PutIfAbsent uploads data only when no object exists at path
// (If-None-Match: *).
func (w *Writer) PutIfAbsent(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("s3blob: put %s: %w", path, domain.ErrPreconditionFailed)
		}
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutIfMatch replaces the object at path only when its ETag is still etag.
func (w *Writer) PutIfMatch(ctx context.Context, path string, data io.Reader, contentType, etag string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
		IfMatch:     aws.String(etag),
	})
	if err != nil {
		if isPreconditionFailed(err) || isNotFound(err) {
			return fmt.Errorf("s3blob: put %s: %w", path, domain.ErrPreconditionFailed)
		}
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// isPreconditionFailed reports whether a conditional write lost. S3 answers
// 412 for a failed condition and 409 when a concurrent conditional write on
// the same key won.
func isPreconditionFailed(err error) bool {
	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	if errors.As(err, &httpErr) {
		code := httpErr.HTTPStatusCode()
		return code == 412 || code == 409
	}
	return false
}

var _ domain.BlobWriter = (*Writer)(nil)
