package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

const (
	jsonContentType = "application/json"
	listConcurrency = 8
)

// QuestionStore implements domain.QuestionStore on object storage. Each
// record lives at <prefix>/<tag>/<record key hex>.json and is only ever
// written with a precondition, so object storage provides the atomicity a
// database would.
type QuestionStore struct {
	reader *Reader
	writer *Writer
	prefix string
}

// NewQuestionStore creates a QuestionStore writing under prefix in c's
// bucket.
func NewQuestionStore(c *Client, prefix string) *QuestionStore {
	return &QuestionStore{
		reader: NewReader(c),
		writer: NewWriter(c),
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *QuestionStore) recordPath(tag, instanceID string) string {
	return path.Join(s.prefix, tag, domain.RecordKey(tag, instanceID).Hex()+".json")
}

// Create writes the question then the binding, both with If-None-Match. When
// the binding write loses, the question object this call created is removed
// again. When it fails for any other reason both objects are removed.
func (s *QuestionStore) Create(ctx context.Context, q domain.Question, b domain.OracleBinding) error {
	qData, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("s3blob: marshal question %s: %w", q.InstanceID, err)
	}
	bData, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("s3blob: marshal binding %s: %w", b.InstanceID, err)
	}

	qPath := s.recordPath(domain.StateAccountTag, q.InstanceID)
	if err := s.writer.PutIfAbsent(ctx, qPath, bytes.NewReader(qData), jsonContentType); err != nil {
		if errors.Is(err, domain.ErrPreconditionFailed) {
			return fmt.Errorf("s3blob: create question %s: %w", q.InstanceID, domain.ErrAlreadyInitialized)
		}
		return fmt.Errorf("s3blob: create question %s: %w", q.InstanceID, err)
	}

	bPath := s.recordPath(domain.OracleInfoTag, b.InstanceID)
	if err := s.writer.PutIfAbsent(ctx, bPath, bytes.NewReader(bData), jsonContentType); err != nil {
		if errors.Is(err, domain.ErrPreconditionFailed) {
			if delErr := s.reader.Delete(ctx, qPath); delErr != nil {
				return fmt.Errorf("s3blob: create question %s: %w", q.InstanceID, errors.Join(domain.ErrAlreadyInitialized, delErr))
			}
			return fmt.Errorf("s3blob: create question %s: %w", q.InstanceID, domain.ErrAlreadyInitialized)
		}
		// The write may have landed even though the call failed. The binding
		// is removed too so the id can be initialized again.
		if delErr := s.reader.Delete(ctx, bPath); delErr != nil {
			err = errors.Join(err, delErr)
		}
		if delErr := s.reader.Delete(ctx, qPath); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return fmt.Errorf("s3blob: create question %s: %w", q.InstanceID, err)
	}
	return nil
}

// Get retrieves a question by instance id.
func (s *QuestionStore) Get(ctx context.Context, instanceID string) (domain.Question, error) {
	q, _, err := s.getQuestion(ctx, s.recordPath(domain.StateAccountTag, instanceID))
	if err != nil {
		return domain.Question{}, fmt.Errorf("s3blob: get question %s: %w", instanceID, err)
	}
	return q, nil
}

// GetBinding retrieves the oracle binding of a question.
func (s *QuestionStore) GetBinding(ctx context.Context, instanceID string) (domain.OracleBinding, error) {
	var b domain.OracleBinding
	if _, err := s.getJSON(ctx, s.recordPath(domain.OracleInfoTag, instanceID), &b); err != nil {
		return domain.OracleBinding{}, fmt.Errorf("s3blob: get binding %s: %w", instanceID, err)
	}
	return b, nil
}

// Resolve reads the question with its ETag, applies res and writes it back
// with If-Match. Losing the race re-reads the record to report why.
func (s *QuestionStore) Resolve(ctx context.Context, instanceID string, res domain.Resolution) (domain.Question, error) {
	qPath := s.recordPath(domain.StateAccountTag, instanceID)

	q, etag, err := s.getQuestion(ctx, qPath)
	if err != nil {
		return domain.Question{}, fmt.Errorf("s3blob: resolve %s: %w", instanceID, err)
	}
	if err := domain.CheckResolve(q, res); err != nil {
		return domain.Question{}, fmt.Errorf("s3blob: resolve %s: %w", instanceID, err)
	}

	resolved := domain.ApplyResolution(q, res)
	data, err := json.Marshal(resolved)
	if err != nil {
		return domain.Question{}, fmt.Errorf("s3blob: marshal question %s: %w", instanceID, err)
	}

	if err := s.writer.PutIfMatch(ctx, qPath, bytes.NewReader(data), jsonContentType, etag); err != nil {
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			return domain.Question{}, fmt.Errorf("s3blob: resolve %s: %w", instanceID, err)
		}
		current, _, getErr := s.getQuestion(ctx, qPath)
		if getErr != nil {
			return domain.Question{}, fmt.Errorf("s3blob: resolve %s: %w", instanceID, getErr)
		}
		if checkErr := domain.CheckResolve(current, res); checkErr != nil {
			return domain.Question{}, fmt.Errorf("s3blob: resolve %s: %w", instanceID, checkErr)
		}
		return domain.Question{}, fmt.Errorf("s3blob: resolve %s: %w", instanceID, domain.ErrAlreadyResolved)
	}
	return resolved, nil
}

// List loads every question object under the prefix, newest first.
func (s *QuestionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Question, error) {
	keys, err := s.reader.List(ctx, path.Join(s.prefix, domain.StateAccountTag)+"/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: list questions: %w", err)
	}

	out := make([]domain.Question, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			q, _, err := s.getQuestion(gctx, key)
			if err != nil {
				return err
			}
			out[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("s3blob: list questions: %w", err)
	}

	domain.SortNewestFirst(out)
	return opts.Page(out), nil
}

func (s *QuestionStore) getQuestion(ctx context.Context, p string) (domain.Question, string, error) {
	var q domain.Question
	etag, err := s.getJSON(ctx, p, &q)
	return q, etag, err
}

func (s *QuestionStore) getJSON(ctx context.Context, p string, v any) (string, error) {
	body, etag, err := s.reader.Get(ctx, p)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return "", fmt.Errorf("decode %s: %w", p, err)
	}
	return etag, nil
}

var _ domain.QuestionStore = (*QuestionStore)(nil)
