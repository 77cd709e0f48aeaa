package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

const (
	keyPrefix = "factgpt:"

	// openQuestionTTL bounds how long an unresolved question may be served
	// from cache. Resolved questions never change and are kept longer.
	openQuestionTTL     = 30 * time.Second
	resolvedQuestionTTL = 24 * time.Hour
)

// QuestionCache implements domain.QuestionCache with JSON-encoded questions
// stored in Redis strings.
//
// Key schema:
//
//	factgpt:question:{instance_id} - JSON domain.Question
type QuestionCache struct {
	rdb *redis.Client
}

// NewQuestionCache creates a QuestionCache backed by the given Client.
func NewQuestionCache(c *Client) *QuestionCache {
	return &QuestionCache{rdb: c.Underlying()}
}

func questionKey(instanceID string) string { return keyPrefix + "question:" + instanceID }

// cacheTTL picks the expiry for q.
func cacheTTL(q domain.Question) time.Duration {
	if q.Outcome.Resolved() {
		return resolvedQuestionTTL
	}
	return openQuestionTTL
}

// Set stores q.
func (qc *QuestionCache) Set(ctx context.Context, q domain.Question) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal question %s: %w", q.InstanceID, err)
	}
	if err := qc.rdb.Set(ctx, questionKey(q.InstanceID), data, cacheTTL(q)).Err(); err != nil {
		return fmt.Errorf("redis: set question %s: %w", q.InstanceID, err)
	}
	return nil
}

// Get returns the cached question or domain.ErrNotFound on a miss.
func (qc *QuestionCache) Get(ctx context.Context, instanceID string) (domain.Question, error) {
	data, err := qc.rdb.Get(ctx, questionKey(instanceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Question{}, domain.ErrNotFound
		}
		return domain.Question{}, fmt.Errorf("redis: get question %s: %w", instanceID, err)
	}

	var q domain.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Question{}, fmt.Errorf("redis: unmarshal question %s: %w", instanceID, err)
	}
	return q, nil
}

// Invalidate drops the cached copy of instanceID.
func (qc *QuestionCache) Invalidate(ctx context.Context, instanceID string) error {
	if err := qc.rdb.Del(ctx, questionKey(instanceID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate question %s: %w", instanceID, err)
	}
	return nil
}

var _ domain.QuestionCache = (*QuestionCache)(nil)
