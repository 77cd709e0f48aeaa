package domain

import (
	"context"
	"time"
)

// QuestionCache provides fast question lookups in front of a QuestionStore.
// It is never authoritative: commits always go to the store.
type QuestionCache interface {
	Set(ctx context.Context, q Question) error
	Get(ctx context.Context, instanceID string) (Question, error)
	Invalidate(ctx context.Context, instanceID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
