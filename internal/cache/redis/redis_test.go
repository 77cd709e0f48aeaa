package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

func TestKeySchema(t *testing.T) {
	assert.Equal(t, "factgpt:question:q-1", questionKey("q-1"))
	assert.Equal(t, "factgpt:lock:commit:q-1", lockKey("commit:q-1"))
	assert.Equal(t, "factgpt:ratelimit:10.0.0.1", rateLimitKey("10.0.0.1"))
}

func TestCacheTTL(t *testing.T) {
	open := domain.Question{InstanceID: "q"}
	assert.Equal(t, openQuestionTTL, cacheTTL(open))

	resolved := domain.ApplyResolution(open, domain.Resolution{Outcome: domain.OutcomeFalse})
	assert.Equal(t, resolvedQuestionTTL, cacheTTL(resolved))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	require.NotEmpty(t, slidingWindowLua)
	assert.True(t, strings.Contains(slidingWindowLua, "ZREMRANGEBYSCORE"))
}

func TestNonPositiveLimitDeniesWithoutRoundTrip(t *testing.T) {
	// The client points nowhere; a round trip would fail.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 10 * time.Millisecond})
	defer rdb.Close()
	rl := NewRateLimiter(&Client{rdb: rdb})

	ok, err := rl.Allow(context.Background(), "k", 0, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnreachableRedisErrorsAreWrapped(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 10 * time.Millisecond})
	defer rdb.Close()
	c := &Client{rdb: rdb}
	ctx := context.Background()

	_, err := NewQuestionCache(c).Get(ctx, "q-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "redis: get question q-1")

	_, err = NewLockManager(c).Acquire(ctx, "commit:q-1", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrLockHeld)
}
