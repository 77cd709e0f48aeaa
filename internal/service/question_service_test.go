package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muon-protocol/factgpt-examples/internal/crypto"
	"github.com/muon-protocol/factgpt-examples/internal/domain"
	"github.com/muon-protocol/factgpt-examples/internal/oracle"
	"github.com/muon-protocol/factgpt-examples/internal/resolution"
	"github.com/muon-protocol/factgpt-examples/internal/store/memory"
)

type fakeCache struct {
	items       map[string]domain.Question
	sets        int
	invalidated []string
	failGet     bool
}

func newFakeCache() *fakeCache { return &fakeCache{items: make(map[string]domain.Question)} }

func (c *fakeCache) Set(_ context.Context, q domain.Question) error {
	c.sets++
	c.items[q.InstanceID] = q
	return nil
}

func (c *fakeCache) Get(_ context.Context, id string) (domain.Question, error) {
	if c.failGet {
		return domain.Question{}, errors.New("cache down")
	}
	q, ok := c.items[id]
	if !ok {
		return domain.Question{}, domain.ErrNotFound
	}
	return q, nil
}

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	c.invalidated = append(c.invalidated, id)
	delete(c.items, id)
	return nil
}

const program = domain.Identity("muon-program")

type fixture struct {
	svc      *QuestionService
	cache    *fakeCache
	attestor *oracle.Attestor
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GenerateGroupKey()
	require.NoError(t, err)

	f := &fixture{cache: newFakeCache(), attestor: oracle.NewAttestor(key), now: time.Unix(1_700_000_000, 0)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := resolution.New(memory.NewQuestionStore(), oracle.NewMuonVerifier(program, logger), logger,
		resolution.WithClock(func() time.Time { return f.now }))
	f.svc = NewQuestionService(p, f.cache, f.attestor, logger)

	_, _, err = f.svc.Initialize(context.Background(), resolution.InitializeParams{
		InstanceID: "q-1",
		Owner:      "owner",
		Prompt:     "Did X happen?",
		Deadline:   uint64(f.now.Unix() + 3600),
		AppInfo: domain.OracleAppInfo{
			GroupPubKey: f.attestor.GroupPubKey(),
			AppID:       domain.NewUint256(big.NewInt(42)),
		},
		OracleProgram: program,
	})
	require.NoError(t, err)
	return f
}

func TestGetQuestionBackfillsCache(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, "Did X happen?", q.Prompt)
	assert.Equal(t, 1, f.cache.sets)

	_, err = f.svc.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.sets, "second read is served from cache")
}

func TestGetQuestionFallsBackWhenCacheFails(t *testing.T) {
	f := newFixture(t)
	f.cache.failGet = true

	q, err := f.svc.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, "q-1", q.InstanceID)

	_, err = f.svc.GetQuestion(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommitRefreshesCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)

	a, err := f.svc.Attest(context.Background(), "q-1", nil, true)
	require.NoError(t, err)

	q, err := f.svc.CommitOutcome(context.Background(), "q-1", true, a.RequestID, a.Signature)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTrue, q.Outcome)
	assert.Equal(t, []string{"q-1"}, f.cache.invalidated)

	cached, err := f.svc.GetQuestion(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTrue, cached.Outcome)
}

func TestCommitRejectionIsUnwrapped(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Attest(context.Background(), "q-1", nil, false)
	require.NoError(t, err)

	_, err = f.svc.CommitOutcome(context.Background(), "q-1", true, a.RequestID, a.Signature)
	require.ErrorIs(t, err, domain.ErrSignatureRejected)
	assert.NotContains(t, err.Error(), "question_service")
	assert.Empty(t, f.cache.invalidated)
}

func TestAttestDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := resolution.New(memory.NewQuestionStore(), oracle.NewMuonVerifier(program, logger), logger)
	svc := NewQuestionService(p, nil, nil, logger)

	_, err := svc.Attest(context.Background(), "q-1", nil, true)
	assert.ErrorIs(t, err, ErrAttestorDisabled)
	_, ok := svc.AttestorKey()
	assert.False(t, ok)
}

func TestMessageHashMatchesAttestation(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Attest(context.Background(), "q-1", domain.RequestID("r"), true)
	require.NoError(t, err)

	h, err := f.svc.MessageHash(context.Background(), "q-1", domain.RequestID("r"), true)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Cmp(a.MessageHash.Int))
}
