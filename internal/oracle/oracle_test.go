package oracle

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muon-protocol/factgpt-examples/internal/crypto"
	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

func newTestAttestor(t *testing.T) *Attestor {
	t.Helper()
	key, err := crypto.GenerateGroupKey()
	require.NoError(t, err)
	return NewAttestor(key)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAttestationVerifies(t *testing.T) {
	att := newTestAttestor(t)
	v := NewMuonVerifier("muon-program", discardLogger())
	appID := big.NewInt(42)

	a, err := att.Attest(appID, domain.RequestID("round-1"), true)
	require.NoError(t, err)
	assert.Equal(t, 0, a.MessageHash.Cmp(crypto.MessageHash(appID, []byte("round-1"), true)))

	err = v.Verify(context.Background(), a.RequestID, a.MessageHash.Int, a.Signature, att.GroupPubKey())
	assert.NoError(t, err)
	assert.Equal(t, domain.Identity("muon-program"), v.Identity())
}

func TestAttestGeneratesRequestID(t *testing.T) {
	att := newTestAttestor(t)

	a, err := att.Attest(big.NewInt(1), nil, false)
	require.NoError(t, err)
	assert.Len(t, a.RequestID, requestIDLen)

	b, err := att.Attest(big.NewInt(1), nil, false)
	require.NoError(t, err)
	assert.NotEqual(t, a.RequestID, b.RequestID)
}

func TestVerifyRejectsFlippedOutcome(t *testing.T) {
	att := newTestAttestor(t)
	v := NewMuonVerifier("muon-program", discardLogger())

	a, err := att.Attest(big.NewInt(42), domain.RequestID("round-1"), true)
	require.NoError(t, err)

	flipped := crypto.MessageHash(big.NewInt(42), a.RequestID, false)
	err = v.Verify(context.Background(), a.RequestID, flipped, a.Signature, att.GroupPubKey())
	assert.ErrorIs(t, err, domain.ErrSignatureRejected)
}

func TestVerifyHonoursCancelledContext(t *testing.T) {
	att := newTestAttestor(t)
	v := NewMuonVerifier("muon-program", discardLogger())
	a, err := att.Attest(big.NewInt(42), nil, true)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = v.Verify(ctx, a.RequestID, a.MessageHash.Int, a.Signature, att.GroupPubKey())
	assert.ErrorIs(t, err, context.Canceled)
}
