package oracle

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/muon-protocol/factgpt-examples/internal/crypto"
	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

// requestIDLen matches the size of a Muon request id.
const requestIDLen = 36

// Attestation is a signed answer for one question, ready to be committed.
type Attestation struct {
	RequestID   domain.RequestID   `json:"request_id"`
	Outcome     bool               `json:"outcome"`
	MessageHash domain.Uint256     `json:"message_hash"`
	Signature   domain.SchnorrSign `json:"signature"`
}

// Attestor signs outcomes with a single group key. It stands in for the
// oracle network on development deployments and in tests.
type Attestor struct {
	key *crypto.GroupKey
}

// NewAttestor creates an Attestor signing with key.
func NewAttestor(key *crypto.GroupKey) *Attestor {
	return &Attestor{key: key}
}

// GroupPubKey returns the public key questions must be bound to for this
// attestor's signatures to verify.
func (a *Attestor) GroupPubKey() domain.GroupPubKey {
	return domain.GroupPubKey{
		X:      domain.NewUint256(a.key.PubX()),
		Parity: a.key.Parity(),
	}
}

// Attest signs outcome for the application appID. A nil reqID is replaced by
// a random request id.
func (a *Attestor) Attest(appID *big.Int, reqID domain.RequestID, outcome bool) (Attestation, error) {
	if len(reqID) == 0 {
		reqID = make(domain.RequestID, requestIDLen)
		if _, err := rand.Read(reqID); err != nil {
			return Attestation{}, fmt.Errorf("oracle/attestor: generate request id: %w", err)
		}
	}

	hash := crypto.MessageHash(appID, reqID, outcome)
	sig, nonce, err := a.key.Sign(hash)
	if err != nil {
		return Attestation{}, fmt.Errorf("oracle/attestor: sign: %w", err)
	}

	return Attestation{
		RequestID:   reqID,
		Outcome:     outcome,
		MessageHash: domain.NewUint256(hash),
		Signature: domain.SchnorrSign{
			Signature: domain.NewUint256(sig),
			Owner:     a.key.Address(),
			Nonce:     nonce,
		},
	}, nil
}
