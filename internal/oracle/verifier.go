// Package oracle adapts the Muon oracle network to the domain: a verifier for
// group signatures and a single-key attestor for development networks.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/muon-protocol/factgpt-examples/internal/crypto"
	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

// MuonVerifier checks Muon Schnorr group signatures the way the Muon
// verification program does. It answers only for the program identity it was
// built with.
type MuonVerifier struct {
	program domain.Identity
	logger  *slog.Logger
}

// NewMuonVerifier creates a verifier acting as the given program identity.
func NewMuonVerifier(program domain.Identity, logger *slog.Logger) *MuonVerifier {
	return &MuonVerifier{
		program: program,
		logger:  logger.With(slog.String("component", "muon_verifier")),
	}
}

// Identity returns the program identity this verifier acts as.
func (v *MuonVerifier) Identity() domain.Identity {
	return v.program
}

// Verify checks sig over msgHash against pubKey. The request id only
// correlates the round; it is already bound into msgHash.
func (v *MuonVerifier) Verify(ctx context.Context, reqID domain.RequestID, msgHash *big.Int, sig domain.SchnorrSign, pubKey domain.GroupPubKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := crypto.VerifySchnorr(pubKey.X.Int, pubKey.Parity, sig.Signature.Int, msgHash, sig.Nonce); err != nil {
		v.logger.DebugContext(ctx, "muon_verifier: signature rejected",
			slog.String("request_id", reqID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", domain.ErrSignatureRejected, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OracleVerifier = (*MuonVerifier)(nil)
