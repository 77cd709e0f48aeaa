package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// secp256k1N is the order Q of the secp256k1 base point.
	secp256k1N = ethcrypto.S256().Params().N
	// secp256k1HalfN bounds group key x coordinates.
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// ErrInvalidSchnorr is wrapped by every VerifySchnorr failure.
var ErrInvalidSchnorr = errors.New("invalid schnorr signature")

// ValidGroupKeyX reports whether x can be the x coordinate of a group key
// that VerifySchnorr accepts: non-zero and below half the curve order.
func ValidGroupKeyX(x *big.Int) bool {
	return x != nil && x.Sign() > 0 && x.Cmp(secp256k1HalfN) < 0
}

// maxKeyAttempts caps rejection sampling in GenerateGroupKey and Sign. Each
// attempt succeeds with probability of roughly one half.
const maxKeyAttempts = 128

// VerifySchnorr checks a Muon group signature over msgHash.
//
// With group key P (x coordinate pubX, y parity), signature s and nonce
// address n it accepts iff s*G + e*P has address n, where
// e = keccak256(pubX || parity || msgHash || n). The point is recovered with
// ecrecover(Q - pubX*s, parity, pubX, e*pubX), which yields e*P + s*G.
func VerifySchnorr(pubX *big.Int, parity uint8, sig, msgHash *big.Int, nonce common.Address) error {
	if pubX == nil || sig == nil || msgHash == nil {
		return fmt.Errorf("%w: missing input", ErrInvalidSchnorr)
	}
	if parity > 1 {
		return fmt.Errorf("%w: parity must be 0 or 1, got %d", ErrInvalidSchnorr, parity)
	}
	if pubX.Cmp(secp256k1HalfN) >= 0 {
		return fmt.Errorf("%w: public key x >= half curve order", ErrInvalidSchnorr)
	}
	if sig.Cmp(secp256k1N) >= 0 {
		return fmt.Errorf("%w: signature must be reduced modulo the curve order", ErrInvalidSchnorr)
	}
	if msgHash.BitLen() > 256 {
		return fmt.Errorf("%w: message hash wider than 256 bits", ErrInvalidSchnorr)
	}
	if nonce == (common.Address{}) || pubX.Sign() <= 0 || sig.Sign() <= 0 || msgHash.Sign() <= 0 {
		return fmt.Errorf("%w: zero inputs are not allowed", ErrInvalidSchnorr)
	}

	e := challenge(pubX, parity, msgHash, nonce)

	m := new(big.Int).Mul(pubX, sig)
	m.Mod(m, secp256k1N)
	m.Sub(secp256k1N, m)

	s := new(big.Int).Mul(e, pubX)
	s.Mod(s, secp256k1N)
	if s.Sign() == 0 {
		return fmt.Errorf("%w: degenerate challenge", ErrInvalidSchnorr)
	}

	rsv := concatBytes(bigIntTo32Bytes(pubX), bigIntTo32Bytes(s), []byte{parity})
	recovered, err := ethcrypto.SigToPub(bigIntTo32Bytes(m), rsv)
	if err != nil {
		return fmt.Errorf("%w: ecrecover: %v", ErrInvalidSchnorr, err)
	}
	if ethcrypto.PubkeyToAddress(*recovered) != nonce {
		return fmt.Errorf("%w: nonce address mismatch", ErrInvalidSchnorr)
	}
	return nil
}

// challenge computes e = keccak256(pubX32 || parity8 || msgHash32 || nonce20).
func challenge(pubX *big.Int, parity uint8, msgHash *big.Int, nonce common.Address) *big.Int {
	digest := ethcrypto.Keccak256(
		bigIntTo32Bytes(pubX),
		[]byte{parity},
		bigIntTo32Bytes(msgHash),
		nonce.Bytes(),
	)
	return new(big.Int).SetBytes(digest)
}

// GroupKey is a single-party Schnorr key laid out like an oracle group key.
// It stands in for the threshold group on development networks.
type GroupKey struct {
	priv *ecdsa.PrivateKey
}

// NewGroupKey wraps a secp256k1 private key. The public x coordinate must be
// below half the curve order, as the verifier requires.
func NewGroupKey(priv *ecdsa.PrivateKey) (*GroupKey, error) {
	if priv == nil || priv.D == nil {
		return nil, errors.New("crypto/schnorr: nil private key")
	}
	if priv.PublicKey.X.Cmp(secp256k1HalfN) >= 0 {
		return nil, errors.New("crypto/schnorr: public key x must be below half the curve order")
	}
	return &GroupKey{priv: priv}, nil
}

// GroupKeyFromHex parses a hex-encoded private key (with or without 0x).
func GroupKeyFromHex(keyHex string) (*GroupKey, error) {
	priv, err := ethcrypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/schnorr: invalid private key: %w", err)
	}
	return NewGroupKey(priv)
}

// GenerateGroupKey draws random keys until one satisfies the x bound.
func GenerateGroupKey() (*GroupKey, error) {
	for i := 0; i < maxKeyAttempts; i++ {
		priv, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("crypto/schnorr: generate key: %w", err)
		}
		if k, err := NewGroupKey(priv); err == nil {
			return k, nil
		}
	}
	return nil, errors.New("crypto/schnorr: no suitable key found")
}

// PubX returns the x coordinate of the public key.
func (k *GroupKey) PubX() *big.Int {
	return new(big.Int).Set(k.priv.PublicKey.X)
}

// Parity returns the parity of the public key's y coordinate.
func (k *GroupKey) Parity() uint8 {
	return uint8(k.priv.PublicKey.Y.Bit(0))
}

// Address returns the Ethereum-style address of the public key.
func (k *GroupKey) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.priv.PublicKey)
}

// Hex returns the private key as lowercase hex without a prefix.
func (k *GroupKey) Hex() string {
	return common.Bytes2Hex(ethcrypto.FromECDSA(k.priv))
}

// Sign produces a signature VerifySchnorr accepts for msgHash under this key:
// s = k - e*x mod Q for a fresh nonce k.
func (k *GroupKey) Sign(msgHash *big.Int) (*big.Int, common.Address, error) {
	if msgHash == nil || msgHash.Sign() <= 0 || msgHash.BitLen() > 256 {
		return nil, common.Address{}, errors.New("crypto/schnorr: message hash must be in (0, 2^256)")
	}
	pubX := k.PubX()
	parity := k.Parity()

	for i := 0; i < maxKeyAttempts; i++ {
		nonceKey, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("crypto/schnorr: generate nonce: %w", err)
		}
		nonce := ethcrypto.PubkeyToAddress(nonceKey.PublicKey)

		e := challenge(pubX, parity, msgHash, nonce)
		s := new(big.Int).Mul(e, k.priv.D)
		s.Sub(nonceKey.D, s)
		s.Mod(s, secp256k1N)
		if s.Sign() == 0 {
			continue
		}
		return s, nonce, nil
	}
	return nil, common.Address{}, errors.New("crypto/schnorr: signing failed")
}
