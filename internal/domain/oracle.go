package domain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity names an account or program on the host ledger (for example a
// base58 Solana public key). It is compared byte-for-byte.
type Identity string

// RequestID is the opaque correlation value of one oracle signing round. It is
// hashed verbatim into the message and serialised as 0x-prefixed hex.
type RequestID []byte

// ParseRequestID decodes a hex request id, with or without the 0x prefix.
func ParseRequestID(s string) (RequestID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("request id is empty")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("request id is not valid hex: %w", err)
	}
	return RequestID(b), nil
}

// String returns the 0x-prefixed hex encoding.
func (r RequestID) String() string {
	return "0x" + hex.EncodeToString(r)
}

func (r RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RequestID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*r = nil
		return nil
	}
	parsed, err := ParseRequestID(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseUint256 parses a decimal or 0x-prefixed hex string into an integer in
// [0, 2^256). Signs, digit separators and other base prefixes are rejected.
func ParseUint256(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	digits, base := s, 10
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		digits, base = s[2:], 16
	}
	if !onlyDigits(digits, base) {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("integer %q out of uint256 range", s)
	}
	return n, nil
}

func onlyDigits(s string, base int) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case base == 16 && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		default:
			return false
		}
	}
	return true
}

// Uint256 is a big.Int that travels as a decimal string in JSON so values
// above 2^53 survive JavaScript clients.
type Uint256 struct {
	*big.Int
}

// NewUint256 wraps n.
func NewUint256(n *big.Int) Uint256 { return Uint256{Int: n} }

func (u Uint256) MarshalJSON() ([]byte, error) {
	if u.Int == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(u.Int.String())
}

func (u *Uint256) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Accept bare JSON numbers as well.
		s = string(data)
	}
	n, err := ParseUint256(s)
	if err != nil {
		return err
	}
	u.Int = n
	return nil
}

// GroupPubKey is the threshold group's secp256k1 public key, carried as its
// x coordinate and the parity of y (0 = even, 1 = odd).
type GroupPubKey struct {
	X      Uint256 `json:"x"`
	Parity uint8   `json:"parity"`
}

// SchnorrSign is a group signature as emitted by the oracle network. Nonce is
// the address of the nonce point R = k*G; Owner is the address of the group
// key and is forwarded but not interpreted.
type SchnorrSign struct {
	Signature Uint256        `json:"signature"`
	Owner     common.Address `json:"owner"`
	Nonce     common.Address `json:"nonce"`
}

// OracleAppInfo identifies the oracle application answering a question.
type OracleAppInfo struct {
	GroupPubKey GroupPubKey `json:"group_pub_key"`
	AppID       Uint256     `json:"app_id"`
}

// OracleVerifier is the oracle network's signature verification entry point.
// Verify returns nil when the network confirms that sig is a valid group
// signature over msgHash, and an error wrapping ErrSignatureRejected with the
// network's reason otherwise.
type OracleVerifier interface {
	Identity() Identity
	Verify(ctx context.Context, reqID RequestID, msgHash *big.Int, sig SchnorrSign, pubKey GroupPubKey) error
}
