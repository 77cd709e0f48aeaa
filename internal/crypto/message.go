// Package crypto builds the message an oracle group signs for a question
// outcome, verifies and produces Muon-style Schnorr signatures over
// secp256k1, and manages encrypted attestor keys.
package crypto

import (
	"math/big"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MessageBytes returns the exact preimage the oracle group signs:
//
//	be32(appID) || reqID || "true" | "false"
//
// Fields are concatenated without delimiters. The outcome is the lowercase
// ASCII literal, matching the oracle network's own hashing.
func MessageBytes(appID *big.Int, reqID []byte, outcome bool) []byte {
	return concatBytes(
		bigIntTo32Bytes(appID),
		reqID,
		[]byte(strconv.FormatBool(outcome)),
	)
}

// MessageHash returns keccak256(MessageBytes(...)) read as a 256-bit
// big-endian integer.
func MessageHash(appID *big.Int, reqID []byte, outcome bool) *big.Int {
	return new(big.Int).SetBytes(ethcrypto.Keccak256(MessageBytes(appID, reqID, outcome)))
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n, keeping
// the low-order 32 bytes of wider values.
func bigIntTo32Bytes(n *big.Int) []byte {
	padded := make([]byte, 32)
	if n == nil {
		return padded
	}
	b := n.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
