// Package cryptoutil is the crypto primitives facade: SHA-256,
// double-SHA-256, RIPEMD-160 and hex codec helpers used throughout the
// L2 core. It is pure — no state, no I/O — so every other package can
// depend on it without worrying about initialisation order.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by the Bitcoin P2PKH hash160 scheme
)

// DigestSize is the length in bytes of every digest produced by this
// package (and thus of every anchor hash, peg id, and task id).
const DigestSize = sha256.Size

// Digest is a 32-byte SHA-256 output.
type Digest [DigestSize]byte

// Hex renders the digest as lowercase hex.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool { return d == Digest{} }

// SHA256 hashes data once.
func SHA256(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// DoubleSHA256 hashes data twice, matching Bitcoin's tx/block hashing.
func DoubleSHA256(data []byte) Digest {
	first := sha256.Sum256(data)
	return Digest(sha256.Sum256(first[:]))
}

// RIPEMD160 hashes data with RIPEMD-160, used for Bitcoin's hash160
// (RIPEMD160(SHA256(pubkey))) style address derivations.
func RIPEMD160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}

// Hash160 computes RIPEMD160(SHA256(data)), the standard Bitcoin pubkey
// hash used to derive P2PKH addresses.
func Hash160(data []byte) []byte {
	sum := sha256.Sum256(data)
	return RIPEMD160(sum[:])
}

// HexEncode is the canonical lowercase hex codec used for ids printed to
// logs, keys and wire payloads.
func HexEncode(b []byte) string { return hex.EncodeToString(b) }

// HexDecode parses a lowercase (or mixed-case) hex string back to bytes.
func HexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// DigestFromHex parses a 64-character hex string into a Digest.
func DigestFromHex(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, err
	}
	var d Digest
	if len(b) != DigestSize {
		return Digest{}, errTooShort
	}
	copy(d[:], b)
	return d, nil
}

var errTooShort = shortHexError{}

type shortHexError struct{}

func (shortHexError) Error() string { return "cryptoutil: hex string is not 32 bytes" }
