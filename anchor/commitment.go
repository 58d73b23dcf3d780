package anchor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

// Commitment is the deterministic, L1-broadcastable summary of an L2
// state snapshot (spec section 3 "Anchor commitment").
type Commitment struct {
	L2StateRoot      [32]byte
	TimestampMs      int64
	RecoveryMetadata []byte
	Payload          []byte
	Hash             [32]byte
}

// rlpPayload is the deterministic wire form hashed to produce
// Commitment.Hash. Field order is fixed by the struct declaration, so
// rlp.EncodeToBytes is canonical across runs and platforms.
type rlpPayload struct {
	L2StateRoot      []byte
	TimestampMs      uint64
	RecoveryMetadata []byte
}

// Build implements spec section 4.4's algorithm: canonicalise the
// snapshot, derive its state root, RLP-encode the payload, and hash it.
func Build(snapshot Snapshot, timestampMs int64, recoveryMetadata []byte) (Commitment, error) {
	root := snapshot.StateRoot()

	payloadStruct := rlpPayload{
		L2StateRoot:      root[:],
		TimestampMs:      uint64(timestampMs),
		RecoveryMetadata: recoveryMetadata,
	}
	payload, err := rlp.EncodeToBytes(payloadStruct)
	if err != nil {
		return Commitment{}, errs.Wrap(errs.Fatal, "anchor: encode payload", err)
	}

	return Commitment{
		L2StateRoot:      root,
		TimestampMs:      timestampMs,
		RecoveryMetadata: recoveryMetadata,
		Payload:          payload,
		Hash:             sha256.Sum256(payload),
	}, nil
}

// Verify recomputes the state root from snapshot, checks that
// commitment.Payload is the encoding of commitment's fields, and checks
// that commitment.Hash is the SHA-256 of that payload; the root and hash
// comparisons are case-insensitive on the hex rendering per spec section
// 4.4. Any mismatch is a hard failure.
func Verify(snapshot Snapshot, commitment Commitment) error {
	wantRoot := snapshot.StateRoot()
	if !strings.EqualFold(hex.EncodeToString(wantRoot[:]), hex.EncodeToString(commitment.L2StateRoot[:])) {
		return errs.New(errs.Consistency, "anchor: state root mismatch")
	}

	payloadStruct := rlpPayload{
		L2StateRoot:      commitment.L2StateRoot[:],
		TimestampMs:      uint64(commitment.TimestampMs),
		RecoveryMetadata: commitment.RecoveryMetadata,
	}
	payload, err := rlp.EncodeToBytes(payloadStruct)
	if err != nil {
		return errs.Wrap(errs.Fatal, "anchor: re-encode payload", err)
	}
	if !bytes.Equal(payload, commitment.Payload) {
		return errs.New(errs.Consistency, "anchor: payload does not match commitment fields")
	}
	wantHash := sha256.Sum256(commitment.Payload)
	if !strings.EqualFold(hex.EncodeToString(wantHash[:]), hex.EncodeToString(commitment.Hash[:])) {
		return errs.New(errs.Consistency, "anchor: payload hash mismatch")
	}
	return nil
}
