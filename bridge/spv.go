package bridge

import (
	"bytes"

	"github.com/btc-l2/anchorcore/pkg/cryptoutil"
	"github.com/btc-l2/anchorcore/pkg/errs"
)

// SPVProof is the client-submitted proof a peg-in transaction is
// included in an L1 block: the raw transaction, its merkle path
// (siblings ordered leaf-to-root), and the claimed 80-byte block
// header.
type SPVProof struct {
	TxBytes     []byte
	MerklePath  [][32]byte
	BlockHeader [80]byte
}

// merkleRootOffset is where the 32-byte merkle root sits inside a
// standard 80-byte Bitcoin block header: 4 (version) + 32 (prev hash).
const merkleRootOffset = 36

// VerifySPV recomputes the merkle root from the transaction and its
// path and compares it against the root embedded in the claimed block
// header, per spec section 4.8 step 2. Sibling pairs are combined in
// canonical (byte-ascending) order so the proof format does not need to
// separately encode left/right.
func VerifySPV(proof SPVProof) error {
	if len(proof.TxBytes) == 0 {
		return errs.New(errs.Validation, "bridge: empty transaction bytes")
	}
	current := cryptoutil.DoubleSHA256(proof.TxBytes)
	for _, sibling := range proof.MerklePath {
		current = combineCanonical(current, cryptoutil.Digest(sibling))
	}

	var embeddedRoot [32]byte
	copy(embeddedRoot[:], proof.BlockHeader[merkleRootOffset:merkleRootOffset+32])

	if !bytes.Equal(current[:], embeddedRoot[:]) {
		return errs.New(errs.Consistency, "bridge: spv proof does not reconstruct header merkle root")
	}
	return nil
}

func combineCanonical(a, b cryptoutil.Digest) cryptoutil.Digest {
	var buf [64]byte
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(buf[:32], a[:])
		copy(buf[32:], b[:])
	} else {
		copy(buf[:32], b[:])
		copy(buf[32:], a[:])
	}
	return cryptoutil.DoubleSHA256(buf[:])
}
