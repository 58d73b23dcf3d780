package bridge

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

// releaseMessage is the canonical message a federation signer signs to
// authorise a peg-out's L1 release transaction.
func releaseMessage(pegOut *PegOut) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", pegOut.PegID, pegOut.L1DestAddr, pegOut.L1ReleaseAmount)))
}

// VerifyFederationSignature checks sig against pubKeyBytes over the
// peg-out's canonical release message using secp256k1/ECDSA.
func VerifyFederationSignature(pubKeyBytes []byte, pegOut *PegOut, sig []byte) error {
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return errs.Wrap(errs.Validation, "bridge: invalid federation signer public key", err)
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return errs.Wrap(errs.Validation, "bridge: malformed federation signature", err)
	}
	msg := releaseMessage(pegOut)
	if !parsed.Verify(msg[:], pubKey) {
		return errs.New(errs.Unauthorized, "bridge: federation signature verification failed")
	}
	return nil
}
