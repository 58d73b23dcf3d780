package bridge

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/btc-l2/anchorcore/ledger"
	"github.com/btc-l2/anchorcore/pkg/cryptoutil"
	"github.com/btc-l2/anchorcore/pkg/errs"
)

func newTestBridge(t *testing.T) (*Bridge, *ledger.Ledger) {
	t.Helper()
	led := ledger.New(nil)
	b := New(DefaultConfig(), led, nil, nil)
	return b, led
}

func buildValidSPVProof(txBytes []byte, sibling [32]byte) SPVProof {
	leaf := cryptoutil.DoubleSHA256(txBytes)
	root := combineCanonical(leaf, cryptoutil.Digest(sibling))

	var header [80]byte
	copy(header[merkleRootOffset:merkleRootOffset+32], root[:])

	return SPVProof{TxBytes: txBytes, MerklePath: [][32]byte{sibling}, BlockHeader: header}
}

func TestPegInFullLifecycle(t *testing.T) {
	b, led := newTestBridge(t)

	pegIn, err := b.InitiatePegIn("l1tx1", 0, 50_000, "bc1source", "l2dest")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if pegIn.Status != PegInInitiated {
		t.Fatalf("status = %v, want Initiated", pegIn.Status)
	}

	proof := buildValidSPVProof([]byte("raw-tx-bytes"), [32]byte{1, 2, 3})
	if err := b.SubmitPegInProof(pegIn.PegID, proof); err != nil {
		t.Fatalf("submit proof: %v", err)
	}

	rec, _ := b.GetPegIn(pegIn.PegID)
	if rec.Status != PegInPendingL1Conf {
		t.Fatalf("status = %v, want PendingL1Conf", rec.Status)
	}

	if err := b.UpdatePegInConfirmations(pegIn.PegID, 6, 800_000); err != nil {
		t.Fatalf("update confirmations: %v", err)
	}
	rec, _ = b.GetPegIn(pegIn.PegID)
	if rec.Status != PegInL1Confirmed {
		t.Fatalf("status = %v, want L1Confirmed", rec.Status)
	}

	if err := b.CompleteMint(pegIn.PegID); err != nil {
		t.Fatalf("complete mint: %v", err)
	}
	rec, _ = b.GetPegIn(pegIn.PegID)
	if rec.Status != PegInMinted {
		t.Fatalf("status = %v, want Minted", rec.Status)
	}
	wantMint := 50_000 - DefaultConfig().BridgeFeeSats
	if rec.L2MintAmount != wantMint {
		t.Fatalf("mint amount = %d, want %d", rec.L2MintAmount, wantMint)
	}
	if got := led.BalanceOf("l2dest"); got != wantMint {
		t.Fatalf("ledger balance = %d, want %d", got, wantMint)
	}
}

func TestInitiatePegInRejectsOutOfBoundAmount(t *testing.T) {
	b, _ := newTestBridge(t)
	_, err := b.InitiatePegIn("l1tx1", 0, 1, "src", "dst")
	if !errs.Is(err, errs.Validation) {
		t.Fatalf("err = %v, want Validation", err)
	}
}

func TestSubmitPegInProofRejectsBadMerklePath(t *testing.T) {
	b, _ := newTestBridge(t)
	pegIn, _ := b.InitiatePegIn("l1tx1", 0, 50_000, "src", "dst")

	var header [80]byte
	badProof := SPVProof{TxBytes: []byte("tx"), MerklePath: nil, BlockHeader: header}
	if err := b.SubmitPegInProof(pegIn.PegID, badProof); !errs.Is(err, errs.Consistency) {
		t.Fatalf("err = %v, want Consistency", err)
	}
}

func TestPegOutRequiresRegisteredAnchor(t *testing.T) {
	b, led := newTestBridge(t)
	_ = led.Credit("l2source", 100_000)
	_, err := b.InitiatePegOut("l2source", "bc1dest", 10_000, "unregistered-anchor", 500)
	if !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
}

func newSigner(t *testing.T, id string) (FederationSigner, *btcec.PrivateKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return FederationSigner{ID: id, PubKey: priv.PubKey().SerializeCompressed(), Stake: 1000, Reputation: 80}, priv
}

func TestPegOutFullLifecycleWithFederationThreshold(t *testing.T) {
	b, led := newTestBridge(t)
	_ = led.Credit("l2source", 100_000)
	b.RegisterAnchor("anchor-1")
	b.SetThreshold(2)

	signer1, priv1 := newSigner(t, "s1")
	signer2, priv2 := newSigner(t, "s2")
	b.RegisterSigner(signer1)
	b.RegisterSigner(signer2)

	pegOut, err := b.InitiatePegOut("l2source", "bc1dest", 10_000, "anchor-1", 500)
	if err != nil {
		t.Fatalf("initiate pegout: %v", err)
	}
	if got := led.BalanceOf("l2source"); got != 90_000 {
		t.Fatalf("l2source balance = %d, want 90000 (burned)", got)
	}

	if err := b.UpdatePegOutConfirmations(pegOut.PegID, 100); err != nil {
		t.Fatalf("update confirmations: %v", err)
	}
	rec, _ := b.GetPegOut(pegOut.PegID)
	if rec.Status != PegOutPendingPegOut {
		t.Fatalf("status = %v, want PendingPegOut", rec.Status)
	}

	msg := releaseMessage(&rec)
	sig1 := ecdsa.Sign(priv1, msg[:]).Serialize()
	ctx := context.Background()
	if err := b.AddFederationSignature(ctx, pegOut.PegID, "s1", sig1); err != nil {
		t.Fatalf("add sig 1: %v", err)
	}
	rec, _ = b.GetPegOut(pegOut.PegID)
	if rec.Status != PegOutPendingPegOut {
		t.Fatalf("status after one signature = %v, want still PendingPegOut", rec.Status)
	}

	sig2 := ecdsa.Sign(priv2, msg[:]).Serialize()
	if err := b.AddFederationSignature(ctx, pegOut.PegID, "s2", sig2); err != nil {
		t.Fatalf("add sig 2: %v", err)
	}
	rec, _ = b.GetPegOut(pegOut.PegID)
	if rec.Status != PegOutCompleted {
		t.Fatalf("status = %v, want Completed", rec.Status)
	}
	if rec.L1ReleaseTxID == "" {
		t.Fatal("expected a release tx id to be recorded")
	}
}

func TestAddFederationSignatureRejectsInactiveSigner(t *testing.T) {
	b, led := newTestBridge(t)
	_ = led.Credit("l2source", 100_000)
	b.RegisterAnchor("anchor-1")
	b.SetThreshold(1)
	signer, _ := newSigner(t, "s1")
	signer.Active = false
	b.mu.Lock()
	b.federation.Signers["s1"] = &signer
	b.mu.Unlock()

	pegOut, _ := b.InitiatePegOut("l2source", "bc1dest", 10_000, "anchor-1", 500)
	_ = b.UpdatePegOutConfirmations(pegOut.PegID, 100)

	err := b.AddFederationSignature(context.Background(), pegOut.PegID, "s1", []byte("sig"))
	if !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
}

func TestRecordMissedSignatureAutoDeactivates(t *testing.T) {
	b, _ := newTestBridge(t)
	signer, _ := newSigner(t, "s1")
	b.RegisterSigner(signer)
	for i := 0; i < 10; i++ {
		b.RecordMissedSignature("s1")
	}
	b.mu.Lock()
	active := b.federation.Signers["s1"].Active
	b.mu.Unlock()
	if active {
		t.Fatal("expected signer to auto-deactivate at 10 misses")
	}
}

func TestCheckCollateralization(t *testing.T) {
	cases := []struct {
		locked, minted uint64
		want           CollateralAlert
	}{
		{1000, 1000, CollateralOK},
		{950, 1000, CollateralOK},
		{1050, 1000, CollateralOK},
		{880, 1000, CollateralWarning},
		{700, 1000, CollateralCritical},
	}
	for _, c := range cases {
		_, got := CheckCollateralization(c.locked, c.minted)
		if got != c.want {
			t.Fatalf("CheckCollateralization(%d, %d) = %v, want %v", c.locked, c.minted, got, c.want)
		}
	}
}

func TestEmergencyModeBlocksMintAndRelease(t *testing.T) {
	b, led := newTestBridge(t)
	_ = led.Credit("source", 1_000_000)
	pegIn, _ := b.InitiatePegIn("l1tx1", 0, 50_000, "src", "dst")
	proof := buildValidSPVProof([]byte("raw"), [32]byte{9})
	_ = b.SubmitPegInProof(pegIn.PegID, proof)
	_ = b.UpdatePegInConfirmations(pegIn.PegID, 6, 1)
	b.RegisterAnchor("anchor-1")
	pegOut, err := b.InitiatePegOut("source", "bc1dest", 10_000, "anchor-1", 1)
	if err != nil {
		t.Fatalf("initiate peg-out: %v", err)
	}
	_ = b.UpdatePegOutConfirmations(pegOut.PegID, 100)

	b.EngageEmergencyMode()
	if err := b.CompleteMint(pegIn.PegID); !errs.Is(err, errs.Fatal) {
		t.Fatalf("err = %v, want Fatal during emergency mode", err)
	}
	if err := b.AddFederationSignature(context.Background(), pegOut.PegID, "s1", []byte("sig")); !errs.Is(err, errs.Fatal) {
		t.Fatalf("release err = %v, want Fatal during emergency mode", err)
	}
}

func TestClearEmergencyModeRequiresQuorum(t *testing.T) {
	b, _ := newTestBridge(t)
	b.EngageEmergencyMode()
	b.SetThreshold(1)
	if err := b.ClearEmergencyMode(); !errs.Is(err, errs.Unauthorized) {
		t.Fatalf("err = %v, want Unauthorized without quorum", err)
	}
	signer, _ := newSigner(t, "s1")
	b.RegisterSigner(signer)
	if err := b.ClearEmergencyMode(); err != nil {
		t.Fatalf("clear with quorum: %v", err)
	}
}

func TestHTLCClaimAndRefund(t *testing.T) {
	b, _ := newTestBridge(t)
	secret := []byte("my-secret")
	hashLock := sha256.Sum256(secret)
	now := time.Unix(1700000000, 0).UTC()

	swap := b.CreateSwap("alice", "bob", 100, 200, hashLock, now.Add(time.Hour))

	if err := b.Claim(swap.SwapID, "alice", secret, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	rec, _ := b.GetSwap(swap.SwapID)
	if !rec.ClaimedA {
		t.Fatal("expected party A claimed")
	}

	if err := b.Claim(swap.SwapID, "bob", []byte("wrong-secret"), now); !errs.Is(err, errs.Validation) {
		t.Fatalf("err = %v, want Validation for wrong secret", err)
	}

	if err := b.Refund(swap.SwapID, "bob", now.Add(2*time.Hour)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	rec, _ = b.GetSwap(swap.SwapID)
	if !rec.RefundedB {
		t.Fatal("expected party B refunded")
	}
}

func TestHTLCRefundBeforeTimelockFails(t *testing.T) {
	b, _ := newTestBridge(t)
	secret := []byte("s")
	hashLock := sha256.Sum256(secret)
	now := time.Unix(1700000000, 0).UTC()
	swap := b.CreateSwap("alice", "bob", 1, 1, hashLock, now.Add(time.Hour))

	if err := b.Refund(swap.SwapID, "alice", now); !errs.Is(err, errs.Conflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
}
