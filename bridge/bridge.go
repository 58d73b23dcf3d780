package bridge

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/btc-l2/anchorcore/adapter"
	"github.com/btc-l2/anchorcore/ledger"
	"github.com/btc-l2/anchorcore/metrics"
	"github.com/btc-l2/anchorcore/pkg/errs"
)

// Config tunes bridge thresholds, grounded on spec section 4.8's stated
// defaults.
type Config struct {
	MinPegInAmount         uint64
	MaxPegInAmount         uint64
	BridgeFeeSats          uint64
	MinConfirmationsPegIn  uint64
	MinConfirmationsPegOut uint64
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinPegInAmount:         10_000,
		MaxPegInAmount:         1_000_000_000,
		BridgeFeeSats:          1_000,
		MinConfirmationsPegIn:  6,
		MinConfirmationsPegOut: 100,
	}
}

// Bridge owns every peg-in/peg-out record and the federation's signing
// state. It mutates the L2 ledger directly to mint and burn.
type Bridge struct {
	cfg   Config
	led   *ledger.Ledger
	l1    adapter.Adapter
	log   *logrus.Entry

	mu                sync.Mutex
	pegIns            map[string]*PegIn
	pegOuts           map[string]*PegOut
	federation        Federation
	registeredAnchors map[string]bool
	emergencyMode     bool
	swaps             map[string]*AtomicSwap

	metrics *metrics.BridgeMetrics
}

// AttachMetrics wires m into the bridge so peg lifecycle and
// collateralization events update it synchronously, per spec section
// 4.11. Passing nil detaches metrics.
func (b *Bridge) AttachMetrics(m *metrics.BridgeMetrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
}

// New returns a Bridge backed by led (for mint/burn) and l1 (for peg-out
// release broadcast). l1 may be nil: a peg-out that reaches threshold
// signing then takes a sha256-derived release tx id instead of a
// broadcast one.
func New(cfg Config, led *ledger.Ledger, l1 adapter.Adapter, log *logrus.Entry) *Bridge {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bridge{
		cfg:               cfg,
		led:               led,
		l1:                l1,
		log:               log.WithField("component", "bridge"),
		pegIns:            make(map[string]*PegIn),
		pegOuts:           make(map[string]*PegOut),
		registeredAnchors: make(map[string]bool),
		swaps:             make(map[string]*AtomicSwap),
		federation:        Federation{Signers: make(map[string]*FederationSigner)},
	}
}

// RegisterAnchor marks anchorHash as a validated anchor a peg-out may
// bind to, per spec section 4.8's peg-out initiation requirement.
func (b *Bridge) RegisterAnchor(anchorHash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registeredAnchors[anchorHash] = true
}

// EngageEmergencyMode disables mint completion and peg-out release.
func (b *Bridge) EngageEmergencyMode() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emergencyMode = true
	if b.metrics != nil {
		b.metrics.EmergencyModeActive.Set(1)
	}
	b.log.Warn("emergency mode engaged")
}

// ClearEmergencyMode requires the federation to have reestablished
// quorum before clearing, per spec section 4.8.
func (b *Bridge) ClearEmergencyMode() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.federation.HasQuorum() {
		return errs.New(errs.Unauthorized, "bridge: cannot clear emergency mode without federation quorum")
	}
	b.emergencyMode = false
	if b.metrics != nil {
		b.metrics.EmergencyModeActive.Set(0)
	}
	return nil
}

// CollateralAlert classifies the locked_l1/minted_l2 ratio per spec
// section 4.8's invariant band.
type CollateralAlert int

const (
	CollateralOK CollateralAlert = iota
	CollateralWarning
	CollateralCritical
)

// CheckCollateralization computes lockedL1/mintedL2 and classifies it
// against the [0.95, 1.05] healthy band.
func CheckCollateralization(lockedL1, mintedL2 uint64) (float64, CollateralAlert) {
	if mintedL2 == 0 {
		if lockedL1 == 0 {
			return 1.0, CollateralOK
		}
		return 0, CollateralCritical
	}
	ratio := float64(lockedL1) / float64(mintedL2)
	switch {
	case ratio >= 0.95 && ratio <= 1.05:
		return ratio, CollateralOK
	case ratio >= 0.85 && ratio <= 1.15:
		return ratio, CollateralWarning
	default:
		return ratio, CollateralCritical
	}
}

// ObserveCollateralization runs CheckCollateralization and, if metrics are
// attached, publishes the ratio to the bridge's collateral gauge.
func (b *Bridge) ObserveCollateralization(lockedL1, mintedL2 uint64) (float64, CollateralAlert) {
	ratio, alert := CheckCollateralization(lockedL1, mintedL2)
	b.mu.Lock()
	m := b.metrics
	b.mu.Unlock()
	if m != nil {
		m.CollateralRatio.Set(ratio)
	}
	return ratio, alert
}

// --- Peg-in ----------------------------------------------------------

// InitiatePegIn validates bounds and creates a PegIn in Initiated.
func (b *Bridge) InitiatePegIn(l1TxID string, vout uint32, amount uint64, l1Source, l2Dest string) (*PegIn, error) {
	if amount < b.cfg.MinPegInAmount || amount > b.cfg.MaxPegInAmount {
		return nil, errs.New(errs.Validation, "bridge: peg-in amount outside [MIN, MAX]")
	}
	if l1TxID == "" || l1Source == "" || l2Dest == "" {
		return nil, errs.New(errs.Validation, "bridge: missing required peg-in fields")
	}

	pegIn := &PegIn{
		PegID:        uuid.NewString(),
		L1TxID:       l1TxID,
		Vout:         vout,
		L1Amount:     amount,
		L1SourceAddr: l1Source,
		L2DestAddr:   l2Dest,
		Status:       PegInInitiated,
		CreatedAt:    time.Now().UTC(),
	}

	b.mu.Lock()
	b.pegIns[pegIn.PegID] = pegIn
	b.mu.Unlock()
	return pegIn, nil
}

// SubmitPegInProof verifies proof and transitions Initiated ->
// PendingL1Conf.
func (b *Bridge) SubmitPegInProof(pegID string, proof SPVProof) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pegIn, ok := b.pegIns[pegID]
	if !ok {
		return errs.New(errs.NotFound, "bridge: peg-in "+pegID+" not found")
	}
	if pegIn.Status != PegInInitiated {
		return errs.New(errs.Conflict, "bridge: peg-in not in Initiated state")
	}
	if err := VerifySPV(proof); err != nil {
		return err
	}
	pegIn.Status = PegInPendingL1Conf
	return nil
}

// UpdatePegInConfirmations records confirmations and promotes
// PendingL1Conf -> L1Confirmed at the threshold.
func (b *Bridge) UpdatePegInConfirmations(pegID string, confirmations, l1Height uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pegIn, ok := b.pegIns[pegID]
	if !ok {
		return errs.New(errs.NotFound, "bridge: peg-in "+pegID+" not found")
	}
	pegIn.L1Confirmations = confirmations
	pegIn.L1BlockHeight = l1Height
	if confirmations >= b.cfg.MinConfirmationsPegIn && pegIn.Status == PegInPendingL1Conf {
		pegIn.Status = PegInL1Confirmed
	}
	return nil
}

// CompleteMint credits the L2 destination with l1_amount minus the
// bridge fee and transitions to Minted.
func (b *Bridge) CompleteMint(pegID string) error {
	b.mu.Lock()
	if b.emergencyMode {
		b.mu.Unlock()
		return errs.New(errs.Fatal, "bridge: emergency mode blocks mint completion")
	}
	pegIn, ok := b.pegIns[pegID]
	if !ok {
		b.mu.Unlock()
		return errs.New(errs.NotFound, "bridge: peg-in "+pegID+" not found")
	}
	if pegIn.Status != PegInL1Confirmed {
		b.mu.Unlock()
		return errs.New(errs.Conflict, "bridge: peg-in not in L1Confirmed state")
	}
	fee := b.cfg.BridgeFeeSats
	if fee > pegIn.L1Amount {
		fee = pegIn.L1Amount
	}
	mintAmount := pegIn.L1Amount - fee
	dest := pegIn.L2DestAddr
	b.mu.Unlock()

	if mintAmount > 0 {
		if err := b.led.Credit(dest, mintAmount); err != nil {
			return err
		}
	}

	b.mu.Lock()
	pegIn.L2MintAmount = mintAmount
	pegIn.Status = PegInMinted
	m := b.metrics
	b.mu.Unlock()
	if m != nil {
		m.PegInsMinted.Inc()
	}
	return nil
}

// GetPegIn returns the peg-in record for pegID, if present.
func (b *Bridge) GetPegIn(pegID string) (PegIn, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pegIns[pegID]
	if !ok {
		return PegIn{}, false
	}
	return *p, true
}

// --- Peg-out -----------------------------------------------------------

// InitiatePegOut requires a registered anchor hash, burns l2BurnAmount
// from l2Source, and creates the record in BurnInitiated.
func (b *Bridge) InitiatePegOut(l2Source, l1Dest string, l2BurnAmount uint64, anchorHash string, l2BurnHeight uint64) (*PegOut, error) {
	if anchorHash == "" {
		return nil, errs.New(errs.Validation, "bridge: peg-out requires an anchor commitment hash")
	}
	b.mu.Lock()
	registered := b.registeredAnchors[anchorHash]
	b.mu.Unlock()
	if !registered {
		return nil, errs.New(errs.Unauthorized, "bridge: anchor "+anchorHash+" is not registered with the bridge")
	}

	if err := b.led.Debit(l2Source, l2BurnAmount); err != nil {
		return nil, err
	}

	pegOut := &PegOut{
		PegID:                uuid.NewString(),
		L2SourceAddr:         l2Source,
		L1DestAddr:           l1Dest,
		L2BurnAmount:         l2BurnAmount,
		L1ReleaseAmount:      l2BurnAmount,
		L2BurnHeight:         l2BurnHeight,
		AnchorCommitmentHash: anchorHash,
		Signatures:           make(map[string][]byte),
		Status:               PegOutBurnInitiated,
		CreatedAt:            time.Now().UTC(),
	}

	b.mu.Lock()
	b.pegOuts[pegOut.PegID] = pegOut
	b.mu.Unlock()
	return pegOut, nil
}

// UpdatePegOutConfirmations records confirmations and promotes
// BurnInitiated -> PendingPegOut at the threshold.
func (b *Bridge) UpdatePegOutConfirmations(pegID string, confirmations uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pegOut, ok := b.pegOuts[pegID]
	if !ok {
		return errs.New(errs.NotFound, "bridge: peg-out "+pegID+" not found")
	}
	pegOut.L2Confirmations = confirmations
	if confirmations >= b.cfg.MinConfirmationsPegOut && pegOut.Status == PegOutBurnInitiated {
		pegOut.Status = PegOutPendingPegOut
	}
	return nil
}

// AddFederationSignature accepts a signature from an active signer
// bound to a still-registered anchor, and broadcasts the release
// transaction once the threshold is reached.
func (b *Bridge) AddFederationSignature(ctx context.Context, pegID, signerID string, sig []byte) error {
	b.mu.Lock()
	if b.emergencyMode {
		b.mu.Unlock()
		return errs.New(errs.Fatal, "bridge: emergency mode blocks peg-out release")
	}
	pegOut, ok := b.pegOuts[pegID]
	if !ok {
		b.mu.Unlock()
		return errs.New(errs.NotFound, "bridge: peg-out "+pegID+" not found")
	}
	if pegOut.Status != PegOutPendingPegOut {
		b.mu.Unlock()
		return errs.New(errs.Conflict, "bridge: peg-out not in PendingPegOut state")
	}
	if !b.registeredAnchors[pegOut.AnchorCommitmentHash] {
		b.mu.Unlock()
		return errs.New(errs.Unauthorized, "bridge: peg-out's anchor is no longer registered")
	}
	signer, ok := b.federation.Signers[signerID]
	if !ok || !signer.Active {
		b.mu.Unlock()
		return errs.New(errs.Unauthorized, "bridge: signer "+signerID+" is not an active federation member")
	}
	if err := VerifyFederationSignature(signer.PubKey, pegOut, sig); err != nil {
		b.mu.Unlock()
		return err
	}

	pegOut.Signatures[signerID] = sig
	signer.SignatureCount++

	readyToRelease := len(pegOut.Signatures) >= int(b.federation.Threshold)
	l1Dest := pegOut.L1DestAddr
	amount := pegOut.L1ReleaseAmount
	l1 := b.l1
	m := b.metrics
	b.mu.Unlock()

	if m != nil {
		m.FederationSignatures.Inc()
	}

	if !readyToRelease {
		return nil
	}

	rawTx := buildReleaseTx(pegID, l1Dest, amount)
	var txID string
	var err error
	if l1 != nil {
		txID, err = l1.Broadcast(ctx, adapter.BroadcastOpts{RawTx: rawTx})
		if err != nil {
			return err
		}
	} else {
		digest := sha256.Sum256(rawTx)
		txID = string(digest[:8])
	}

	b.mu.Lock()
	pegOut.L1ReleaseTxID = txID
	pegOut.Status = PegOutCompleted
	b.mu.Unlock()
	if m != nil {
		m.PegOutsCompleted.Inc()
	}
	return nil
}

func buildReleaseTx(pegID, l1Dest string, amount uint64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", pegID, l1Dest, amount))
}

// GetPegOut returns the peg-out record for pegID, if present.
func (b *Bridge) GetPegOut(pegID string) (PegOut, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pegOuts[pegID]
	if !ok {
		return PegOut{}, false
	}
	cp := *p
	cp.Signatures = make(map[string][]byte, len(p.Signatures))
	for k, v := range p.Signatures {
		cp.Signatures[k] = v
	}
	return cp, true
}

// --- Federation --------------------------------------------------------

// RegisterSigner adds or replaces a federation signer.
func (b *Bridge) RegisterSigner(s FederationSigner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.Active = true
	b.federation.Signers[s.ID] = &s
}

// SetThreshold sets the federation's signature threshold.
func (b *Bridge) SetThreshold(threshold uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.federation.Threshold = threshold
}

// RecordMissedSignature increments a signer's miss count, auto-
// deactivating at 10 misses per spec section 4.8.
func (b *Bridge) RecordMissedSignature(signerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.federation.Signers[signerID]
	if !ok {
		return
	}
	s.MissedCount++
	if s.MissedCount >= 10 {
		s.Active = false
	}
}

// HasQuorum reports whether the federation currently has enough active
// signers to reach its threshold.
func (b *Bridge) HasQuorum() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.federation.HasQuorum()
}
