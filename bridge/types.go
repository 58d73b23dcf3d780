// Package bridge implements the two-way Bitcoin peg (spec section 4.8):
// SPV-verified peg-in minting, burn-then-release peg-out with
// federation threshold signing, and HTLC atomic swaps. The bridge is
// the sole writer of peg records and federation signatures.
//
// The registry-of-records-behind-a-mutex shape, and the CRUD style for
// PegIn/PegOut, are adapted from the teacher's BridgeTransfer store
// (core/cross_chain_bridge.go): one struct per cross-chain transfer,
// looked up by id, status advanced by explicit transition methods
// rather than by mutating fields directly from callers.
package bridge

import "time"

// PegInStatus is the lifecycle state of a PegIn record.
type PegInStatus int

const (
	PegInInitiated PegInStatus = iota
	PegInPendingL1Conf
	PegInL1Confirmed
	PegInMinted
	PegInFailed
)

func (s PegInStatus) String() string {
	switch s {
	case PegInInitiated:
		return "initiated"
	case PegInPendingL1Conf:
		return "pending_l1_conf"
	case PegInL1Confirmed:
		return "l1_confirmed"
	case PegInMinted:
		return "minted"
	case PegInFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PegOutStatus is the lifecycle state of a PegOut record.
type PegOutStatus int

const (
	PegOutBurnInitiated PegOutStatus = iota
	PegOutPendingPegOut
	PegOutCompleted
	PegOutFailed
	PegOutEmergencyRecovery
)

func (s PegOutStatus) String() string {
	switch s {
	case PegOutBurnInitiated:
		return "burn_initiated"
	case PegOutPendingPegOut:
		return "pending_pegout"
	case PegOutCompleted:
		return "completed"
	case PegOutFailed:
		return "failed"
	case PegOutEmergencyRecovery:
		return "emergency_recovery"
	default:
		return "unknown"
	}
}

// PegIn tracks one L1-to-L2 peg-in.
type PegIn struct {
	PegID           string
	L1TxID          string
	Vout            uint32
	L1Amount        uint64
	L1SourceAddr    string
	L2DestAddr      string
	L1BlockHeight   uint64
	L1Confirmations uint64
	L2MintAmount    uint64
	Status          PegInStatus
	CreatedAt       time.Time
}

// PegOut tracks one L2-to-L1 peg-out.
type PegOut struct {
	PegID                string
	L2SourceAddr         string
	L1DestAddr           string
	L2BurnAmount         uint64
	L1ReleaseAmount      uint64
	L2BurnHeight         uint64
	L2Confirmations      uint64
	L1ReleaseTxID        string
	AnchorCommitmentHash string
	Signatures           map[string][]byte
	Status               PegOutStatus
	CreatedAt            time.Time
}

// FederationSigner is one member of the peg-out signing quorum.
type FederationSigner struct {
	ID             string
	PubKey         []byte
	L1Addr         string
	Stake          uint64
	Reputation     int
	SignatureCount int
	MissedCount    int
	Active         bool
}

// Federation is the peg-out signing quorum.
type Federation struct {
	Signers   map[string]*FederationSigner
	Threshold uint16
}

// HasQuorum reports whether enough signers are active to reach
// Threshold.
func (f *Federation) HasQuorum() bool {
	active := 0
	for _, s := range f.Signers {
		if s.Active {
			active++
		}
	}
	return active >= int(f.Threshold)
}

// AtomicSwap is one HTLC between two parties.
type AtomicSwap struct {
	SwapID     string
	PartyA     string
	PartyB     string
	AmountA    uint64
	AmountB    uint64
	HashLock   [32]byte
	Timelock   time.Time
	ClaimedA   bool
	ClaimedB   bool
	RefundedA  bool
	RefundedB  bool
}
