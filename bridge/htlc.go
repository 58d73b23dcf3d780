package bridge

import (
	"crypto/sha256"
	"time"

	"github.com/google/uuid"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

// CreateSwap registers a new HTLC between partyA and partyB.
func (b *Bridge) CreateSwap(partyA, partyB string, amountA, amountB uint64, hashLock [32]byte, timelock time.Time) *AtomicSwap {
	swap := &AtomicSwap{
		SwapID:   uuid.NewString(),
		PartyA:   partyA,
		PartyB:   partyB,
		AmountA:  amountA,
		AmountB:  amountB,
		HashLock: hashLock,
		Timelock: timelock,
	}
	b.mu.Lock()
	b.swaps[swap.SwapID] = swap
	b.mu.Unlock()
	return swap
}

// Claim releases party's side of the swap given the preimage secret. It
// requires sha256(secret) == hash_lock and now < timelock.
func (b *Bridge) Claim(swapID string, party string, secret []byte, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	swap, ok := b.swaps[swapID]
	if !ok {
		return errs.New(errs.NotFound, "bridge: swap "+swapID+" not found")
	}
	if sha256.Sum256(secret) != swap.HashLock {
		return errs.New(errs.Validation, "bridge: secret does not match hash lock")
	}
	if !now.Before(swap.Timelock) {
		return errs.New(errs.Conflict, "bridge: swap timelock has expired")
	}

	switch party {
	case swap.PartyA:
		if swap.ClaimedA || swap.RefundedA {
			return errs.New(errs.Conflict, "bridge: party A side already settled")
		}
		swap.ClaimedA = true
	case swap.PartyB:
		if swap.ClaimedB || swap.RefundedB {
			return errs.New(errs.Conflict, "bridge: party B side already settled")
		}
		swap.ClaimedB = true
	default:
		return errs.New(errs.Validation, "bridge: unknown party")
	}
	return nil
}

// Refund reclaims party's side once the timelock has expired, provided
// that side was not already claimed or refunded.
func (b *Bridge) Refund(swapID string, party string, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	swap, ok := b.swaps[swapID]
	if !ok {
		return errs.New(errs.NotFound, "bridge: swap "+swapID+" not found")
	}
	if now.Before(swap.Timelock) {
		return errs.New(errs.Conflict, "bridge: swap timelock has not yet expired")
	}

	switch party {
	case swap.PartyA:
		if swap.ClaimedA || swap.RefundedA {
			return errs.New(errs.Conflict, "bridge: party A side already settled")
		}
		swap.RefundedA = true
	case swap.PartyB:
		if swap.ClaimedB || swap.RefundedB {
			return errs.New(errs.Conflict, "bridge: party B side already settled")
		}
		swap.RefundedB = true
	default:
		return errs.New(errs.Validation, "bridge: unknown party")
	}
	return nil
}

// GetSwap returns the swap record for swapID, if present.
func (b *Bridge) GetSwap(swapID string) (AtomicSwap, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.swaps[swapID]
	if !ok {
		return AtomicSwap{}, false
	}
	return *s, true
}
