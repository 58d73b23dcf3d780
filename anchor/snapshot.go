// Package anchor builds deterministic anchor commitments from L2 state
// snapshots (spec section 4.4) and persists an append-only snapshot
// journal (spec section 4.6).
//
// The canonicalisation follows the teacher's merkle/tree canonical
// leaf-ordering discipline (core/merkle_tree_operations.go sorts leaves
// before hashing): every entity slice here is sorted byte-lexicographic
// by its natural id before it is serialised, so two snapshots holding
// the same logical state always produce the same root regardless of
// insertion order.
package anchor

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BalanceEntry is one ledger account line in a canonical snapshot.
type BalanceEntry struct {
	PeerID  string
	Balance uint64
}

// EscrowEntry is one ledger escrow line.
type EscrowEntry struct {
	TaskID       string
	ClientPeerID string
	Amount       uint64
	Locked       bool
	CreatedAtMs  int64
}

// PegInEntry is one bridge peg-in line.
type PegInEntry struct {
	PegID          string
	L1TxID         string
	Vout           uint32
	L1Amount       uint64
	L1SourceAddr   string
	L2DestAddr     string
	L1BlockHeight  uint64
	L1Confirmations uint64
	L2MintAmount   uint64
	Status         string
}

// PegOutEntry is one bridge peg-out line.
type PegOutEntry struct {
	PegID                string
	L2SourceAddr         string
	L1DestAddr           string
	L2BurnAmount         uint64
	L1ReleaseAmount      uint64
	L2BurnHeight         uint64
	L2Confirmations      uint64
	L1ReleaseTxID        string
	AnchorCommitmentHash string
	Status               string
}

// TaskEntry is one queued-task line.
type TaskEntry struct {
	TaskID         string
	TaskType       string
	Priority       int
	SubmitterID    string
	SubmittedAtMs  int64
	PayloadHash    string
	BoundAnchorHash string
}

// Snapshot is the canonical, sortable aggregate described in spec
// section 3 "L2 snapshot": ledger balances and escrows, bridge peg
// records, and queued tasks.
type Snapshot struct {
	Balances []BalanceEntry
	Escrows  []EscrowEntry
	PegIns   []PegInEntry
	PegOuts  []PegOutEntry
	Tasks    []TaskEntry
}

const canonicalVersionHeader = "L2STATE|v1"

// CanonicalEncoding produces the stable, sorted textual form described
// in spec section 4.4: a version header, then one kind:count header and
// one tagged line per entity for each of (balance, escrow, pegin,
// pegout, task) in that fixed order.
func (s Snapshot) CanonicalEncoding() []byte {
	balances := append([]BalanceEntry(nil), s.Balances...)
	sort.Slice(balances, func(i, j int) bool { return balances[i].PeerID < balances[j].PeerID })

	escrows := append([]EscrowEntry(nil), s.Escrows...)
	sort.Slice(escrows, func(i, j int) bool { return escrows[i].TaskID < escrows[j].TaskID })

	pegins := append([]PegInEntry(nil), s.PegIns...)
	sort.Slice(pegins, func(i, j int) bool { return pegins[i].PegID < pegins[j].PegID })

	pegouts := append([]PegOutEntry(nil), s.PegOuts...)
	sort.Slice(pegouts, func(i, j int) bool { return pegouts[i].PegID < pegouts[j].PegID })

	tasks := append([]TaskEntry(nil), s.Tasks...)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })

	var b strings.Builder
	b.WriteString(canonicalVersionHeader)
	b.WriteByte('\n')

	fmt.Fprintf(&b, "balance:%d\n", len(balances))
	for _, e := range balances {
		fmt.Fprintf(&b, "balance:%s|%d\n", e.PeerID, e.Balance)
	}

	fmt.Fprintf(&b, "escrow:%d\n", len(escrows))
	for _, e := range escrows {
		fmt.Fprintf(&b, "escrow:%s|%s|%d|%s|%d\n", e.TaskID, e.ClientPeerID, e.Amount, strconv.FormatBool(e.Locked), e.CreatedAtMs)
	}

	fmt.Fprintf(&b, "pegin:%d\n", len(pegins))
	for _, e := range pegins {
		fmt.Fprintf(&b, "pegin:%s|%s|%d|%d|%s|%s|%d|%d|%d|%s\n",
			e.PegID, e.L1TxID, e.Vout, e.L1Amount, e.L1SourceAddr, e.L2DestAddr,
			e.L1BlockHeight, e.L1Confirmations, e.L2MintAmount, e.Status)
	}

	fmt.Fprintf(&b, "pegout:%d\n", len(pegouts))
	for _, e := range pegouts {
		fmt.Fprintf(&b, "pegout:%s|%s|%s|%d|%d|%d|%d|%s|%s|%s\n",
			e.PegID, e.L2SourceAddr, e.L1DestAddr, e.L2BurnAmount, e.L1ReleaseAmount,
			e.L2BurnHeight, e.L2Confirmations, e.L1ReleaseTxID, e.AnchorCommitmentHash, e.Status)
	}

	fmt.Fprintf(&b, "task:%d\n", len(tasks))
	for _, e := range tasks {
		fmt.Fprintf(&b, "task:%s|%s|%d|%s|%d|%s|%s\n",
			e.TaskID, e.TaskType, e.Priority, e.SubmitterID, e.SubmittedAtMs, e.PayloadHash, e.BoundAnchorHash)
	}

	return []byte(b.String())
}

// StateRoot computes sha256(canonical_encoding(snapshot)) per spec
// section 3.
func (s Snapshot) StateRoot() [32]byte {
	return sha256.Sum256(s.CanonicalEncoding())
}
