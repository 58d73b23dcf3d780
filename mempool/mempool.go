// Package mempool is a bounded FIFO of pending L2 transactions,
// confirmed/evicted under a single mutex per spec section 4.2. It is
// the only component besides the ledger that the block producer writes
// through, and ownership is exclusively the producer's.
package mempool

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a Transaction.
type Status int

const (
	Pending Status = iota
	Confirmed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transaction is a pending or settled L2 transaction.
type Transaction struct {
	TxHash      string
	From        string
	To          string
	Amount      uint64
	Data        []byte
	Timestamp   time.Time
	Status      Status
	BlockHeight uint64
}

// Config bounds the mempool's capacity.
type Config struct {
	// MaxPending is the maximum number of pending transactions retained;
	// eviction is oldest-first within the pending class once exceeded.
	MaxPending int
	// ConfirmedRingSize bounds the confirmed-transaction history ring
	// (spec default: 1000).
	ConfirmedRingSize int
}

// DefaultConfig mirrors the spec's stated default confirmed-ring bound.
func DefaultConfig() Config {
	return Config{MaxPending: 10000, ConfirmedRingSize: 1000}
}

// Mempool is a single-mutex-guarded bounded FIFO with a best-effort
// confirmed-transaction ring for query.
type Mempool struct {
	mu sync.Mutex

	cfg Config

	pendingOrder []string // tx hashes, insertion order
	pending      map[string]*Transaction

	confirmedRing []Transaction // ring buffer, oldest first
}

// New returns an empty mempool bounded by cfg.
func New(cfg Config) *Mempool {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultConfig().MaxPending
	}
	if cfg.ConfirmedRingSize <= 0 {
		cfg.ConfirmedRingSize = DefaultConfig().ConfirmedRingSize
	}
	return &Mempool{
		cfg:     cfg,
		pending: make(map[string]*Transaction),
	}
}

// Add inserts tx as pending, evicting the oldest pending entry if the
// bound is exceeded.
func (m *Mempool) Add(tx Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx.Status = Pending
	cp := tx
	m.pending[tx.TxHash] = &cp
	m.pendingOrder = append(m.pendingOrder, tx.TxHash)

	for len(m.pendingOrder) > m.cfg.MaxPending {
		oldest := m.pendingOrder[0]
		m.pendingOrder = m.pendingOrder[1:]
		delete(m.pending, oldest)
	}
}

// TakePending returns up to maxCount pending transactions in insertion
// order without removing them; it is a read-ahead for the block
// producer.
func (m *Mempool) TakePending(maxCount int) []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.pendingOrder)
	if maxCount > 0 && maxCount < n {
		n = maxCount
	}
	out := make([]Transaction, 0, n)
	for i := 0; i < n; i++ {
		if tx, ok := m.pending[m.pendingOrder[i]]; ok {
			out = append(out, *tx)
		}
	}
	return out
}

// Confirm moves the matching hashes from pending to the confirmed ring
// in a single critical section, setting status and block height.
// Hashes not found are silently skipped (idempotent).
func (m *Mempool) Confirm(hashes []string, blockHeight uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}
	if len(want) == 0 {
		return
	}

	remaining := m.pendingOrder[:0:0]
	for _, h := range m.pendingOrder {
		tx, ok := m.pending[h]
		if !ok {
			continue
		}
		if want[h] {
			tx.Status = Confirmed
			tx.BlockHeight = blockHeight
			m.appendConfirmed(*tx)
			delete(m.pending, h)
			continue
		}
		remaining = append(remaining, h)
	}
	m.pendingOrder = remaining
}

func (m *Mempool) appendConfirmed(tx Transaction) {
	m.confirmedRing = append(m.confirmedRing, tx)
	if over := len(m.confirmedRing) - m.cfg.ConfirmedRingSize; over > 0 {
		m.confirmedRing = m.confirmedRing[over:]
	}
}

// PendingCount returns the number of currently pending transactions.
func (m *Mempool) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingOrder)
}

// All returns pending transactions (insertion order) followed by the
// confirmed ring (oldest first).
func (m *Mempool) All() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transaction, 0, len(m.pendingOrder)+len(m.confirmedRing))
	for _, h := range m.pendingOrder {
		if tx, ok := m.pending[h]; ok {
			out = append(out, *tx)
		}
	}
	out = append(out, m.confirmedRing...)
	return out
}
