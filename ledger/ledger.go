// Package ledger is the L2 Ledger: balances, escrow lifecycle, atomic
// transfers, and an event stream. It is the sole writer of balances and
// escrows (spec section 3 "Ownership"); every other component reads it
// through Snapshot, which returns owned copies.
//
// The locking discipline is adapted from the teacher's Ledger
// (core/ledger.go): one mutex guards the mutable maps, read paths take
// RLock, and compound operations (put-in-escrow debits the client while
// creating the escrow record) are one critical section rather than two,
// so a crash or concurrent reader can never observe a half-applied
// transfer.
package ledger

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btc-l2/anchorcore/metrics"
	"github.com/btc-l2/anchorcore/pkg/errs"
)

// Escrow is a single locked-funds record bound to a task id.
type Escrow struct {
	TaskID       string
	ClientPeerID string
	Amount       uint64
	Locked       bool
	CreatedAt    time.Time
}

// EventKind discriminates the ledger's single-writer event stream.
type EventKind int

const (
	EventCredit EventKind = iota
	EventDebit
	EventEscrowCreated
	EventEscrowReleased
	EventEscrowRefunded
)

func (k EventKind) String() string {
	switch k {
	case EventCredit:
		return "credit"
	case EventDebit:
		return "debit"
	case EventEscrowCreated:
		return "escrow_created"
	case EventEscrowReleased:
		return "escrow_released"
	case EventEscrowRefunded:
		return "escrow_refunded"
	default:
		return "unknown"
	}
}

// Event is emitted exactly once per successful mutating operation.
type Event struct {
	Kind   EventKind
	Peer   string
	Amount uint64
	TaskID string
	At     time.Time
}

// Snapshot is an owned, immutable copy of ledger state for anchor
// commitment derivation and auditing.
type Snapshot struct {
	Balances map[string]uint64
	Escrows  map[string]Escrow
}

// Ledger implements the balance/escrow contract from spec section 4.1.
type Ledger struct {
	mu sync.RWMutex

	balances map[string]uint64
	escrows  map[string]Escrow

	callbacksMu sync.Mutex
	callbacks   []func(Event)

	log     *logrus.Entry
	metrics *metrics.LedgerMetrics
}

// AttachMetrics wires m into the ledger so every subsequent mutating
// operation updates it synchronously, per spec section 4.11. Passing nil
// detaches metrics; an unattached ledger runs with no observability
// overhead, matching the teacher's HealthLogger being optional at
// construction time.
func (l *Ledger) AttachMetrics(m *metrics.LedgerMetrics) {
	l.metrics = m
}

// New returns an empty ledger.
func New(log *logrus.Entry) *Ledger {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ledger{
		balances: make(map[string]uint64),
		escrows:  make(map[string]Escrow),
		log:      log.WithField("component", "ledger"),
	}
}

// RegisterEventCallback subscribes f to every future event. Callbacks
// are advisory only: state is the source of truth, so a panicking or
// slow callback never blocks or corrupts ledger mutation (they are
// invoked after the write lock is released).
func (l *Ledger) RegisterEventCallback(f func(Event)) {
	l.callbacksMu.Lock()
	defer l.callbacksMu.Unlock()
	l.callbacks = append(l.callbacks, f)
}

func (l *Ledger) emit(ev Event) {
	l.callbacksMu.Lock()
	cbs := append([]func(Event){}, l.callbacks...)
	l.callbacksMu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
	if l.metrics == nil {
		return
	}
	switch ev.Kind {
	case EventCredit:
		l.metrics.Credits.Inc()
	case EventDebit:
		l.metrics.Debits.Inc()
	case EventEscrowCreated:
		l.metrics.EscrowsCreated.Inc()
	case EventEscrowReleased, EventEscrowRefunded:
		l.metrics.EscrowsClosed.Inc()
	}
	l.metrics.TotalValue.Set(float64(l.TotalValue()))
}

// BalanceOf returns peer's balance. Unknown peers have balance 0;
// querying never inserts an entry.
func (l *Ledger) BalanceOf(peer string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[peer]
}

// Credit adds amount to peer's balance.
func (l *Ledger) Credit(peer string, amount uint64) error {
	if peer == "" {
		return errs.New(errs.Validation, "empty peer id")
	}
	if amount == 0 {
		return errs.New(errs.Validation, "amount must be positive")
	}
	l.mu.Lock()
	l.balances[peer] += amount
	l.mu.Unlock()

	l.log.WithFields(logrus.Fields{"peer": peer, "amount": amount}).Debug("credit")
	l.emit(Event{Kind: EventCredit, Peer: peer, Amount: amount, At: time.Now().UTC()})
	return nil
}

// Debit subtracts amount from peer's balance. It fails with
// InsufficientFunds rather than leaving a negative balance.
func (l *Ledger) Debit(peer string, amount uint64) error {
	if peer == "" {
		return errs.New(errs.Validation, "empty peer id")
	}
	if amount == 0 {
		return errs.New(errs.Validation, "amount must be positive")
	}
	l.mu.Lock()
	if l.balances[peer] < amount {
		l.mu.Unlock()
		return errs.New(errs.InsufficientFunds, "peer "+peer+" has insufficient balance")
	}
	l.balances[peer] -= amount
	l.mu.Unlock()

	l.log.WithFields(logrus.Fields{"peer": peer, "amount": amount}).Debug("debit")
	l.emit(Event{Kind: EventDebit, Peer: peer, Amount: amount, At: time.Now().UTC()})
	return nil
}

// Transfer atomically debits from and credits to: either both commit or
// neither does.
func (l *Ledger) Transfer(from, to string, amount uint64) error {
	if from == "" || to == "" {
		return errs.New(errs.Validation, "empty peer id")
	}
	if from == to {
		return errs.New(errs.Validation, "transfer requires from != to")
	}
	if amount == 0 {
		return errs.New(errs.Validation, "amount must be positive")
	}

	l.mu.Lock()
	if l.balances[from] < amount {
		l.mu.Unlock()
		return errs.New(errs.InsufficientFunds, "peer "+from+" has insufficient balance")
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	l.mu.Unlock()

	now := time.Now().UTC()
	l.emit(Event{Kind: EventDebit, Peer: from, Amount: amount, At: now})
	l.emit(Event{Kind: EventCredit, Peer: to, Amount: amount, At: now})
	if l.metrics != nil {
		l.metrics.Transfers.Inc()
	}
	return nil
}

// PutInEscrow debits the client atomically with creating the escrow
// record: if the debit would fail, no escrow is created.
func (l *Ledger) PutInEscrow(e Escrow) error {
	if e.Amount == 0 {
		return errs.New(errs.Validation, "escrow amount must be positive")
	}
	if e.ClientPeerID == "" {
		return errs.New(errs.Validation, "escrow client must not be empty")
	}
	if e.TaskID == "" {
		return errs.New(errs.Validation, "escrow task id must not be empty")
	}

	l.mu.Lock()
	if _, exists := l.escrows[e.TaskID]; exists {
		l.mu.Unlock()
		return errs.New(errs.Conflict, "escrow for task "+e.TaskID+" already exists")
	}
	if l.balances[e.ClientPeerID] < e.Amount {
		l.mu.Unlock()
		return errs.New(errs.InsufficientFunds, "client "+e.ClientPeerID+" has insufficient balance")
	}
	l.balances[e.ClientPeerID] -= e.Amount
	e.Locked = true
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	l.escrows[e.TaskID] = e
	l.mu.Unlock()

	l.emit(Event{Kind: EventEscrowCreated, Peer: e.ClientPeerID, Amount: e.Amount, TaskID: e.TaskID, At: time.Now().UTC()})
	return nil
}

// GetEscrow returns the escrow for taskID, if present.
func (l *Ledger) GetEscrow(taskID string) (Escrow, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.escrows[taskID]
	return e, ok
}

// ReleaseEscrow credits worker with the escrowed amount and deletes the
// record.
func (l *Ledger) ReleaseEscrow(taskID, worker string) error {
	if worker == "" {
		return errs.New(errs.Validation, "worker id must not be empty")
	}
	l.mu.Lock()
	e, ok := l.escrows[taskID]
	if !ok {
		l.mu.Unlock()
		return errs.New(errs.NotFound, "escrow "+taskID+" not found")
	}
	delete(l.escrows, taskID)
	l.balances[worker] += e.Amount
	l.mu.Unlock()

	l.emit(Event{Kind: EventEscrowReleased, Peer: worker, Amount: e.Amount, TaskID: taskID, At: time.Now().UTC()})
	return nil
}

// RefundEscrow credits the original client with the escrowed amount and
// deletes the record.
func (l *Ledger) RefundEscrow(taskID string) error {
	l.mu.Lock()
	e, ok := l.escrows[taskID]
	if !ok {
		l.mu.Unlock()
		return errs.New(errs.NotFound, "escrow "+taskID+" not found")
	}
	delete(l.escrows, taskID)
	l.balances[e.ClientPeerID] += e.Amount
	l.mu.Unlock()

	l.emit(Event{Kind: EventEscrowRefunded, Peer: e.ClientPeerID, Amount: e.Amount, TaskID: taskID, At: time.Now().UTC()})
	return nil
}

// Snapshot returns an owned, deep copy of the ledger's current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal := make(map[string]uint64, len(l.balances))
	for k, v := range l.balances {
		bal[k] = v
	}
	esc := make(map[string]Escrow, len(l.escrows))
	for k, v := range l.escrows {
		esc[k] = v
	}
	return Snapshot{Balances: bal, Escrows: esc}
}

// TotalValue returns the sum of all balances plus the sum of all escrow
// amounts, the quantity spec section 8's conservation invariant holds
// constant across transfer/release/refund.
func (l *Ledger) TotalValue() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total uint64
	for _, v := range l.balances {
		total += v
	}
	for _, e := range l.escrows {
		total += e.Amount
	}
	return total
}
