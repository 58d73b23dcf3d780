// Package blockproducer emits L2 blocks at a configured cadence and
// schedules anchor commitments (spec section 4.5). It is the sole
// writer of block height, confirmed-transaction count, and anchor
// scheduling state; mempool and reorg-history reads go through their
// owning components.
//
// The loop/ticker/atomic-stop-flag shape is adapted from the teacher's
// block production goroutines: a single background goroutine driven by
// a time.Ticker, cancelled by an atomic flag plus a WaitGroup join
// rather than a raw channel close, so Stop is idempotent.
package blockproducer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btc-l2/anchorcore/mempool"
	"github.com/btc-l2/anchorcore/metrics"
	"github.com/btc-l2/anchorcore/reorgdetector"
)

// Config tunes the producer's cadence and per-block limits.
type Config struct {
	BlockIntervalMs         int64
	MaxTransactionsPerBlock int
	CommitmentInterval      uint64
	// DeepReorgLookbackHeight is not read by the producer: the deep-reorg
	// check always measures depth from the most recent reorg event.
	DeepReorgLookbackHeight uint64
}

// DefaultConfig matches spec section 4.5's stated defaults.
func DefaultConfig() Config {
	return Config{
		BlockIntervalMs:         1000,
		MaxTransactionsPerBlock: 500,
		CommitmentInterval:      100,
	}
}

// State is an owned, consistent snapshot of the producer's counters.
type State struct {
	BlockHeight          uint64
	TotalTransactions    uint64
	LastAnchorHeight     uint64
	LastBlockTimestampMs int64
}

// Producer drives the block loop. Dependencies (mempool, reorg
// detector) are owned elsewhere; Producer only reads and mutates its
// own counters.
type Producer struct {
	cfg  Config
	log  *logrus.Entry
	pool *mempool.Mempool
	reorg *reorgdetector.Detector

	// onAnchorDue is invoked synchronously when block_height crosses a
	// commitment_interval boundary; it is the producer's only coupling
	// to the anchor builder and L1 broadcaster.
	onAnchorDue func(height uint64)

	mu    sync.Mutex
	state State

	running int32
	stopFn  context.CancelFunc
	wg      sync.WaitGroup

	metrics *metrics.BlockProducerMetrics
}

// AttachMetrics wires m into the producer so every tick updates it
// synchronously, per spec section 4.11. Passing nil detaches metrics.
func (p *Producer) AttachMetrics(m *metrics.BlockProducerMetrics) {
	p.metrics = m
}

// New returns a stopped Producer. pool and reorg must be non-nil.
func New(cfg Config, pool *mempool.Mempool, reorg *reorgdetector.Detector, onAnchorDue func(uint64), log *logrus.Entry) *Producer {
	if cfg.BlockIntervalMs <= 0 {
		cfg.BlockIntervalMs = DefaultConfig().BlockIntervalMs
	}
	if cfg.MaxTransactionsPerBlock <= 0 {
		cfg.MaxTransactionsPerBlock = DefaultConfig().MaxTransactionsPerBlock
	}
	if cfg.CommitmentInterval == 0 {
		cfg.CommitmentInterval = DefaultConfig().CommitmentInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Producer{
		cfg:         cfg,
		log:         log.WithField("component", "blockproducer"),
		pool:        pool,
		reorg:       reorg,
		onAnchorDue: onAnchorDue,
	}
}

// Start launches the background loop. It is a no-op if already running.
func (p *Producer) Start() {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.stopFn = cancel

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop signals the loop and waits for it to exit. Safe to call more
// than once; a stop interrupts at most one pending sleep.
func (p *Producer) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}
	if p.stopFn != nil {
		p.stopFn()
	}
	p.wg.Wait()
}

func (p *Producer) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(time.Duration(p.cfg.BlockIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick runs exactly one loop iteration; it never panics or propagates
// an error, matching spec section 4.5's failure semantics.
func (p *Producer) tick() {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Error("block production tick recovered from panic")
		}
	}()

	p.inspectReorgHistory()

	p.mu.Lock()
	p.state.BlockHeight++
	p.state.LastBlockTimestampMs = time.Now().UnixMilli()
	height := p.state.BlockHeight
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.BlocksProduced.Inc()
		p.metrics.BlockHeight.Set(float64(height))
	}

	confirmed := p.confirmPending(height)

	p.mu.Lock()
	p.state.TotalTransactions += uint64(confirmed)
	dueForAnchor := height-p.state.LastAnchorHeight >= p.cfg.CommitmentInterval
	if dueForAnchor {
		p.state.LastAnchorHeight = height
	}
	p.mu.Unlock()

	if dueForAnchor {
		if p.metrics != nil {
			p.metrics.AnchorsDue.Inc()
		}
		if p.onAnchorDue != nil {
			p.onAnchorDue(height)
		}
	}
}

func (p *Producer) inspectReorgHistory() {
	if p.reorg == nil {
		return
	}
	events, err := p.reorg.ListReorgEvents()
	if err != nil || len(events) == 0 {
		return
	}
	last := events[len(events)-1]
	p.mu.Lock()
	height := p.state.BlockHeight
	p.mu.Unlock()

	var depth uint64
	if height > last.ReorgHeight {
		depth = height - last.ReorgHeight
	}
	if p.reorg.ShouldHaltForDeepReorg(depth) {
		if p.metrics != nil {
			p.metrics.DeepReorgHalts.Inc()
		}
		p.log.WithFields(logrus.Fields{
			"reorg_height": last.ReorgHeight,
			"depth":        depth,
		}).Warn("deep reorg observed, production continues uninterrupted")
	}
}

// confirmPending pulls up to MaxTransactionsPerBlock transactions,
// rejects the structurally invalid ones, and confirms the valid hashes
// in a single mempool call.
func (p *Producer) confirmPending(height uint64) int {
	if p.pool == nil {
		return 0
	}
	candidates := p.pool.TakePending(p.cfg.MaxTransactionsPerBlock)
	valid := make([]string, 0, len(candidates))
	for _, tx := range candidates {
		if !isStructurallyValid(tx) {
			p.log.WithField("tx_hash", tx.TxHash).Warn("rejecting structurally invalid transaction")
			continue
		}
		valid = append(valid, tx.TxHash)
	}
	p.pool.Confirm(valid, height)
	return len(valid)
}

func isStructurallyValid(tx mempool.Transaction) bool {
	if len(tx.TxHash) != 64 {
		return false
	}
	for _, c := range tx.TxHash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return tx.From != "" && tx.To != ""
}

// State returns an owned copy of the producer's current counters.
func (p *Producer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
