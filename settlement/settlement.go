// Package settlement gates cross-chain settlement intents behind a
// circuit breaker, an oracle-confidence floor, and a slippage-policy
// validity check before routing to the target chain adapter (spec
// section 4.9).
//
// The three-gate-then-delegate shape is grounded on
// original_source/include/Global_Seven.h's SettlementOrchestrator,
// which runs the same circuit-breaker/oracle/slippage sequence before
// calling into an adapter registry.
package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/btc-l2/anchorcore/adapter"
	"github.com/btc-l2/anchorcore/metrics"
	"github.com/btc-l2/anchorcore/pkg/errs"
)

// Chain names the settlement target. Bitcoin is special-cased as the
// one target a tripped circuit breaker still allows, per spec section
// 4.9's first gate.
type Chain string

const Bitcoin Chain = "bitcoin"

// CircuitBreaker is a manually tripped/reset gate, grounded on
// original_source's circuit-breaker header: once tripped it blocks all
// non-Bitcoin settlement until explicitly reset.
type CircuitBreaker struct {
	mu      sync.Mutex
	tripped bool
	reason  string
}

// Trip engages the breaker.
func (c *CircuitBreaker) Trip(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tripped = true
	c.reason = reason
}

// Reset disengages the breaker.
func (c *CircuitBreaker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tripped = false
	c.reason = ""
}

// Tripped reports the breaker's current state and trip reason.
func (c *CircuitBreaker) Tripped() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tripped, c.reason
}

// OracleSignal is an optional price/confidence reading attached to a
// settlement intent.
type OracleSignal struct {
	Present    bool
	Confidence float64 // [0,1]
}

// SlippagePolicy bounds acceptable execution slippage.
type SlippagePolicy struct {
	MaxSlippagePct float64
	EnforceHard    bool
}

// Valid reports whether the policy is structurally sound per spec
// section 4.9's third gate.
func (p SlippagePolicy) Valid() bool {
	if p.EnforceHard && p.MaxSlippagePct <= 0 {
		return false
	}
	return true
}

// Config tunes the oracle-confidence floor.
type Config struct {
	MinOracleConfidence  float64
	EnforceOracleConfidence bool
}

// DefaultConfig requires high-confidence oracle readings when present.
func DefaultConfig() Config {
	return Config{MinOracleConfidence: 0.8, EnforceOracleConfidence: true}
}

// Intent is a single cross-chain settlement request.
type Intent struct {
	IntentID    string
	Target      Chain
	Destination string
	Amount      uint64
	Oracle      OracleSignal
	Slippage    SlippagePolicy
	RawTx       []byte
}

// RiskFlags annotates the outcome with any risk signals observed during
// gating, supplementing the original's risk-flag vocabulary
// (original_source/include/Global_Seven.h).
type RiskFlags struct {
	CircuitBreakerActiveButBitcoinAllowed bool
	OracleConfidenceBelowFloor            bool
	SlippagePolicyRelaxed                 bool
}

// Result is the outcome of a successful Execute call.
type Result struct {
	L1TxID    string
	RiskFlags RiskFlags
}

// Orchestrator gates and routes settlement intents to per-chain
// adapters.
type Orchestrator struct {
	cfg     Config
	breaker *CircuitBreaker
	targets map[Chain]adapter.Adapter

	metrics *metrics.SettlementMetrics
}

// New returns an Orchestrator routing to the given per-chain adapters.
func New(cfg Config, breaker *CircuitBreaker, targets map[Chain]adapter.Adapter) *Orchestrator {
	if breaker == nil {
		breaker = &CircuitBreaker{}
	}
	if targets == nil {
		targets = make(map[Chain]adapter.Adapter)
	}
	return &Orchestrator{cfg: cfg, breaker: breaker, targets: targets}
}

// AttachMetrics wires m into the orchestrator so every gated Execute call
// updates it synchronously, per spec section 4.11. Passing nil detaches
// metrics.
func (o *Orchestrator) AttachMetrics(m *metrics.SettlementMetrics) {
	o.metrics = m
}

// Execute runs the three gates in order and, on success, delegates to
// the target adapter's Broadcast.
func (o *Orchestrator) Execute(ctx context.Context, intent Intent) (Result, error) {
	var flags RiskFlags

	if tripped, reason := o.breaker.Tripped(); tripped {
		if intent.Target != Bitcoin {
			if o.metrics != nil {
				o.metrics.BlockedByBreaker.Inc()
			}
			return Result{}, errs.New(errs.Unauthorized, fmt.Sprintf("settlement: circuit breaker tripped (%s), only bitcoin settlement is allowed", reason))
		}
		flags.CircuitBreakerActiveButBitcoinAllowed = true
	}

	if intent.Oracle.Present && o.cfg.EnforceOracleConfidence && intent.Oracle.Confidence < o.cfg.MinOracleConfidence {
		if o.metrics != nil {
			o.metrics.RejectedByOracle.Inc()
		}
		return Result{}, errs.New(errs.Validation, "settlement: oracle confidence below configured floor")
	}
	if intent.Oracle.Present && intent.Oracle.Confidence < o.cfg.MinOracleConfidence {
		flags.OracleConfidenceBelowFloor = true
	}

	if !intent.Slippage.Valid() {
		return Result{}, errs.New(errs.Validation, "settlement: slippage policy is structurally invalid")
	}
	if !intent.Slippage.EnforceHard {
		flags.SlippagePolicyRelaxed = true
	}

	target, ok := o.targets[intent.Target]
	if !ok {
		return Result{}, errs.New(errs.NotFound, "settlement: no adapter registered for target "+string(intent.Target))
	}

	txID, err := target.Broadcast(ctx, adapter.BroadcastOpts{RawTx: intent.RawTx})
	if err != nil {
		return Result{}, err
	}
	if o.metrics != nil {
		o.metrics.Executed.Inc()
	}
	return Result{L1TxID: txID, RiskFlags: flags}, nil
}
