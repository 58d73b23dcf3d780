// Package metrics provides thin per-component Prometheus collector
// constructors (spec section 4.11). Each component struct exposes a
// handful of gauges/counters it updates synchronously on its own
// operation path; no metric is load-bearing for correctness and no
// global registry is assumed here — the host registers whichever
// component metrics it cares about.
//
// The per-component-struct-of-gauges shape is grounded on the teacher's
// HealthLogger (core/system_health_logging.go), which builds one gauge
// per tracked statistic against a local *prometheus.Registry rather
// than the global default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics tracks ledger operation counts and current totals.
type LedgerMetrics struct {
	Credits        prometheus.Counter
	Debits         prometheus.Counter
	Transfers      prometheus.Counter
	EscrowsCreated prometheus.Counter
	EscrowsClosed  prometheus.Counter
	TotalValue     prometheus.Gauge
}

// NewLedgerMetrics registers a fresh set of ledger collectors against
// reg.
func NewLedgerMetrics(reg *prometheus.Registry) *LedgerMetrics {
	m := &LedgerMetrics{
		Credits:        prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_ledger_credits_total", Help: "Total credit operations."}),
		Debits:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_ledger_debits_total", Help: "Total debit operations."}),
		Transfers:      prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_ledger_transfers_total", Help: "Total transfer operations."}),
		EscrowsCreated: prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_ledger_escrows_created_total", Help: "Total escrows created."}),
		EscrowsClosed:  prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_ledger_escrows_closed_total", Help: "Total escrows released or refunded."}),
		TotalValue:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "anchorcore_ledger_total_value", Help: "Sum of balances plus escrows."}),
	}
	registerAll(reg, m.Credits, m.Debits, m.Transfers, m.EscrowsCreated, m.EscrowsClosed, m.TotalValue)
	return m
}

// BlockProducerMetrics tracks block production cadence and anchor
// scheduling.
type BlockProducerMetrics struct {
	BlocksProduced prometheus.Counter
	AnchorsDue     prometheus.Counter
	BlockHeight    prometheus.Gauge
	DeepReorgHalts prometheus.Counter
}

func NewBlockProducerMetrics(reg *prometheus.Registry) *BlockProducerMetrics {
	m := &BlockProducerMetrics{
		BlocksProduced: prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_blocks_produced_total", Help: "Total L2 blocks produced."}),
		AnchorsDue:     prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_anchors_due_total", Help: "Total anchor-due callbacks fired."}),
		BlockHeight:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "anchorcore_block_height", Help: "Current L2 block height."}),
		DeepReorgHalts: prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_deep_reorg_warnings_total", Help: "Total deep-reorg warnings observed."}),
	}
	registerAll(reg, m.BlocksProduced, m.AnchorsDue, m.BlockHeight, m.DeepReorgHalts)
	return m
}

// ReorgDetectorMetrics tracks reorg and anchor lifecycle events.
type ReorgDetectorMetrics struct {
	ReorgsDetected      prometheus.Counter
	AnchorsInvalidated  prometheus.Counter
	AnchorsConfirmed    prometheus.Counter
	AnchorsOrphaned     prometheus.Counter
	TrackedBlockHeight  prometheus.Gauge
}

func NewReorgDetectorMetrics(reg *prometheus.Registry) *ReorgDetectorMetrics {
	m := &ReorgDetectorMetrics{
		ReorgsDetected:     prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_reorgs_detected_total", Help: "Total reorg events detected."}),
		AnchorsInvalidated: prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_anchors_invalidated_total", Help: "Total anchors invalidated by cascading reorgs."}),
		AnchorsConfirmed:   prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_anchors_confirmed_total", Help: "Total anchors promoted to confirmed."}),
		AnchorsOrphaned:    prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_anchors_orphaned_total", Help: "Total anchors observed orphaned."}),
		TrackedBlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{Name: "anchorcore_l1_tracked_height", Help: "Highest L1 height tracked."}),
	}
	registerAll(reg, m.ReorgsDetected, m.AnchorsInvalidated, m.AnchorsConfirmed, m.AnchorsOrphaned, m.TrackedBlockHeight)
	return m
}

// BridgeMetrics tracks peg lifecycle and collateralization health.
type BridgeMetrics struct {
	PegInsMinted        prometheus.Counter
	PegOutsCompleted     prometheus.Counter
	FederationSignatures prometheus.Counter
	CollateralRatio      prometheus.Gauge
	EmergencyModeActive  prometheus.Gauge
}

func NewBridgeMetrics(reg *prometheus.Registry) *BridgeMetrics {
	m := &BridgeMetrics{
		PegInsMinted:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_bridge_peg_ins_minted_total", Help: "Total peg-ins minted on L2."}),
		PegOutsCompleted:     prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_bridge_peg_outs_completed_total", Help: "Total peg-outs released on L1."}),
		FederationSignatures: prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_bridge_federation_signatures_total", Help: "Total federation signatures accepted."}),
		CollateralRatio:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "anchorcore_bridge_collateral_ratio", Help: "Locked L1 value over minted L2 value."}),
		EmergencyModeActive:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "anchorcore_bridge_emergency_mode", Help: "1 if emergency mode is engaged, else 0."}),
	}
	registerAll(reg, m.PegInsMinted, m.PegOutsCompleted, m.FederationSignatures, m.CollateralRatio, m.EmergencyModeActive)
	return m
}

// OrchestratorMetrics tracks scheduling outcomes.
type OrchestratorMetrics struct {
	Assignments        prometheus.Counter
	FailedAssignments  prometheus.Counter
	Rebalances         prometheus.Counter
	AvgWallTimeSeconds prometheus.Gauge
}

func NewOrchestratorMetrics(reg *prometheus.Registry) *OrchestratorMetrics {
	m := &OrchestratorMetrics{
		Assignments:        prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_orchestrator_assignments_total", Help: "Total successful task assignments."}),
		FailedAssignments:  prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_orchestrator_failed_assignments_total", Help: "Total assignments that found no eligible worker."}),
		Rebalances:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_orchestrator_rebalances_total", Help: "Total task migrations performed during rebalancing."}),
		AvgWallTimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{Name: "anchorcore_orchestrator_avg_wall_time_seconds", Help: "Estimated completion time in seconds of the most recent assignment; not averaged across tasks."}),
	}
	registerAll(reg, m.Assignments, m.FailedAssignments, m.Rebalances, m.AvgWallTimeSeconds)
	return m
}

// SettlementMetrics tracks gated settlement outcomes.
type SettlementMetrics struct {
	Executed          prometheus.Counter
	BlockedByBreaker  prometheus.Counter
	RejectedByOracle  prometheus.Counter
}

func NewSettlementMetrics(reg *prometheus.Registry) *SettlementMetrics {
	m := &SettlementMetrics{
		Executed:         prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_settlement_executed_total", Help: "Total settlement intents executed."}),
		BlockedByBreaker: prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_settlement_blocked_by_breaker_total", Help: "Total intents blocked by a tripped circuit breaker."}),
		RejectedByOracle: prometheus.NewCounter(prometheus.CounterOpts{Name: "anchorcore_settlement_rejected_by_oracle_total", Help: "Total intents rejected for low oracle confidence."}),
	}
	registerAll(reg, m.Executed, m.BlockedByBreaker, m.RejectedByOracle)
	return m
}

// registerAll registers every collector, ignoring AlreadyRegisteredError
// so constructors stay idempotent against a shared registry, matching
// the teacher's HealthLogger which registers once at construction time.
func registerAll(reg *prometheus.Registry, collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
