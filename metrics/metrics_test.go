package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsRegistersWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.Credits.Inc()
	m.TotalValue.Set(100)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 6 {
		t.Fatalf("metric families = %d, want 6", len(families))
	}
}

func TestEachComponentMetricsUsesDistinctNamesOnSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewLedgerMetrics(reg)
	NewBlockProducerMetrics(reg)
	NewReorgDetectorMetrics(reg)
	NewBridgeMetrics(reg)
	NewOrchestratorMetrics(reg)
	NewSettlementMetrics(reg)

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}
