package reorgdetector

import (
	"testing"
	"time"

	"github.com/btc-l2/anchorcore/kvstore"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	return New(kvstore.NewMemStore(), DefaultConfig(), nil)
}

func TestTrackBlockThenDetectReorgNoop(t *testing.T) {
	d := newTestDetector(t)
	now := time.Unix(1700000000, 0).UTC()

	d.TrackBlock(100, "hashA", now)
	ev, err := d.DetectReorg(100, "hashA", now)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected no reorg event for identical hash, got %+v", ev)
	}
}

func TestDetectReorgFirstObservationStoresHash(t *testing.T) {
	d := newTestDetector(t)
	now := time.Unix(1700000000, 0).UTC()

	ev, err := d.DetectReorg(100, "hashA", now)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected nil event on first observation, got %+v", ev)
	}
	got, ok := d.GetBlockHashAtHeight(100)
	if !ok || got != "hashA" {
		t.Fatalf("block hash = %q, %v; want hashA, true", got, ok)
	}
}

// TestReorgCascadeInvalidatesAnchors exercises spec scenario S3: two
// anchors registered at or above the reorg height are invalidated when a
// competing block hash arrives at that height.
func TestReorgCascadeInvalidatesAnchors(t *testing.T) {
	d := newTestDetector(t)
	now := time.Unix(1700000000, 0).UTC()

	d.TrackBlock(100, "hashA", now)
	d.TrackBlock(101, "hashB", now)

	d.RegisterAnchor(AnchorRecord{AnchorHash: "A101", L1Height: 101, Status: Pending, BroadcastTime: now})
	d.RegisterAnchor(AnchorRecord{AnchorHash: "A102", L1Height: 102, Status: Pending, BroadcastTime: now})
	d.RegisterAnchor(AnchorRecord{AnchorHash: "A099", L1Height: 99, Status: Pending, BroadcastTime: now})

	ev, err := d.DetectReorg(100, "hashA-forked", now)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if ev == nil {
		t.Fatal("expected a reorg event")
	}
	if ev.ReorgHeight != 100 || ev.OldHash != "hashA" || ev.NewHash != "hashA-forked" {
		t.Fatalf("event = %+v", ev)
	}
	if len(ev.InvalidatedAnchors) != 2 || ev.InvalidatedAnchors[0] != "A101" || ev.InvalidatedAnchors[1] != "A102" {
		t.Fatalf("invalidated = %v, want [A101 A102]", ev.InvalidatedAnchors)
	}

	rec, ok := d.GetAnchorStatus("A101")
	if !ok || rec.Status != InvalidatedReorg {
		t.Fatalf("A101 status = %+v", rec)
	}
	rec, ok = d.GetAnchorStatus("A102")
	if !ok || rec.Status != InvalidatedReorg {
		t.Fatalf("A102 status = %+v", rec)
	}
	rec, ok = d.GetAnchorStatus("A099")
	if !ok || rec.Status != Pending {
		t.Fatalf("A099 should be unaffected, got %+v", rec)
	}

	if got, ok := d.GetBlockHashAtHeight(100); !ok || got != "hashA-forked" {
		t.Fatalf("block 100 hash = %q, %v; want hashA-forked, true", got, ok)
	}
}

func TestReorgEventsAreSequencedAndPersisted(t *testing.T) {
	d := newTestDetector(t)
	now := time.Unix(1700000000, 0).UTC()

	d.TrackBlock(100, "a", now)
	if _, err := d.DetectReorg(100, "b", now); err != nil {
		t.Fatalf("detect 1: %v", err)
	}
	if _, err := d.DetectReorg(100, "c", now); err != nil {
		t.Fatalf("detect 2: %v", err)
	}

	evs, err := d.ListReorgEvents()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("len = %d, want 2", len(evs))
	}
	if evs[0].NewHash != "b" || evs[1].NewHash != "c" {
		t.Fatalf("evs = %+v", evs)
	}
	if d.ReorgCounter() != 2 {
		t.Fatalf("counter = %d, want 2", d.ReorgCounter())
	}
}

func TestUpdateAnchorConfirmationsPromotesToConfirmed(t *testing.T) {
	d := newTestDetector(t)
	now := time.Unix(1700000000, 0).UTC()
	d.RegisterAnchor(AnchorRecord{AnchorHash: "A1", L1Height: 10, Status: Pending, BroadcastTime: now})

	d.UpdateAnchorConfirmations("A1", 3)
	rec, _ := d.GetAnchorStatus("A1")
	if rec.Status != Pending || rec.Confirmations != 3 {
		t.Fatalf("rec = %+v, want still pending at 3 confirmations", rec)
	}

	d.UpdateAnchorConfirmations("A1", 6)
	rec, _ = d.GetAnchorStatus("A1")
	if rec.Status != Confirmed {
		t.Fatalf("rec = %+v, want confirmed at threshold", rec)
	}
}

func TestGetOrphanedAnchors(t *testing.T) {
	d := newTestDetector(t)
	old := time.Unix(1700000000, 0).UTC()
	recent := old.Add(3 * time.Hour)

	d.RegisterAnchor(AnchorRecord{AnchorHash: "stale", L1Height: 1, Status: Pending, BroadcastTime: old})
	d.RegisterAnchor(AnchorRecord{AnchorHash: "fresh", L1Height: 2, Status: Pending, BroadcastTime: recent})

	orphans := d.GetOrphanedAnchors(recent)
	if len(orphans) != 1 || orphans[0].AnchorHash != "stale" {
		t.Fatalf("orphans = %+v, want only stale", orphans)
	}
}

func TestPruneOldBlocksKeepsNewest(t *testing.T) {
	d := newTestDetector(t)
	now := time.Unix(1700000000, 0).UTC()
	for h := uint64(1); h <= 5; h++ {
		d.TrackBlock(h, "h", now)
	}
	if err := d.PruneOldBlocks(2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	for h := uint64(1); h <= 3; h++ {
		if _, ok := d.GetBlockHashAtHeight(h); ok {
			t.Fatalf("height %d should have been pruned", h)
		}
	}
	for h := uint64(4); h <= 5; h++ {
		if _, ok := d.GetBlockHashAtHeight(h); !ok {
			t.Fatalf("height %d should have survived pruning", h)
		}
	}
}

// TestShouldHaltForDeepReorg exercises spec invariant 6: depths beyond
// the configured threshold are flagged for operator halt.
func TestShouldHaltForDeepReorg(t *testing.T) {
	d := newTestDetector(t)
	if d.ShouldHaltForDeepReorg(6) {
		t.Fatal("depth == threshold should not halt")
	}
	if !d.ShouldHaltForDeepReorg(7) {
		t.Fatal("depth > threshold should halt")
	}
}

func TestNilStoreIsSafeNoop(t *testing.T) {
	d := New(nil, DefaultConfig(), nil)
	if d.TrackBlock(1, "a", time.Now()) {
		t.Fatal("track_block on nil store should return false")
	}
	if _, ok := d.GetBlockHashAtHeight(1); ok {
		t.Fatal("expected no hash on nil store")
	}
	ev, err := d.DetectReorg(1, "a", time.Now())
	if err != nil || ev != nil {
		t.Fatalf("expected (nil, nil) on nil store, got (%v, %v)", ev, err)
	}
}
