package anchor

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Balances: []BalanceEntry{
			{PeerID: "B", Balance: 200},
			{PeerID: "A", Balance: 100},
		},
		Escrows: []EscrowEntry{
			{TaskID: "T1", ClientPeerID: "A", Amount: 50, Locked: true, CreatedAtMs: 1000},
		},
	}
}

func TestCanonicalEncodingIsOrderIndependent(t *testing.T) {
	a := sampleSnapshot()
	b := Snapshot{
		Balances: []BalanceEntry{
			{PeerID: "A", Balance: 100},
			{PeerID: "B", Balance: 200},
		},
		Escrows: a.Escrows,
	}

	if string(a.CanonicalEncoding()) != string(b.CanonicalEncoding()) {
		t.Fatal("canonical encoding must not depend on slice insertion order")
	}
}

func TestCanonicalEncodingChangesWithState(t *testing.T) {
	a := sampleSnapshot()
	b := sampleSnapshot()
	b.Balances[0].Balance = 999

	if string(a.CanonicalEncoding()) == string(b.CanonicalEncoding()) {
		t.Fatal("differing balances must produce differing canonical encodings")
	}
}

func TestBuildAndVerifyRoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	commitment, err := Build(snap, 1700000000000, []byte("recovery"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := Verify(snap, commitment); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyDetectsStateMismatch(t *testing.T) {
	snap := sampleSnapshot()
	commitment, err := Build(snap, 1700000000000, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	tampered := sampleSnapshot()
	tampered.Balances[0].Balance = 1
	if err := Verify(tampered, commitment); err == nil {
		t.Fatal("expected mismatch error for tampered snapshot")
	}
}

func TestVerifyDetectsPayloadTamper(t *testing.T) {
	snap := sampleSnapshot()
	commitment, err := Build(snap, 1700000000000, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	commitment.Payload = append([]byte{0xff}, commitment.Payload...)
	if err := Verify(snap, commitment); err == nil {
		t.Fatal("expected hash mismatch for tampered payload")
	}
}

func TestJournalAppendAndLoadLatest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots.journal")

	snap := sampleSnapshot()
	commitment, err := Build(snap, 1700000000000, []byte("meta"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := Append(path, NewRecord(snap, commitment)); err != nil {
		t.Fatalf("append 1: %v", err)
	}

	snap2 := sampleSnapshot()
	snap2.Balances[0].Balance = 777
	commitment2, err := Build(snap2, 1700000001000, []byte("meta2"))
	if err != nil {
		t.Fatalf("build 2: %v", err)
	}
	if err := Append(path, NewRecord(snap2, commitment2)); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	rec, ok, err := LoadLatest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected a record")
	}
	if rec.Commitment.TimestampMs != 1700000001000 {
		t.Fatalf("timestamp = %d, want latest record's", rec.Commitment.TimestampMs)
	}
	if err := rec.Verify(); err != nil {
		t.Fatalf("verify loaded record: %v", err)
	}
}

func TestLoadLatestIgnoresTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots.journal")

	snap := sampleSnapshot()
	commitment, err := Build(snap, 1700000000000, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := Append(path, NewRecord(snap, commitment)); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Simulate a crash mid-write of a second record: begin marker and a
	// couple of fields, no terminator.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for truncated append: %v", err)
	}
	if _, err := f.WriteString("SNAPSHOT v1\ncanonical=AAAA\n"); err != nil {
		t.Fatalf("write truncated: %v", err)
	}
	f.Close()

	rec, ok, err := LoadLatest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected the prior well-formed record to still load")
	}
	if err := rec.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestLoadLatestMissingFileReturnsNotFound(t *testing.T) {
	_, ok, err := LoadLatest(filepath.Join(t.TempDir(), "missing.journal"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing journal file")
	}
}
