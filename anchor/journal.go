package anchor

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

const (
	journalBegin = "SNAPSHOT v1"
	journalEnd   = "END_SNAPSHOT"
)

// Record is one append-only journal entry: the canonical encoding of a
// snapshot plus the commitment the block producer derived from it.
// CanonicalSnapshot is kept as raw bytes (rather than reparsed into a
// Snapshot) because the journal only ever needs to re-hash it for
// verification, never to reconstruct individual entities.
type Record struct {
	CanonicalSnapshot []byte
	Commitment        Commitment
}

// NewRecord canonicalises snapshot and pairs it with commitment.
func NewRecord(snapshot Snapshot, commitment Commitment) Record {
	return Record{CanonicalSnapshot: snapshot.CanonicalEncoding(), Commitment: commitment}
}

// Append writes record to path as a single SNAPSHOT v1 ... END_SNAPSHOT
// block and fsyncs before returning. The write is all-or-nothing at the
// record boundary: a crash mid-append leaves a truncated tail that
// LoadLatest ignores.
func Append(path string, record Record) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(errs.Fatal, "anchor: open journal", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	buf.WriteString(journalBegin)
	buf.WriteByte('\n')
	buf.WriteString("canonical=" + base64.StdEncoding.EncodeToString(record.CanonicalSnapshot))
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "root=%s\n", hex.EncodeToString(record.Commitment.L2StateRoot[:]))
	fmt.Fprintf(&buf, "timestamp_ms=%d\n", record.Commitment.TimestampMs)
	buf.WriteString("recovery_metadata=" + base64.StdEncoding.EncodeToString(record.Commitment.RecoveryMetadata))
	buf.WriteByte('\n')
	buf.WriteString("payload=" + base64.StdEncoding.EncodeToString(record.Commitment.Payload))
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "hash=%s\n", hex.EncodeToString(record.Commitment.Hash[:]))
	buf.WriteString(journalEnd)
	buf.WriteByte('\n')

	if _, err := f.Write(buf.Bytes()); err != nil {
		return errs.Wrap(errs.Fatal, "anchor: write journal record", err)
	}
	return f.Sync()
}

// LoadLatest scans path and returns the last well-formed record. A
// truncated final record (missing its END_SNAPSHOT line) is ignored
// rather than treated as an error, per spec section 4.6.
func LoadLatest(path string) (Record, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, errs.Wrap(errs.Fatal, "anchor: open journal", err)
	}
	defer f.Close()

	var (
		latest   Record
		haveOne  bool
		inRecord bool
		fields   map[string]string
	)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == journalBegin:
			inRecord = true
			fields = make(map[string]string)
		case line == journalEnd:
			if inRecord {
				if rec, ok := decodeRecordFields(fields); ok {
					latest = rec
					haveOne = true
				}
			}
			inRecord = false
		case inRecord:
			if key, val, ok := splitKV(line); ok {
				fields[key] = val
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Record{}, false, errs.Wrap(errs.Fatal, "anchor: scan journal", err)
	}
	return latest, haveOne, nil
}

// Verify recomputes sha256 over the record's canonical snapshot bytes
// and the payload hash, comparing both against the stored commitment.
func (r Record) Verify() error {
	gotRoot := sha256.Sum256(r.CanonicalSnapshot)
	if !strings.EqualFold(hex.EncodeToString(gotRoot[:]), hex.EncodeToString(r.Commitment.L2StateRoot[:])) {
		return errs.New(errs.Consistency, "anchor: journal record state root mismatch")
	}
	gotHash := sha256.Sum256(r.Commitment.Payload)
	if !strings.EqualFold(hex.EncodeToString(gotHash[:]), hex.EncodeToString(r.Commitment.Hash[:])) {
		return errs.New(errs.Consistency, "anchor: journal record payload hash mismatch")
	}
	return nil
}

func splitKV(line string) (string, string, bool) {
	for i := 0; i < len(line); i++ {
		if line[i] == '=' {
			return line[:i], line[i+1:], true
		}
	}
	return "", "", false
}

func decodeRecordFields(fields map[string]string) (Record, bool) {
	root, err := hex.DecodeString(fields["root"])
	if err != nil || len(root) != 32 {
		return Record{}, false
	}
	hash, err := hex.DecodeString(fields["hash"])
	if err != nil || len(hash) != 32 {
		return Record{}, false
	}
	ts, err := strconv.ParseInt(fields["timestamp_ms"], 10, 64)
	if err != nil {
		return Record{}, false
	}
	recoveryMetadata, err := base64.StdEncoding.DecodeString(fields["recovery_metadata"])
	if err != nil {
		return Record{}, false
	}
	payload, err := base64.StdEncoding.DecodeString(fields["payload"])
	if err != nil {
		return Record{}, false
	}
	canonical, err := base64.StdEncoding.DecodeString(fields["canonical"])
	if err != nil {
		return Record{}, false
	}

	var rootArr, hashArr [32]byte
	copy(rootArr[:], root)
	copy(hashArr[:], hash)

	return Record{
		CanonicalSnapshot: canonical,
		Commitment: Commitment{
			L2StateRoot:      rootArr,
			TimestampMs:      ts,
			RecoveryMetadata: recoveryMetadata,
			Payload:          payload,
			Hash:             hashArr,
		},
	}, true
}
