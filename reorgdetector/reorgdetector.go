// Package reorgdetector persists L1 block height<->hash tracking, the
// anchor registry, and the monotone reorg-event log in a single ordered
// KV store, and owns the cascade-invalidation logic that fires when two
// distinct block hashes occupy the same L1 height (spec section 4.3).
//
// Keyspace, mirrored exactly from spec section 6:
//
//	block:<height padded to 20 digits>  -> block hash
//	anchor:<hex anchor hash>            -> pipe-delimited AnchorRecord
//	reorg:<20-digit sequence>           -> pipe-delimited ReorgEvent
//	reorg_counter                       -> decimal sequence high-water mark
package reorgdetector

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btc-l2/anchorcore/kvstore"
	"github.com/btc-l2/anchorcore/metrics"
)

const (
	blockPrefix  = "block:"
	anchorPrefix = "anchor:"
	reorgPrefix  = "reorg:"
	counterKey   = "reorg_counter"

	heightDigits = 20
)

// Status is the lifecycle state of an AnchorRecord.
type Status int

const (
	Pending Status = iota
	Confirmed
	InvalidatedReorg
	FailedOrphaned
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case InvalidatedReorg:
		return "invalidated_reorg"
	case FailedOrphaned:
		return "failed_orphaned"
	default:
		return "unknown"
	}
}

// AnchorRecord tracks one anchor commitment's L1 broadcast lifecycle.
type AnchorRecord struct {
	AnchorHash     string
	L1TxID         string
	L1Height       uint64
	Confirmations  uint64
	BroadcastTime  time.Time
	RetryCount     int
	Status         Status
	L2StateRoot    string
}

// ReorgEvent records the observation that two distinct block hashes have
// occupied the same L1 height, and which anchors that invalidated.
type ReorgEvent struct {
	Seq                uint64
	ReorgHeight        uint64
	OldHash            string
	NewHash            string
	DetectedAt         time.Time
	InvalidatedAnchors []string
}

// Config tunes the detector's thresholds.
type Config struct {
	// ConfirmationThreshold is the confirmation count at which a Pending
	// anchor is promoted to Confirmed.
	ConfirmationThreshold uint64
	// MaxPendingTime bounds how long a zero-confirmation anchor may sit
	// before it is considered orphaned.
	MaxPendingTime time.Duration
	// DeepReorgThreshold is the depth beyond which ShouldHaltForDeepReorg
	// reports true.
	DeepReorgThreshold uint64
}

// DefaultConfig matches common Bitcoin confirmation conventions.
func DefaultConfig() Config {
	return Config{
		ConfirmationThreshold: 6,
		MaxPendingTime:        2 * time.Hour,
		DeepReorgThreshold:    6,
	}
}

// Detector implements spec section 4.3. It is the sole writer of L1
// block/anchor/reorg state; the KV store is its single synchronisation
// point.
type Detector struct {
	store   kvstore.Store
	cfg     Config
	log     *logrus.Entry
	onReorg func(ReorgEvent)
	metrics *metrics.ReorgDetectorMetrics
}

// AttachMetrics wires m into the detector so reorg and anchor lifecycle
// events update it synchronously, per spec section 4.11. Passing nil
// detaches metrics.
func (d *Detector) AttachMetrics(m *metrics.ReorgDetectorMetrics) {
	d.metrics = m
}

// New returns a Detector backed by store. store may be nil, in which
// case every mutating operation returns false and every read returns
// its zero value, per spec section 4.3's failure semantics.
func New(store kvstore.Store, cfg Config, log *logrus.Entry) *Detector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Detector{store: store, cfg: cfg, log: log.WithField("component", "reorgdetector")}
}

// OnReorg registers a callback invoked synchronously after a reorg event
// is persisted. It is advisory only.
func (d *Detector) OnReorg(f func(ReorgEvent)) { d.onReorg = f }

func heightKey(h uint64) []byte {
	return []byte(fmt.Sprintf("%s%0*d", blockPrefix, heightDigits, h))
}

func anchorKey(hash string) []byte {
	return []byte(anchorPrefix + hash)
}

func reorgKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%0*d", reorgPrefix, heightDigits, seq))
}

// TrackBlock upserts the (height, hash) record.
func (d *Detector) TrackBlock(height uint64, hash string, _ time.Time) bool {
	if d.store == nil {
		return false
	}
	if err := d.store.Set(heightKey(height), []byte(hash)); err != nil {
		d.log.WithError(err).Warn("track_block failed")
		return false
	}
	if d.metrics != nil {
		d.metrics.TrackedBlockHeight.Set(float64(height))
	}
	return true
}

// GetBlockHashAtHeight returns the tracked hash at height, if any.
func (d *Detector) GetBlockHashAtHeight(height uint64) (string, bool) {
	if d.store == nil {
		return "", false
	}
	v, err := d.store.Get(heightKey(height))
	if err != nil {
		return "", false
	}
	return string(v), true
}

// DetectReorg reads the current hash at height. If absent, it stores
// newHash and returns (nil, nil). If equal to newHash, returns (nil,
// nil). Otherwise it cascades invalidation and returns the persisted
// ReorgEvent.
func (d *Detector) DetectReorg(height uint64, newHash string, ts time.Time) (*ReorgEvent, error) {
	if d.store == nil {
		return nil, nil
	}

	current, ok := d.GetBlockHashAtHeight(height)
	if !ok {
		d.TrackBlock(height, newHash, ts)
		return nil, nil
	}
	if current == newHash {
		return nil, nil
	}

	invalidated, err := d.anchorsAtOrAboveHeight(height)
	if err != nil {
		return nil, err
	}
	sort.Strings(invalidated)

	seq, err := d.nextReorgSeq()
	if err != nil {
		return nil, err
	}

	ev := ReorgEvent{
		Seq:                seq,
		ReorgHeight:        height,
		OldHash:            current,
		NewHash:            newHash,
		DetectedAt:         ts,
		InvalidatedAnchors: invalidated,
	}

	err = d.store.WriteBatch(func(b kvstore.Batch) error {
		for _, hash := range invalidated {
			rec, ok, rerr := d.loadAnchorLocked(hash)
			if rerr != nil {
				return rerr
			}
			if !ok {
				continue
			}
			rec.Status = InvalidatedReorg
			rec.Confirmations = 0
			if err := b.Set(anchorKey(hash), []byte(encodeAnchorRecord(rec))); err != nil {
				return err
			}
		}
		if err := b.Set(reorgKey(seq), []byte(encodeReorgEvent(ev))); err != nil {
			return err
		}
		if err := b.Set([]byte(counterKey), []byte(strconv.FormatUint(seq, 10))); err != nil {
			return err
		}
		return b.Set(heightKey(height), []byte(newHash))
	})
	if err != nil {
		return nil, err
	}

	if d.metrics != nil {
		d.metrics.ReorgsDetected.Inc()
		for range invalidated {
			d.metrics.AnchorsInvalidated.Inc()
		}
	}

	if d.onReorg != nil {
		d.onReorg(ev)
	}
	return &ev, nil
}

func (d *Detector) anchorsAtOrAboveHeight(height uint64) ([]string, error) {
	it := d.store.Iterator([]byte(anchorPrefix))
	defer it.Close()

	var hashes []string
	for it.Next() {
		rec, err := decodeAnchorRecord(string(it.Value()))
		if err != nil {
			return nil, err
		}
		if rec.L1Height >= height && rec.Status != InvalidatedReorg {
			hashes = append(hashes, rec.AnchorHash)
		}
	}
	return hashes, it.Error()
}

func (d *Detector) nextReorgSeq() (uint64, error) {
	v, err := d.store.Get([]byte(counterKey))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return 1, nil
		}
		return 0, err
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// RegisterAnchor writes the anchor record, creating or overwriting.
func (d *Detector) RegisterAnchor(rec AnchorRecord) bool {
	if d.store == nil {
		return false
	}
	if err := d.store.Set(anchorKey(rec.AnchorHash), []byte(encodeAnchorRecord(rec))); err != nil {
		d.log.WithError(err).Warn("register_anchor failed")
		return false
	}
	return true
}

// GetAnchorStatus returns the anchor record for hash, if present.
func (d *Detector) GetAnchorStatus(hash string) (AnchorRecord, bool) {
	if d.store == nil {
		return AnchorRecord{}, false
	}
	rec, ok, err := d.loadAnchorLocked(hash)
	if err != nil || !ok {
		return AnchorRecord{}, false
	}
	return rec, true
}

func (d *Detector) loadAnchorLocked(hash string) (AnchorRecord, bool, error) {
	v, err := d.store.Get(anchorKey(hash))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return AnchorRecord{}, false, nil
		}
		return AnchorRecord{}, false, err
	}
	rec, err := decodeAnchorRecord(string(v))
	if err != nil {
		return AnchorRecord{}, false, err
	}
	return rec, true, nil
}

// UpdateAnchorConfirmations sets confirmations for hash and promotes
// Pending to Confirmed once the threshold is met.
func (d *Detector) UpdateAnchorConfirmations(hash string, n uint64) bool {
	if d.store == nil {
		return false
	}
	rec, ok, err := d.loadAnchorLocked(hash)
	if err != nil || !ok {
		return false
	}
	rec.Confirmations = n
	promoted := n >= d.cfg.ConfirmationThreshold && rec.Status == Pending
	if promoted {
		rec.Status = Confirmed
	}
	if err := d.store.Set(anchorKey(hash), []byte(encodeAnchorRecord(rec))); err != nil {
		d.log.WithError(err).Warn("update_anchor_confirmations failed")
		return false
	}
	if promoted && d.metrics != nil {
		d.metrics.AnchorsConfirmed.Inc()
	}
	return true
}

// GetOrphanedAnchors returns anchors stuck at zero confirmations past
// MaxPendingTime.
func (d *Detector) GetOrphanedAnchors(now time.Time) []AnchorRecord {
	if d.store == nil {
		return nil
	}
	it := d.store.Iterator([]byte(anchorPrefix))
	defer it.Close()

	var out []AnchorRecord
	for it.Next() {
		rec, err := decodeAnchorRecord(string(it.Value()))
		if err != nil {
			continue
		}
		if rec.Status == Pending && rec.Confirmations == 0 && now.Sub(rec.BroadcastTime) > d.cfg.MaxPendingTime {
			out = append(out, rec)
		}
	}
	if d.metrics != nil {
		for range out {
			d.metrics.AnchorsOrphaned.Inc()
		}
	}
	return out
}

// PruneOldBlocks retains only the newest keepLastN block entries by
// height, deleting the rest atomically.
func (d *Detector) PruneOldBlocks(keepLastN int) error {
	if d.store == nil {
		return nil
	}
	it := d.store.Iterator([]byte(blockPrefix))
	var keys [][]byte
	for it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		keys = append(keys, k)
	}
	if err := it.Error(); err != nil {
		it.Close()
		return err
	}
	it.Close()

	if keepLastN < 0 {
		keepLastN = 0
	}
	if len(keys) <= keepLastN {
		return nil
	}
	// keys are returned in ascending lexicographic order, which matches
	// ascending height because heights are zero-padded to a fixed width.
	toDelete := keys[:len(keys)-keepLastN]

	return d.store.WriteBatch(func(b kvstore.Batch) error {
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ShouldHaltForDeepReorg reports whether depth exceeds the configured
// deep-reorg threshold.
func (d *Detector) ShouldHaltForDeepReorg(depth uint64) bool {
	return depth > d.cfg.DeepReorgThreshold
}

// ReorgCounter returns the current monotonic sequence high-water mark.
func (d *Detector) ReorgCounter() uint64 {
	if d.store == nil {
		return 0
	}
	v, err := d.store.Get([]byte(counterKey))
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseUint(string(v), 10, 64)
	return n
}

// ListReorgEvents returns every persisted reorg event in ascending
// sequence order.
func (d *Detector) ListReorgEvents() ([]ReorgEvent, error) {
	if d.store == nil {
		return nil, nil
	}
	it := d.store.Iterator([]byte(reorgPrefix))
	defer it.Close()

	var out []ReorgEvent
	for it.Next() {
		ev, err := decodeReorgEvent(string(it.Value()))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, it.Error()
}

// --- pipe-delimited serialisation -----------------------------------

func encodeAnchorRecord(r AnchorRecord) string {
	fields := []string{
		r.AnchorHash,
		r.L1TxID,
		strconv.FormatUint(r.L1Height, 10),
		strconv.FormatUint(r.Confirmations, 10),
		strconv.FormatInt(r.BroadcastTime.UnixMilli(), 10),
		strconv.Itoa(r.RetryCount),
		strconv.Itoa(int(r.Status)),
		r.L2StateRoot,
	}
	return strings.Join(fields, "|")
}

func decodeAnchorRecord(s string) (AnchorRecord, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 8 {
		return AnchorRecord{}, fmt.Errorf("reorgdetector: malformed anchor record: %d fields", len(parts))
	}
	height, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return AnchorRecord{}, err
	}
	confs, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return AnchorRecord{}, err
	}
	ms, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return AnchorRecord{}, err
	}
	retry, err := strconv.Atoi(parts[5])
	if err != nil {
		return AnchorRecord{}, err
	}
	statusInt, err := strconv.Atoi(parts[6])
	if err != nil {
		return AnchorRecord{}, err
	}
	return AnchorRecord{
		AnchorHash:    parts[0],
		L1TxID:        parts[1],
		L1Height:      height,
		Confirmations: confs,
		BroadcastTime: time.UnixMilli(ms).UTC(),
		RetryCount:    retry,
		Status:        Status(statusInt),
		L2StateRoot:   parts[7],
	}, nil
}

func encodeReorgEvent(ev ReorgEvent) string {
	fields := []string{
		strconv.FormatUint(ev.Seq, 10),
		strconv.FormatUint(ev.ReorgHeight, 10),
		ev.OldHash,
		ev.NewHash,
		strconv.FormatInt(ev.DetectedAt.UnixMilli(), 10),
		strconv.Itoa(len(ev.InvalidatedAnchors)),
	}
	fields = append(fields, ev.InvalidatedAnchors...)
	return strings.Join(fields, "|")
}

func decodeReorgEvent(s string) (ReorgEvent, error) {
	parts := strings.Split(s, "|")
	if len(parts) < 6 {
		return ReorgEvent{}, fmt.Errorf("reorgdetector: malformed reorg event: %d fields", len(parts))
	}
	seq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return ReorgEvent{}, err
	}
	height, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ReorgEvent{}, err
	}
	ms, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return ReorgEvent{}, err
	}
	count, err := strconv.Atoi(parts[5])
	if err != nil {
		return ReorgEvent{}, err
	}
	var invalidated []string
	if count > 0 {
		invalidated = parts[6 : 6+count]
	}
	return ReorgEvent{
		Seq:                seq,
		ReorgHeight:        height,
		OldHash:            parts[2],
		NewHash:            parts[3],
		DetectedAt:         time.UnixMilli(ms).UTC(),
		InvalidatedAnchors: invalidated,
	}, nil
}
