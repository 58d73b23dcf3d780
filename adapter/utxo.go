package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

// UTXOAdapter is the reference adapter for Bitcoin-model chains. Start
// runs one goroutine that, every 60 seconds, advances a local tip
// counter and passes a synthetic BlockHeader to onBlock; no endpoint is
// contacted.
type UTXOAdapter struct {
	cfg   Config
	log   *logrus.Entry
	retry RetryPolicy
	idemp *IdempotencyCache

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
	onBlock func(BlockHeader)
	tip     uint64
}

// NewUTXOAdapter returns an uninitialised UTXO adapter.
func NewUTXOAdapter(log *logrus.Entry) *UTXOAdapter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &UTXOAdapter{
		log:   log.WithField("component", "adapter.utxo"),
		retry: NewRetryPolicy(500 * time.Millisecond),
		idemp: NewIdempotencyCache(4096, 10*time.Minute),
	}
}

func (a *UTXOAdapter) Init(cfg Config, onError func(error)) error {
	if cfg.Endpoint == "" {
		return errs.New(errs.Validation, "adapter: missing endpoint")
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	return nil
}

func (a *UTXOAdapter) Start(onTx func(NormalizedTx), onBlock func(BlockHeader), onEnergy func(EnergySample)) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errs.New(errs.Conflict, "adapter: already started")
	}
	a.onBlock = onBlock
	a.done = make(chan struct{})
	a.running = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.poll()
	return nil
}

func (a *UTXOAdapter) poll() {
	defer a.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.mu.Lock()
			a.tip++
			height := a.tip
			onBlock := a.onBlock
			a.mu.Unlock()
			if onBlock != nil {
				onBlock(BlockHeader{Height: height, Timestamp: time.Now().UTC()})
			}
		}
	}
}

func (a *UTXOAdapter) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	done := a.done
	a.mu.Unlock()
	close(done)
	a.wg.Wait()
	return nil
}

func (a *UTXOAdapter) Broadcast(ctx context.Context, opts BroadcastOpts) (string, error) {
	a.mu.Lock()
	readOnly := a.cfg.ReadOnly
	a.mu.Unlock()
	if readOnly {
		return "", errs.New(errs.Unauthorized, "adapter: read-only mode blocks broadcast")
	}
	if len(opts.RawTx) == 0 {
		return "", errs.New(errs.Validation, "adapter: missing signed transaction")
	}
	digest := sha256.Sum256(opts.RawTx)
	key := hex.EncodeToString(digest[:])
	if txID, dup := a.idemp.CheckAndSet(key, key); dup {
		return txID, nil
	}

	var txID string
	err := a.retry.Do(func(attempt int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		txID = key
		return nil
	}, time.Sleep)
	if err != nil {
		return "", errs.Wrap(errs.Transient, "adapter: broadcast failed", err)
	}
	return txID, nil
}

func (a *UTXOAdapter) GetTransaction(txID string) (*NormalizedTx, bool, error) {
	return nil, false, nil
}

func (a *UTXOAdapter) GetBlockHeader(hash string) (*BlockHeader, bool, error) {
	return nil, false, nil
}

func (a *UTXOAdapter) GetBlockHeight() (uint64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tip == 0 {
		return 0, false, nil
	}
	return a.tip, true, nil
}

func (a *UTXOAdapter) Traits() AdapterTraits {
	return AdapterTraits{
		Name:              "utxo",
		Version:           "1",
		SupportsEvents:    true,
		SupportsBroadcast: true,
		UTXOModel:         true,
		DefaultUnit:       UnitSpec{Name: "sat", Decimals: 8},
		Audited:           true,
	}
}
