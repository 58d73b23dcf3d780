// Package adapter defines the uniform chain-adapter contract every
// supported L1/L2 chain implements (spec section 4.7), plus the shared
// retry policy and broadcast idempotency cache every adapter
// implementation is expected to use.
//
// The interface shape — init/start/stop plus callback-driven streaming
// and a static traits descriptor — is adapted from the teacher's
// cross-chain bridge registry (core/cross_chain_bridge.go), which
// registers chain-specific handlers behind one facade rather than
// special-casing each chain at the call site.
package adapter

import (
	"context"
	"time"
)

// UnitSpec names a chain's native unit and its decimal precision (e.g.
// BTC/8, ETH/18, SOL/9).
type UnitSpec struct {
	Name     string
	Decimals int
}

// AdapterTraits is the static descriptor every adapter reports via
// Traits(), grounded on original_source/include/Global_Seven.h's
// adapter capability bitset.
type AdapterTraits struct {
	Name                   string
	Version                string
	SupportsEvents         bool
	SupportsBroadcast      bool
	SupportsSmartContracts bool
	UTXOModel              bool
	SupportsPrivacy        bool
	DefaultUnit            UnitSpec
	Audited                bool
}

// Config is the adapter initialisation input. The EVM adapter maps
// NetworkID to a chain id through its fixed table of known networks and
// rejects unknown names; it does not ask the node for its chain id. The
// UTXO adapter does not read NetworkID. Endpoint/Credentials/Flags are
// adapter-specific.
type Config struct {
	Endpoint    string            `yaml:"endpoint"`
	Credentials string            `yaml:"credentials"`
	NetworkID   string            `yaml:"network_id"`
	ReadOnly    bool              `yaml:"read_only"`
	Flags       map[string]string `yaml:"flags"`
}

// TxIO is one normalised input or output of a transaction.
type TxIO struct {
	Address string
	Amount  uint64
}

// NormalizedTx is the chain-agnostic view of a transaction returned by
// GetTransaction.
type NormalizedTx struct {
	TxID       string
	Inputs     []TxIO
	Outputs    []TxIO
	Confirmed  bool
	BlockHash  string
	Height     uint64
}

// BlockHeader is the chain-agnostic view of a block header.
type BlockHeader struct {
	Hash      string
	PrevHash  string
	Height    uint64
	Timestamp time.Time
}

// EnergySample is a periodic power/carbon readout some adapters report
// (used by the orchestrator's green-energy scoring bonus).
type EnergySample struct {
	WattsEstimate   float64
	CarbonIntensity float64
	SampledAt       time.Time
}

// BroadcastOpts carries the pre-signed raw transaction to submit.
type BroadcastOpts struct {
	RawTx      []byte
	MaxRetries int
}

// Adapter is the uniform capability set every supported chain
// implements (spec section 4.7).
type Adapter interface {
	Init(cfg Config, onError func(error)) error
	Start(onTx func(NormalizedTx), onBlock func(BlockHeader), onEnergy func(EnergySample)) error
	Stop() error
	Broadcast(ctx context.Context, opts BroadcastOpts) (string, error)
	GetTransaction(txID string) (*NormalizedTx, bool, error)
	GetBlockHeader(hash string) (*BlockHeader, bool, error)
	GetBlockHeight() (uint64, bool, error)
	Traits() AdapterTraits
}
