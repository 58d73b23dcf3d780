// Package orchestrator implements the task orchestrator: candidate
// filtering, per-node scoring, multiple scheduling strategies, batch
// global assignment, parallel diversity-aware dispatch, rebalancing,
// and cost estimation (spec section 4.10).
//
// The package mirrors original_source/Orchestrator.h's division of
// concerns (filtering, a weighted score, named strategies, a global
// assignment solve) but in idiomatic Go: exported types plus a
// Scheduler holding configuration and its reputation feed,
// rather than the original's single monolithic class.
package orchestrator

import "time"

// TaskType names a unit-of-work category; cost and completion-time
// estimates key off it.
type TaskType string

const (
	TaskAIInference    TaskType = "ai_inference"
	TaskAITraining     TaskType = "ai_training"
	TaskFederatedRound TaskType = "federated_round"
	TaskWASM           TaskType = "wasm"
	TaskZK             TaskType = "zk"
	TaskDataProcessing TaskType = "data_processing"
	TaskRelay          TaskType = "relay"
)

// Requirements names the resource and capability floor a candidate node
// must clear.
type Requirements struct {
	CPUCores     float64
	MemoryMB     float64
	StorageMB    float64
	BandwidthMbps float64
	RequireGPU   bool
	RequireTPU   bool
	Architectures []string
	Runtimes      []string
}

// RetryPolicy bounds task-level retry behaviour at the orchestrator
// layer (distinct from the adapter package's transport-level retries).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// TaskPayload is one schedulable unit of work (spec section 3 "Task
// payload (orchestrator)").
type TaskPayload struct {
	TaskID            string
	TaskType          TaskType
	Priority          int
	PayloadBytes      []byte
	Requirements      Requirements
	Timeout           time.Duration
	Deadline          time.Time
	PreferredRegion   string
	Blacklist         []string
	Whitelist         []string
	MaxCostTokens     float64
	HasMaxCost        bool
	MinReputation     float64
	AllowParallel     bool
	NumParallelWorkers int
	RetryPolicy       RetryPolicy
	SubmitterID       string
	SubmittedAt       time.Time
}

// NodeMetrics is one worker's advertised and measured capability (spec
// section 3).
type NodeMetrics struct {
	PeerID             string
	Region             string
	Zone               string
	LatencyMs          float64
	BandwidthMbps      float64
	JitterMs           float64
	CPUUtilisation     float64
	MemUtilisation     float64
	DiskUtilisation    float64
	GPUUtilisation     float64
	CapacityScore      float64 // [0,1]
	EnergyWatts        float64
	CarbonIntensity    float64
	CostPerHour        float64
	TokensAvailable    float64
	LastSeen           time.Time
	AvailabilityRate   float64
	ActiveTaskCount    int
	MaxConcurrentTasks int
	IsVerified         bool
	HasZK              bool
	AttestationHash    string
	Capabilities       map[string]bool
}

// Assignment is an orchestrator decision binding a task to a worker
// (spec's GLOSSARY entry).
type Assignment struct {
	TaskID            string
	AssignmentID      string
	Assigned          bool
	WorkerPeerID      string
	BackupPeerID      string
	Reason            string
	ExpectedLatencyMs float64
	ExpectedCostTokens float64
	ExpectedCompletion time.Duration
	CandidateScores   []CandidateScore
}

// CandidateScore records one filtered candidate's score, surfaced on an
// Assignment for observability (spec scenario S5 requires a non-empty
// candidate list of filtered-but-scored nodes).
type CandidateScore struct {
	PeerID string
	Score  float64
}

// MigrationRecord is one rebalancing move (spec section 4.10
// "Rebalancing").
type MigrationRecord struct {
	TaskID string
	From   string
	To     string
}

// Weights tunes the weighted-score formula's three terms. Values are
// yaml-tagged so a host can load them from the same config file as the
// rest of the ambient stack.
type Weights struct {
	Trust float64 `yaml:"trust"`
	Speed float64 `yaml:"speed"`
	Power float64 `yaml:"power"`
}

// DefaultWeights matches spec section 4.10's stated defaults.
func DefaultWeights() Weights {
	return Weights{Trust: 0.6, Speed: 0.3, Power: 0.1}
}

// DiversityConstraint names a per-region worker limit. It is carried on
// Config, but DispatchParallel does not read it: that method computes
// its own per-region cap of max(1, n/4).
type DiversityConstraint struct {
	MaxPerRegion int
}

const negInf = -1e308
