package orchestrator

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/btc-l2/anchorcore/metrics"
)

// Strategy names a scheduling algorithm, per spec section 4.10
// "Strategies".
type Strategy string

const (
	WeightedScoreStrategy   Strategy = "weighted_score"
	RoundRobin              Strategy = "round_robin"
	LeastLoaded             Strategy = "least_loaded"
	LowestLatency           Strategy = "lowest_latency"
	HighestReputation       Strategy = "highest_reputation"
	LowestCost              Strategy = "lowest_cost"
	GeographicAffinity      Strategy = "geographic_affinity"
	LoadBalancing           Strategy = "load_balancing" // alias of LeastLoaded
	GeneticAlgorithm        Strategy = "genetic_algorithm"
	Custom                  Strategy = "custom"
)

// TrustSource answers a peer's current trust score; satisfied by
// *reputation.Ledger.
type TrustSource interface {
	TrustScoreOf(peerID string) float64
}

// trustSourceFunc adapts a plain function to TrustSource.
type trustSourceFunc func(string) float64

func (f trustSourceFunc) TrustScoreOf(peerID string) float64 { return f(peerID) }

// Config tunes scheduler-wide defaults.
type Config struct {
	Weights            Weights
	PreferGreenEnergy  bool
	Diversity          DiversityConstraint
	Workers            int
}

// DefaultConfig matches spec section 4.10's defaults plus the
// section-5 worker-pool default of 4.
func DefaultConfig() Config {
	return Config{
		Weights:   DefaultWeights(),
		Diversity: DiversityConstraint{MaxPerRegion: 1},
		Workers:   4,
	}
}

// Scheduler is the orchestrator's in-process submission surface. It
// owns no persistent state of its own; NodeMetrics and trust scores are
// supplied by the caller at call time (the reputation and latency
// packages are the sources of truth, per spec section 3's ownership
// rule that the Orchestrator is "the sole writer of assignments and
// metrics").
type Scheduler struct {
	cfg    Config
	trust  TrustSource
	mu     sync.Mutex
	rrNext int
	rnd    *rand.Rand

	metrics *metrics.OrchestratorMetrics
}

// AttachMetrics wires m into the scheduler so every assignment outcome
// updates it synchronously, per spec section 4.10/4.11. Passing nil
// detaches metrics.
func (s *Scheduler) AttachMetrics(m *metrics.OrchestratorMetrics) {
	s.metrics = m
}

// New returns a Scheduler backed by trust for reputation lookups.
func New(cfg Config, trust TrustSource) *Scheduler {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Diversity.MaxPerRegion <= 0 {
		cfg.Diversity.MaxPerRegion = 1
	}
	if trust == nil {
		trust = trustSourceFunc(func(string) float64 { return 0.5 })
	}
	return &Scheduler{cfg: cfg, trust: trust, rnd: rand.New(rand.NewSource(1))}
}

func (s *Scheduler) trustOf(peerID string) float64 { return s.trust.TrustScoreOf(peerID) }

// Schedule selects a single worker for task among nodes, using
// strategy. scorer overrides the default weighted formula only when
// strategy is Custom; for every other named strategy it is ignored.
func (s *Scheduler) Schedule(task TaskPayload, nodes []NodeMetrics, strategy Strategy, scorer Scorer, now time.Time) Assignment {
	candidates := filterCandidates(task, nodes, s.trustOf, now)
	if len(candidates) == 0 {
		if s.metrics != nil {
			s.metrics.FailedAssignments.Inc()
		}
		return Assignment{
			TaskID:   task.TaskID,
			Assigned: false,
			Reason:   "no eligible candidates after filtering",
		}
	}

	switch strategy {
	case RoundRobin:
		return s.scheduleRoundRobin(task, candidates)
	case LeastLoaded, LoadBalancing:
		return s.scheduleBy(task, candidates, func(n NodeMetrics) float64 {
			if n.MaxConcurrentTasks == 0 {
				return 0
			}
			return -float64(n.ActiveTaskCount) / float64(n.MaxConcurrentTasks)
		})
	case LowestLatency:
		return s.scheduleBy(task, candidates, func(n NodeMetrics) float64 { return -n.LatencyMs })
	case HighestReputation:
		return s.scheduleBy(task, candidates, func(n NodeMetrics) float64 { return s.trustOf(n.PeerID) })
	case LowestCost:
		return s.scheduleBy(task, candidates, func(n NodeMetrics) float64 { return -EstimateCost(task, n) })
	case GeographicAffinity:
		return s.scheduleGeographic(task, candidates)
	case GeneticAlgorithm:
		return s.scheduleGenetic(task, candidates)
	case Custom:
		if scorer == nil {
			return Assignment{TaskID: task.TaskID, Assigned: false, Reason: "custom strategy requires a scorer"}
		}
		return s.scheduleWithScorer(task, candidates, scorer)
	default:
		return s.scheduleWithScorer(task, candidates, WeightedScore(s.cfg.Weights, s.cfg.PreferGreenEnergy))
	}
}

func (s *Scheduler) scheduleWithScorer(task TaskPayload, candidates []NodeMetrics, scorer Scorer) Assignment {
	scores := make([]CandidateScore, 0, len(candidates))
	bestIdx := -1
	bestScore := negInf
	for i, n := range candidates {
		sc := scorer(task, n, s.trustOf(n.PeerID))
		scores = append(scores, CandidateScore{PeerID: n.PeerID, Score: sc})
		if sc > bestScore {
			bestScore = sc
			bestIdx = i
		}
	}
	if bestIdx < 0 || bestScore == negInf {
		if s.metrics != nil {
			s.metrics.FailedAssignments.Inc()
		}
		return Assignment{TaskID: task.TaskID, Assigned: false, Reason: "no candidate cleared the reputation/cost gate", CandidateScores: scores}
	}
	return s.assignmentFor(task, candidates[bestIdx], scores)
}

// scheduleBy picks the candidate maximizing key, breaking ties by
// peer id for determinism.
func (s *Scheduler) scheduleBy(task TaskPayload, candidates []NodeMetrics, key func(NodeMetrics) float64) Assignment {
	sorted := append([]NodeMetrics(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := key(sorted[i]), key(sorted[j])
		if ki != kj {
			return ki > kj
		}
		return sorted[i].PeerID < sorted[j].PeerID
	})
	scores := make([]CandidateScore, len(sorted))
	for i, n := range sorted {
		scores[i] = CandidateScore{PeerID: n.PeerID, Score: key(n)}
	}
	return s.assignmentFor(task, sorted[0], scores)
}

func (s *Scheduler) scheduleGeographic(task TaskPayload, candidates []NodeMetrics) Assignment {
	regional := candidates
	if task.PreferredRegion != "" {
		filtered := make([]NodeMetrics, 0, len(candidates))
		for _, n := range candidates {
			if n.Region == task.PreferredRegion {
				filtered = append(filtered, n)
			}
		}
		if len(filtered) > 0 {
			regional = filtered
		}
	}
	return s.scheduleBy(task, regional, func(n NodeMetrics) float64 { return -n.LatencyMs })
}

func (s *Scheduler) scheduleRoundRobin(task TaskPayload, candidates []NodeMetrics) Assignment {
	sorted := append([]NodeMetrics(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PeerID < sorted[j].PeerID })

	s.mu.Lock()
	idx := s.rrNext % len(sorted)
	s.rrNext++
	s.mu.Unlock()

	chosen := sorted[idx]
	scores := make([]CandidateScore, len(sorted))
	for i, n := range sorted {
		scores[i] = CandidateScore{PeerID: n.PeerID, Score: 0}
	}
	return s.assignmentFor(task, chosen, scores)
}

func (s *Scheduler) assignmentFor(task TaskPayload, chosen NodeMetrics, scores []CandidateScore) Assignment {
	completion := EstimatedCompletion(task, chosen)
	if s.metrics != nil {
		s.metrics.Assignments.Inc()
		s.metrics.AvgWallTimeSeconds.Set(completion.Seconds())
	}
	return Assignment{
		TaskID:             task.TaskID,
		AssignmentID:       fmt.Sprintf("%s-assign", task.TaskID),
		Assigned:           true,
		WorkerPeerID:       chosen.PeerID,
		ExpectedLatencyMs:  chosen.LatencyMs,
		ExpectedCostTokens: EstimateCost(task, chosen),
		ExpectedCompletion: completion,
		CandidateScores:    scores,
	}
}

// Backup re-runs the weighted selector over candidates with primary
// excluded, per spec section 4.10's "Backup worker".
func (s *Scheduler) Backup(task TaskPayload, nodes []NodeMetrics, primaryPeerID string, now time.Time) (Assignment, bool) {
	candidates := filterCandidates(task, nodes, s.trustOf, now)
	remaining := make([]NodeMetrics, 0, len(candidates))
	for _, n := range candidates {
		if n.PeerID != primaryPeerID {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == 0 {
		if s.metrics != nil {
			s.metrics.FailedAssignments.Inc()
		}
		return Assignment{}, false
	}
	a := s.scheduleWithScorer(task, remaining, WeightedScore(s.cfg.Weights, s.cfg.PreferGreenEnergy))
	return a, a.Assigned
}
