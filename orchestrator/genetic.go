package orchestrator

import "sort"

const (
	geneticPopulation = 20
	geneticGenerations = 10
)

// scheduleGenetic explores the candidate space with a small genetic
// algorithm rather than the closed-form weighted score, per spec
// section 4.10: "GeneticAlgorithm (population 20, 10 generations,
// elitism over top half with mutation filling the rest — used only for
// exploration)".
//
// Each individual is simply an index into candidates; fitness is the
// weighted score. Mutation perturbs an individual by jumping to a
// uniformly random candidate. This never beats WeightedScore on a
// static candidate set (the optimum is already known), but it exists so
// callers that want randomized exploration across repeated calls (to
// avoid starving low-score-but-viable nodes) have a strategy for it.
func (s *Scheduler) scheduleGenetic(task TaskPayload, candidates []NodeMetrics) Assignment {
	if len(candidates) == 1 {
		return s.scheduleWithScorer(task, candidates, WeightedScore(s.cfg.Weights, s.cfg.PreferGreenEnergy))
	}

	scorer := WeightedScore(s.cfg.Weights, s.cfg.PreferGreenEnergy)
	fitness := make([]float64, len(candidates))
	for i, n := range candidates {
		fitness[i] = scorer(task, n, s.trustOf(n.PeerID))
	}

	pop := make([]int, geneticPopulation)
	s.mu.Lock()
	for i := range pop {
		pop[i] = s.rnd.Intn(len(candidates))
	}
	s.mu.Unlock()

	for gen := 0; gen < geneticGenerations; gen++ {
		sort.Slice(pop, func(i, j int) bool { return fitness[pop[i]] > fitness[pop[j]] })
		half := len(pop) / 2
		s.mu.Lock()
		for i := half; i < len(pop); i++ {
			pop[i] = pop[i%half]
			if s.rnd.Float64() < 0.3 {
				pop[i] = s.rnd.Intn(len(candidates))
			}
		}
		s.mu.Unlock()
	}

	sort.Slice(pop, func(i, j int) bool { return fitness[pop[i]] > fitness[pop[j]] })
	best := pop[0]
	if fitness[best] == negInf {
		if s.metrics != nil {
			s.metrics.FailedAssignments.Inc()
		}
		return Assignment{TaskID: task.TaskID, Assigned: false, Reason: "no candidate cleared the reputation/cost gate"}
	}

	scores := make([]CandidateScore, len(candidates))
	for i, n := range candidates {
		scores[i] = CandidateScore{PeerID: n.PeerID, Score: fitness[i]}
	}
	return s.assignmentFor(task, candidates[best], scores)
}
