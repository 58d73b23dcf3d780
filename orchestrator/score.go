package orchestrator

// Scorer computes a candidate's fitness for task. A caller-supplied
// Scorer replaces the weighted formula entirely, per spec section
// 4.10's "A caller-supplied scorer, if present, replaces this formula
// entirely."
type Scorer func(task TaskPayload, node NodeMetrics, trustScore float64) float64

// WeightedScore implements the default scoring formula from spec
// section 4.10. It returns negInf if node fails the minimum-reputation
// or cost gate (candidate filtering should already have excluded such
// nodes, but the gate is re-checked here since WeightedScore may be
// invoked directly by other strategies, e.g. the genetic algorithm's
// fitness function).
func WeightedScore(weights Weights, preferGreenEnergy bool) Scorer {
	return func(task TaskPayload, node NodeMetrics, trustScore float64) float64 {
		if trustScore < task.MinReputation {
			return negInf
		}

		loadRatio := 0.0
		if node.MaxConcurrentTasks > 0 {
			loadRatio = float64(node.ActiveTaskCount) / float64(node.MaxConcurrentTasks)
		}

		costFactor := 1.0
		if task.HasMaxCost && task.MaxCostTokens > 0 {
			estCost := EstimateCost(task, node)
			if estCost > task.MaxCostTokens {
				return negInf
			}
			costFactor = clamp01(1 - estCost/task.MaxCostTokens)
		}

		score := trustScore*weights.Trust -
			(node.LatencyMs/1000)*weights.Speed +
			node.CapacityScore*weights.Power

		if task.PreferredRegion != "" && node.Region == task.PreferredRegion {
			score += 0.10
		}
		if preferGreenEnergy && node.CarbonIntensity < 100 {
			score += 0.05
		}
		score -= loadRatio * 0.20
		score *= costFactor

		return score
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
