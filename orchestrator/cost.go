package orchestrator

import (
	"math"
	"time"
)

// baseCompletionTime returns the nominal completion time for taskType
// on a GPU-equipped vs CPU-only node, per spec section 4.10's "Cost
// estimate" table.
func baseCompletionTime(taskType TaskType, hasGPU bool) time.Duration {
	switch taskType {
	case TaskAIInference:
		if hasGPU {
			return 100 * time.Millisecond
		}
		return time.Second
	case TaskAITraining:
		if hasGPU {
			return 10 * time.Second
		}
		return 60 * time.Second
	case TaskFederatedRound:
		return 5 * time.Second
	case TaskWASM:
		return time.Second
	case TaskZK:
		return 3 * time.Second
	case TaskDataProcessing:
		return 2 * time.Second
	case TaskRelay:
		return 500 * time.Millisecond
	default:
		return time.Second
	}
}

// EstimatedCompletion returns the node-adjusted completion time: the
// base time scaled by CPU utilisation and padded by observed latency.
func EstimatedCompletion(task TaskPayload, node NodeMetrics) time.Duration {
	base := baseCompletionTime(task.TaskType, node.Capabilities["gpu"])
	scaled := float64(base) * (1 + 0.5*node.CPUUtilisation)
	withLatency := scaled + float64(time.Duration(node.LatencyMs*float64(time.Millisecond)))
	return time.Duration(withLatency)
}

// EstimateCost returns ceil(completion_hours * cost_per_hour *
// reward_multiplier), per spec section 4.10's "Cost estimate". The
// reward multiplier defaults to 1 and scales up with task priority.
func EstimateCost(task TaskPayload, node NodeMetrics) float64 {
	completion := EstimatedCompletion(task, node)
	hours := completion.Hours()
	rewardMultiplier := 1.0 + 0.1*float64(task.Priority)
	return math.Ceil(hours * node.CostPerHour * rewardMultiplier)
}
