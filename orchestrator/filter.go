package orchestrator

import "time"

const offlineAfter = 5 * time.Minute

// eligible reports whether node survives every candidate-filtering
// check in spec section 4.10's "Candidate filtering", given the task's
// requirements and the node's current reputation trust score.
func eligible(task TaskPayload, node NodeMetrics, trustScore float64, now time.Time) bool {
	if contains(task.Blacklist, node.PeerID) {
		return false
	}
	if len(task.Whitelist) > 0 && !contains(task.Whitelist, node.PeerID) {
		return false
	}
	if now.Sub(node.LastSeen) > offlineAfter {
		return false
	}
	if !meetsRequirements(task.Requirements, node) {
		return false
	}
	if trustScore < task.MinReputation {
		return false
	}
	if task.Requirements.RequireTPU && !node.Capabilities["tpu"] {
		return false
	}
	if task.TaskType == TaskZK && !node.HasZK {
		return false
	}
	if node.ActiveTaskCount >= node.MaxConcurrentTasks {
		return false
	}
	if task.HasMaxCost {
		if cost := EstimateCost(task, node); cost > task.MaxCostTokens {
			return false
		}
	}
	return true
}

func meetsRequirements(req Requirements, node NodeMetrics) bool {
	if req.RequireGPU && node.GPUUtilisation >= 1.0 {
		// a node fully saturated on GPU cannot take on more GPU work
		return false
	}
	if req.RequireGPU && !node.Capabilities["gpu"] {
		return false
	}
	for _, arch := range req.Architectures {
		if !node.Capabilities["arch:"+arch] {
			return false
		}
	}
	for _, rt := range req.Runtimes {
		if !node.Capabilities["runtime:"+rt] {
			return false
		}
	}
	if req.BandwidthMbps > 0 && node.BandwidthMbps < req.BandwidthMbps {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// filterCandidates returns the subset of nodes eligible for task,
// looking up each node's trust score via trustOf.
func filterCandidates(task TaskPayload, nodes []NodeMetrics, trustOf func(peerID string) float64, now time.Time) []NodeMetrics {
	out := make([]NodeMetrics, 0, len(nodes))
	for _, n := range nodes {
		if eligible(task, n, trustOf(n.PeerID), now) {
			out = append(out, n)
		}
	}
	return out
}
