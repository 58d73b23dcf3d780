package orchestrator

import (
	"fmt"
	"sort"
	"time"
)

// DispatchParallel selects n workers for task. It ranks the filtered
// candidates by weighted score and picks greedily, taking at most
// max(1, n/4) workers from any one region. If that cap leaves fewer
// than n picked, the remaining slots are filled from the ranked list
// regardless of region. If fewer than n candidates pass filtering, it
// returns a single failed assignment with a descriptive reason.
func (s *Scheduler) DispatchParallel(task TaskPayload, nodes []NodeMetrics, n int, now time.Time) []Assignment {
	candidates := filterCandidates(task, nodes, s.trustOf, now)
	if len(candidates) < n {
		if s.metrics != nil {
			s.metrics.FailedAssignments.Inc()
		}
		return []Assignment{{
			TaskID:   task.TaskID,
			Assigned: false,
			Reason:   fmt.Sprintf("only %d eligible candidates, need %d for parallel dispatch", len(candidates), n),
		}}
	}

	scorer := WeightedScore(s.cfg.Weights, s.cfg.PreferGreenEnergy)
	ranked := append([]NodeMetrics(nil), candidates...)
	scoreOf := make(map[string]float64, len(ranked))
	for _, c := range ranked {
		scoreOf[c.PeerID] = scorer(task, c, s.trustOf(c.PeerID))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if scoreOf[ranked[i].PeerID] != scoreOf[ranked[j].PeerID] {
			return scoreOf[ranked[i].PeerID] > scoreOf[ranked[j].PeerID]
		}
		return ranked[i].PeerID < ranked[j].PeerID
	})

	maxPerRegion := n / 4
	if maxPerRegion < 1 {
		maxPerRegion = 1
	}

	selected := make([]NodeMetrics, 0, n)
	regionCount := make(map[string]int)
	for _, c := range ranked {
		if len(selected) == n {
			break
		}
		if regionCount[c.Region] >= maxPerRegion {
			continue
		}
		selected = append(selected, c)
		regionCount[c.Region]++
	}
	// Backfill past the diversity cap only if diversity alone left us
	// short of n: a failed dispatch is worse than a diversity breach.
	if len(selected) < n {
		taken := make(map[string]bool, len(selected))
		for _, c := range selected {
			taken[c.PeerID] = true
		}
		for _, c := range ranked {
			if len(selected) == n {
				break
			}
			if taken[c.PeerID] {
				continue
			}
			selected = append(selected, c)
			taken[c.PeerID] = true
		}
	}

	out := make([]Assignment, len(selected))
	for i, c := range selected {
		a := s.assignmentFor(task, c, nil)
		a.AssignmentID = fmt.Sprintf("%s-parallel-%d", task.TaskID, i)
		out[i] = a
	}
	return out
}
