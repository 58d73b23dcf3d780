package orchestrator

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

type slot struct {
	peerID string
	node   NodeMetrics
}

// BatchAssign solves global assignment for every task in tasks over
// nodes with residual capacity, per spec section 4.10's "Batch global
// scheduling": an M-by-(slots+M) cost matrix, real costs are -score,
// requirement-mismatched or blacklisted pairs get infeasibleCost, and
// the trailing M columns are per-task "unassigned" escapes priced at
// sentinelCost — cheaper than infeasibleCost so a task with no feasible
// slot goes unassigned rather than stealing an infeasible one. It
// returns exactly one Assignment per task, in the same order as tasks.
func (s *Scheduler) BatchAssign(tasks []TaskPayload, nodes []NodeMetrics, now time.Time) []Assignment {
	m := len(tasks)
	if m == 0 {
		return nil
	}

	slots := make([]slot, 0)
	for _, n := range nodes {
		residual := n.MaxConcurrentTasks - n.ActiveTaskCount
		for k := 0; k < residual; k++ {
			slots = append(slots, slot{peerID: n.PeerID, node: n})
		}
	}

	cols := len(slots) + m
	cost := mat.NewDense(m, cols, nil)
	scorer := WeightedScore(s.cfg.Weights, s.cfg.PreferGreenEnergy)

	for r, task := range tasks {
		trustAt := s.trustOf
		for c, sl := range slots {
			if !eligible(task, sl.node, trustAt(sl.peerID), now) {
				cost.Set(r, c, infeasibleCost)
				continue
			}
			sc := scorer(task, sl.node, trustAt(sl.peerID))
			if sc == negInf {
				cost.Set(r, c, infeasibleCost)
				continue
			}
			cost.Set(r, c, -sc)
		}
		for c := 0; c < m; c++ {
			if c == r {
				cost.Set(r, len(slots)+c, sentinelCost)
			} else {
				cost.Set(r, len(slots)+c, infeasibleCost)
			}
		}
	}

	colOfRow := solveRectangularAssignment(cost)

	out := make([]Assignment, m)
	for r, task := range tasks {
		col := colOfRow[r]
		if col < 0 || col >= len(slots) {
			if s.metrics != nil {
				s.metrics.FailedAssignments.Inc()
			}
			out[r] = Assignment{
				TaskID:   task.TaskID,
				Assigned: false,
				Reason:   "No feasible assignment after global optimization",
			}
			continue
		}
		chosen := slots[col].node
		a := s.assignmentFor(task, chosen, nil)
		a.AssignmentID = fmt.Sprintf("%s-batch", task.TaskID)
		out[r] = a
	}
	return out
}
