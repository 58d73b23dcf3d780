package orchestrator

import "gonum.org/v1/gonum/mat"

const sentinelCost = 1e12

// infeasibleCost prices a requirement mismatch or blacklisted pairing
// strictly above sentinelCost so the solver always prefers the task's own
// "unassigned" escape column over grabbing a genuinely infeasible slot.
const infeasibleCost = 1e13

// solveRectangularAssignment runs the Hungarian (Kuhn-Munkres) algorithm
// over cost, an n-by-m matrix with n <= m, and returns the column chosen
// for each row. cost is read out of a gonum mat.Dense, which the batch
// scheduler uses to assemble the matrix (spec section 4.10's "Batch
// global scheduling" calls for a cost matrix ahead of "the rectangular
// assignment problem (Hungarian algorithm)"); the solve itself operates
// on a plain slice copy since gonum does not ship an assignment-problem
// solver.
func solveRectangularAssignment(cost *mat.Dense) []int {
	n, m := cost.Dims()
	if n == 0 || m == 0 {
		return nil
	}

	const inf = 1e18
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	p := make([]int, m+1)
	way := make([]int, m+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, m+1)
		used := make([]bool, m+1)
		for j := range minv {
			minv[j] = inf
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cur := cost.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= m; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	colOfRow := make([]int, n+1)
	for j := 1; j <= m; j++ {
		if p[j] != 0 {
			colOfRow[p[j]] = j
		}
	}
	out := make([]int, n)
	for i := 1; i <= n; i++ {
		out[i-1] = colOfRow[i] - 1
	}
	return out
}
