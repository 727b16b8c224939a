// README: Minimum-cost bipartite assignment (Hungarian method, potentials
// formulation) over the driver×rider cost matrix.
package dispatch

import "math"

// infeasibleCost is the finite stand-in for +Inf cells and square padding.
// Kept far below MaxFloat64 so potential arithmetic stays exact.
const infeasibleCost = 1e12

// solveAssignment finds the minimum-cost perfect matching of the rectangular
// cost matrix after padding it square. It returns, for each row, the matched
// column, or -1 when the row lands on padding or on an infeasible cell —
// those are non-assignments, not errors.
func solveAssignment(cost [][]float64) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])
	n := rows
	if cols > n {
		n = cols
	}

	// Square matrix with clamped costs; padding cells are infeasible filler.
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			c := infeasibleCost
			if i < rows && j < cols {
				c = cost[i][j]
				if math.IsInf(c, 1) || c > infeasibleCost {
					c = infeasibleCost
				}
			}
			m[i][j] = c
		}
	}

	// Shortest-augmenting-path Hungarian with row/column potentials u, v.
	// p[j] is the row matched to column j; index 0 is the virtual source.
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := m[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
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

	match := make([]int, rows)
	for i := range match {
		match[i] = -1
	}
	for j := 1; j <= n; j++ {
		i := p[j] - 1
		if i < 0 || i >= rows || j-1 >= cols {
			continue
		}
		// A realized infeasible cost means "leave unmatched".
		if cost[i][j-1] >= infeasibleCost || math.IsInf(cost[i][j-1], 1) {
			continue
		}
		match[i] = j - 1
	}
	return match
}
