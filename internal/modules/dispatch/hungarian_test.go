// README: Assignment solver tests, including optimality against an
// exhaustive permutation search on small matrices.
package dispatch

import (
	"math"
	"math/rand"
	"testing"
)

// bruteForceMin finds the cheapest row→column matching by trying every
// permutation, skipping infeasible cells. Exponential, fine for n ≤ 6.
func bruteForceMin(cost [][]float64) float64 {
	rows := len(cost)
	cols := len(cost[0])
	best := math.Inf(1)

	var recurse func(row int, used []bool, total float64, matched int)
	recurse = func(row int, used []bool, total float64, matched int) {
		if row == rows {
			// Count unmatched rows as zero contribution; feasible test
			// matrices always allow a full matching, so this only trims.
			if matched == rows && total < best {
				best = total
			}
			return
		}
		for j := 0; j < cols; j++ {
			if used[j] || cost[row][j] >= infeasibleCost {
				continue
			}
			used[j] = true
			recurse(row+1, used, total+cost[row][j], matched+1)
			used[j] = false
		}
	}
	recurse(0, make([]bool, cols), 0, 0)
	return best
}

func matchCost(cost [][]float64, match []int) float64 {
	var total float64
	for i, j := range match {
		if j >= 0 {
			total += cost[i][j]
		}
	}
	return total
}

func TestSolveAssignment_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 2; n <= 6; n++ {
		for trial := 0; trial < 25; trial++ {
			cost := make([][]float64, n)
			for i := range cost {
				cost[i] = make([]float64, n)
				for j := range cost[i] {
					cost[i][j] = float64(rng.Intn(1000)) + rng.Float64()
				}
			}

			match := solveAssignment(cost)
			got := matchCost(cost, match)
			want := bruteForceMin(cost)
			if math.Abs(got-want) > 1e-6 {
				t.Fatalf("n=%d trial=%d: solver cost %f, brute force %f", n, trial, got, want)
			}

			used := make(map[int]bool)
			for i, j := range match {
				if j < 0 {
					t.Fatalf("n=%d: row %d unmatched on a feasible matrix", n, i)
				}
				if used[j] {
					t.Fatalf("n=%d: column %d assigned twice", n, j)
				}
				used[j] = true
			}
		}
	}
}

func TestSolveAssignment_InfeasibleCellsStayUnmatched(t *testing.T) {
	inf := math.Inf(1)
	cost := [][]float64{
		{1, inf},
		{inf, inf},
	}
	match := solveAssignment(cost)
	if match[0] != 0 {
		t.Errorf("row 0 = %d, want column 0", match[0])
	}
	if match[1] != -1 {
		t.Errorf("row 1 = %d, want unmatched", match[1])
	}
}

func TestSolveAssignment_MoreRowsThanColumns(t *testing.T) {
	cost := [][]float64{
		{5},
		{1},
		{3},
	}
	match := solveAssignment(cost)
	assigned := -1
	for i, j := range match {
		if j == 0 {
			if assigned != -1 {
				t.Fatalf("column 0 assigned to rows %d and %d", assigned, i)
			}
			assigned = i
		}
	}
	if assigned != 1 {
		t.Errorf("column 0 went to row %d, want row 1 (cheapest)", assigned)
	}
}

func TestSolveAssignment_PrefersCheaperDiagonal(t *testing.T) {
	// Greedy row-by-row would take 1 then be forced into 100; the optimal
	// matching crosses over for 2+3.
	cost := [][]float64{
		{1, 3},
		{2, 100},
	}
	match := solveAssignment(cost)
	if match[0] != 1 || match[1] != 0 {
		t.Errorf("match = %v, want [1 0]", match)
	}
}

func TestSolveAssignment_Empty(t *testing.T) {
	if got := solveAssignment(nil); got != nil {
		t.Errorf("empty input should return nil, got %v", got)
	}
}
