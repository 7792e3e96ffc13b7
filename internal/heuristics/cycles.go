package heuristics

import (
	"strconv"
	"strings"

	"github.com/rawblock/muletrace-engine/internal/graph"
)

// Cycle Detection
//
// Enumerates simple directed cycles of bounded length. Circular fund flows
// (A pays B pays C pays A) are the classic mule-ring signature: money leaves
// an account and returns to it through a short chain of intermediaries.
//
// The search is a capped DFS from every node. Each start node has a budget
// of completed path expansions; each node contributes at most MaxNeighbors
// outgoing edges. Cycles are canonicalized by minimal rotation so the same
// loop discovered from different starts is reported once.

// DetectCycles returns the canonical node-index sequences of every simple
// cycle with length in [CycleMinLen, CycleMaxLen], subject to the caps.
func DetectCycles(g *graph.Graph, caps Caps) [][]int {
	adj := g.OutAdjacency()
	n := len(g.Nodes)

	var results [][]int
	seen := make(map[string]struct{})

	visited := make([]bool, n)
	path := make([]int, 0, caps.CycleMaxLen)

	var pathCount int
	var dfs func(start, current, depth int)
	dfs = func(start, current, depth int) {
		if depth > caps.CycleMaxLen || pathCount > caps.CycleMaxPaths {
			return
		}
		neighbors := adj[current]
		limit := len(neighbors)
		if limit > caps.MaxNeighbors {
			limit = caps.MaxNeighbors
		}
		for i := 0; i < limit; i++ {
			next := neighbors[i]
			if next == start && depth >= caps.CycleMinLen {
				canon := minimalRotation(path)
				key := cycleKey(canon)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					results = append(results, canon)
				}
				continue
			}
			if visited[next] || depth+1 > caps.CycleMaxLen {
				continue
			}
			pathCount++
			visited[next] = true
			path = append(path, next)
			dfs(start, next, depth+1)
			path = path[:len(path)-1]
			visited[next] = false
		}
	}

	for start := 0; start < n; start++ {
		pathCount = 0
		visited[start] = true
		path = append(path[:0], start)
		dfs(start, start, 1)
		visited[start] = false
	}
	return results
}

// minimalRotation returns the lexicographically smallest rotation of the
// cycle's node sequence, which is its canonical form.
func minimalRotation(cycle []int) []int {
	best := make([]int, len(cycle))
	copy(best, cycle)
	rotated := make([]int, len(cycle))
	for r := 1; r < len(cycle); r++ {
		copy(rotated, cycle[r:])
		copy(rotated[len(cycle)-r:], cycle[:r])
		if lessIntSeq(rotated, best) {
			copy(best, rotated)
		}
	}
	return best
}

func lessIntSeq(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func cycleKey(seq []int) string {
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "|")
}
