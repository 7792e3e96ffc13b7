package heuristics

import (
	"github.com/rawblock/muletrace-engine/internal/graph"
)

// Layered Shell-Chain Detection
//
// Layering passes funds through a sequence of low-activity pass-through
// accounts to obscure their origin. A shell account here is one whose total
// degree sits in a narrow band (default 2-3): enough traffic to forward
// funds, too little to be a real business.
//
// The detector enumerates simple directed paths of at least 4 nodes
// (3 hops) where every intermediate is a shell account and both endpoints
// are not: the endpoints are the source and destination the layers are
// hiding. Search bounds mirror cycle detection: per-start path budget plus
// a neighbor fan cap. Duplicate node sequences are reported once.

// DetectShellChains returns full path node-index sequences, endpoints
// included, deduplicated by exact sequence.
func DetectShellChains(g *graph.Graph, caps Caps) [][]int {
	adj := g.OutAdjacency()
	n := len(g.Nodes)

	isShell := func(idx int) bool {
		d := g.Stats[idx].Degree
		return d >= caps.ShellMinDeg && d <= caps.ShellMaxDeg
	}

	var results [][]int
	seen := make(map[string]struct{})

	visited := make([]bool, n)
	path := make([]int, 0, caps.ChainMaxDepth+1)

	var pathCount int
	var dfs func(current int)
	dfs = func(current int) {
		if len(path)-1 >= caps.ChainMaxDepth || pathCount > caps.ChainMaxPaths {
			return
		}
		neighbors := adj[current]
		limit := len(neighbors)
		if limit > caps.MaxNeighbors {
			limit = caps.MaxNeighbors
		}
		for i := 0; i < limit; i++ {
			next := neighbors[i]
			if visited[next] {
				continue
			}
			pathCount++
			visited[next] = true
			path = append(path, next)

			if len(path) >= 4 && !isShell(path[0]) && !isShell(path[len(path)-1]) {
				layered := true
				for _, mid := range path[1 : len(path)-1] {
					if !isShell(mid) {
						layered = false
						break
					}
				}
				if layered {
					key := cycleKey(path)
					if _, dup := seen[key]; !dup {
						seen[key] = struct{}{}
						chain := make([]int, len(path))
						copy(chain, path)
						results = append(results, chain)
					}
				}
			}

			dfs(next)
			path = path[:len(path)-1]
			visited[next] = false
		}
	}

	for start := 0; start < n; start++ {
		pathCount = 0
		visited[start] = true
		path = append(path[:0], start)
		dfs(start)
		visited[start] = false
	}
	return results
}
