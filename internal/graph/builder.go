package graph

import (
	"math"
	"sort"
	"time"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Graph Builder
//
// Converts an accepted transaction sequence into an index-addressed directed
// multigraph plus per-account aggregate statistics. Node indexes follow
// first-seen order (sender before receiver within a row), which keeps index
// assignment stable for a given row ordering. Edge attributes are parallel
// arrays so the detectors can run over flat slices.
//
// The structure is rebuilt from scratch on every analysis run; nothing here
// survives across runs.

// AccountStats carries the derived per-account aggregates.
type AccountStats struct {
	Degree         int
	Counterparties int
	ActiveDays     int
	CreditCount    int
	CreditAmount   float64
	DebitCount     int
	DebitAmount    float64
	NetBalance     float64
	FirstMS        float64 // +Inf when the account has no timestamped activity
	LastMS         float64 // -Inf when the account has no timestamped activity
}

// SuppressionThresholds define the high-traffic hub predicate. An account
// meeting all three is treated as a legitimate hub (payment processor,
// exchange) and excluded from every flag surface.
type SuppressionThresholds struct {
	Degree         int
	Counterparties int
	ActiveDays     int
}

// DefaultSuppression is the production hub predicate.
var DefaultSuppression = SuppressionThresholds{
	Degree:         200,
	Counterparties: 50,
	ActiveDays:     20,
}

// Graph is the indexed multigraph over one row set.
type Graph struct {
	Nodes []string
	Index map[string]int

	// Parallel edge arrays, one entry per accepted transaction.
	SenderIdx   []int
	ReceiverIdx []int
	TimestampMS []float64 // NaN = unknown instant
	Amount      []float64

	Stats []AccountStats

	// SmallThreshold is half the median transfer amount, used by the
	// smurfing detectors to define a "small" transfer. Zero disables the
	// amount filter. Computed over all accepted edges, before suppression.
	SmallThreshold float64

	Suppression SuppressionThresholds
}

// Build constructs the graph and statistics from accepted transactions.
func Build(txs []models.Transaction) *Graph {
	g := &Graph{
		Index:       make(map[string]int),
		SenderIdx:   make([]int, 0, len(txs)),
		ReceiverIdx: make([]int, 0, len(txs)),
		TimestampMS: make([]float64, 0, len(txs)),
		Amount:      make([]float64, 0, len(txs)),
		Suppression: DefaultSuppression,
	}

	node := func(id string) int {
		if idx, ok := g.Index[id]; ok {
			return idx
		}
		idx := len(g.Nodes)
		g.Index[id] = idx
		g.Nodes = append(g.Nodes, id)
		return idx
	}

	for _, tx := range txs {
		s := node(tx.SenderID)
		r := node(tx.ReceiverID)
		g.SenderIdx = append(g.SenderIdx, s)
		g.ReceiverIdx = append(g.ReceiverIdx, r)
		g.TimestampMS = append(g.TimestampMS, tx.TimestampMS)
		g.Amount = append(g.Amount, tx.Amount)
	}

	n := len(g.Nodes)
	g.Stats = make([]AccountStats, n)
	counterparties := make([]map[int]struct{}, n)
	days := make([]map[string]struct{}, n)
	for i := range g.Stats {
		g.Stats[i].FirstMS = math.Inf(1)
		g.Stats[i].LastMS = math.Inf(-1)
		counterparties[i] = make(map[int]struct{})
		days[i] = make(map[string]struct{})
	}

	for e := range g.SenderIdx {
		s, r := g.SenderIdx[e], g.ReceiverIdx[e]
		amt, ts := g.Amount[e], g.TimestampMS[e]

		g.Stats[s].Degree++
		g.Stats[r].Degree++
		counterparties[s][r] = struct{}{}
		counterparties[r][s] = struct{}{}

		g.Stats[s].DebitCount++
		g.Stats[s].DebitAmount += amt
		g.Stats[r].CreditCount++
		g.Stats[r].CreditAmount += amt

		if !math.IsNaN(ts) {
			day := DayKey(ts)
			days[s][day] = struct{}{}
			days[r][day] = struct{}{}
			if ts < g.Stats[s].FirstMS {
				g.Stats[s].FirstMS = ts
			}
			if ts > g.Stats[s].LastMS {
				g.Stats[s].LastMS = ts
			}
			if ts < g.Stats[r].FirstMS {
				g.Stats[r].FirstMS = ts
			}
			if ts > g.Stats[r].LastMS {
				g.Stats[r].LastMS = ts
			}
		}
	}

	for i := range g.Stats {
		g.Stats[i].Counterparties = len(counterparties[i])
		g.Stats[i].ActiveDays = len(days[i])
		g.Stats[i].NetBalance = g.Stats[i].CreditAmount - g.Stats[i].DebitAmount
	}

	g.SmallThreshold = smallThreshold(g.Amount)
	return g
}

// DayKey buckets an instant into its UTC calendar day.
func DayKey(ms float64) string {
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02")
}

// Median returns the element at floor(n/2) of the ascending-sorted list
// (the upper middle on even counts, no averaging), or 0 for an empty list.
func Median(amounts []float64) float64 {
	if len(amounts) == 0 {
		return 0
	}
	sorted := make([]float64, len(amounts))
	copy(sorted, amounts)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

func smallThreshold(amounts []float64) float64 {
	m := Median(amounts)
	if m <= 0 {
		return 0
	}
	return m * 0.5
}

// IsSuppressed reports whether the account at idx is a high-traffic hub.
func (g *Graph) IsSuppressed(idx int) bool {
	if idx < 0 || idx >= len(g.Stats) {
		return false
	}
	s := g.Stats[idx]
	t := g.Suppression
	return s.Degree >= t.Degree &&
		s.Counterparties >= t.Counterparties &&
		s.ActiveDays >= t.ActiveDays
}

// IsSuppressedID is IsSuppressed keyed by account ID.
func (g *Graph) IsSuppressedID(id string) bool {
	idx, ok := g.Index[id]
	return ok && g.IsSuppressed(idx)
}

// OutAdjacency builds the outgoing adjacency lists, one per node, with
// neighbors in edge order (multi-edges preserved).
func (g *Graph) OutAdjacency() [][]int {
	adj := make([][]int, len(g.Nodes))
	for e := range g.SenderIdx {
		s := g.SenderIdx[e]
		adj[s] = append(adj[s], g.ReceiverIdx[e])
	}
	return adj
}
