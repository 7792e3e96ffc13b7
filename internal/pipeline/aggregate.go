package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/rawblock/muletrace-engine/internal/graph"
	"github.com/rawblock/muletrace-engine/internal/heuristics"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Output Aggregation
//
// Folds the analytic report and the raw graph into the payload the
// presentation layer consumes: displayable nodes and per-transaction edges,
// per-account and per-directed-pair detail maps, and the run summary.
// Monetary aggregates round to 2 decimal places, scores to 1.

func aggregate(g *graph.Graph, txs []models.Transaction, report *heuristics.Report) *models.Result {
	result := &models.Result{
		Nodes:    make([]models.GraphNode, 0, len(g.Nodes)),
		Edges:    make([]models.GraphEdge, 0, len(txs)),
		Classes:  report.Classes,
		Rings:    emptyIfNil(report.CycleDisplays),
		Layered:  emptyIfNil(report.ShellDisplays),
		Smurfing: models.Smurfing{FanIn: emptyIfNil(report.FanInDisplays), FanOut: emptyIfNil(report.FanOutDisplays)},
		Counts: models.Counts{
			Rings:    len(report.CycleDisplays),
			Smurfing: len(report.FanInDisplays) + len(report.FanOutDisplays),
			Layered:  len(report.ShellDisplays),
		},
	}

	for _, id := range g.Nodes {
		result.Nodes = append(result.Nodes, models.GraphNode{ID: id, Label: id})
	}

	// One edge per accepted transaction. Repeated transaction IDs get a
	// numeric suffix so the display layer sees unique edge IDs.
	idCounts := make(map[string]int, len(txs))
	for i, tx := range txs {
		baseID := tx.ID
		if baseID == "" {
			baseID = fmt.Sprintf("edge-%d", i)
		}
		idCounts[baseID]++
		edgeID := baseID
		if c := idCounts[baseID]; c > 1 {
			edgeID = fmt.Sprintf("%s-%d", baseID, c)
		}
		edge := models.GraphEdge{
			ID:        edgeID,
			Source:    tx.SenderID,
			Target:    tx.ReceiverID,
			Timestamp: tx.RawTimestamp,
		}
		if tx.RawAmount != "" {
			edge.Label = "Amount: " + tx.RawAmount
		}
		result.Edges = append(result.Edges, edge)
	}

	suspicionByAccount := make(map[string]float64, len(report.Suspicious))
	for _, acc := range report.Suspicious {
		suspicionByAccount[acc.AccountID] = acc.SuspicionScore
	}

	nodeDetails := make(map[string]models.NodeDetail, len(g.Nodes))
	for idx, id := range g.Nodes {
		stats := g.Stats[idx]
		rings := emptyIfNil(report.CycleRingsByAccount[id])
		nodeDetails[id] = models.NodeDetail{
			Name:           id,
			SuspicionScore: suspicionByAccount[id],
			NetBalance:     round2(stats.NetBalance),
			Credits:        stats.CreditCount,
			Debits:         stats.DebitCount,
			Rings:          rings,
			Smurfs:         emptyIfNil(report.SmurfsByAccount[id]),
			Shells:         emptyIfNil(report.ShellsByAccount[id]),
			RingsCount:     len(rings),
			FirstTxn:       isoOrNil(stats.FirstMS),
			LastTxn:        isoOrNil(stats.LastMS),
		}
	}

	edgeDetails := aggregateEdges(txs)

	result.AnalysisPayload = models.AnalysisPayload{
		SuspiciousAccounts:    report.Suspicious,
		SuspicionExplanations: report.Explanations,
		NodeDetails:           nodeDetails,
		EdgeDetails:           edgeDetails,
		FraudRings:            emptyRingsIfNil(report.Rings),
		RingDisplays:          report.RingDisplays,
		Summary: models.Summary{
			TotalAccountsAnalyzed:     len(g.Nodes),
			SuspiciousAccountsFlagged: len(report.Suspicious),
			FraudRingsDetected:        len(report.Rings),
		},
	}
	if result.AnalysisPayload.SuspiciousAccounts == nil {
		result.AnalysisPayload.SuspiciousAccounts = []models.SuspiciousAccount{}
	}
	return result
}

type edgeAgg struct {
	net     float64
	count   int
	firstMS float64
	lastMS  float64
}

// aggregateEdges folds per-transaction transfers into directed-pair detail,
// keyed "sender→receiver".
func aggregateEdges(txs []models.Transaction) map[string]models.EdgeDetail {
	agg := make(map[string]*edgeAgg)
	for _, tx := range txs {
		key := tx.SenderID + "→" + tx.ReceiverID
		a, ok := agg[key]
		if !ok {
			a = &edgeAgg{firstMS: math.Inf(1), lastMS: math.Inf(-1)}
			agg[key] = a
		}
		a.net += tx.Amount
		a.count++
		if tx.HasTimestamp() {
			if tx.TimestampMS < a.firstMS {
				a.firstMS = tx.TimestampMS
			}
			if tx.TimestampMS > a.lastMS {
				a.lastMS = tx.TimestampMS
			}
		}
	}

	details := make(map[string]models.EdgeDetail, len(agg))
	for key, a := range agg {
		details[key] = models.EdgeDetail{
			Net:      round2(a.net),
			Count:    a.count,
			FirstTxn: isoOrNil(a.firstMS),
			LastTxn:  isoOrNil(a.lastMS),
		}
	}
	return details
}

// isoOrNil renders a millisecond instant as UTC ISO-8601, or nil when the
// account/pair had no timestamped activity.
func isoOrNil(ms float64) *string {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return nil
	}
	s := time.UnixMilli(int64(ms)).UTC().Format("2006-01-02T15:04:05.000Z")
	return &s
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyRingsIfNil(r []models.Ring) []models.Ring {
	if r == nil {
		return []models.Ring{}
	}
	return r
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
