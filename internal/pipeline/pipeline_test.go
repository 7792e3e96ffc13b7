package pipeline

import (
	"reflect"
	"testing"

	"github.com/rawblock/muletrace-engine/internal/heuristics"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

const cycleCSV = "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
	"t1,A,B,100.456,2026-01-01T10:00:00\n" +
	"t2,B,C,100,2026-01-01T11:00:00\n" +
	"t3,C,A,100,2026-01-01T12:00:00\n"

func mustPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(heuristics.DefaultCaps())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestPipeline_CycleEndToEnd(t *testing.T) {
	p := mustPipeline(t)

	rows, err := p.ParseDocument(cycleCSV)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	result, err := p.Run(rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.RunID == "" {
		t.Errorf("RunID must be assigned")
	}
	if len(result.Nodes) != 3 || len(result.Edges) != 3 {
		t.Errorf("nodes/edges = %d/%d, want 3/3", len(result.Nodes), len(result.Edges))
	}
	if result.Counts.Rings != 1 || result.Counts.Smurfing != 0 || result.Counts.Layered != 0 {
		t.Errorf("counts = %+v, want one cycle only", result.Counts)
	}

	payload := result.AnalysisPayload
	if len(payload.FraudRings) != 1 {
		t.Fatalf("expected 1 fraud ring, got %d", len(payload.FraudRings))
	}
	ring := payload.FraudRings[0]
	if ring.RingID != "RING_001" || !reflect.DeepEqual(ring.MemberAccounts, []string{"A", "B", "C"}) {
		t.Errorf("ring = %+v", ring)
	}
	// base 90 + 2*3 members
	if ring.RiskScore != 96 {
		t.Errorf("ring risk = %v, want 96", ring.RiskScore)
	}

	detail, ok := payload.NodeDetails["A"]
	if !ok {
		t.Fatalf("node detail for A missing")
	}
	if detail.SuspicionScore != 40 {
		t.Errorf("A suspicion = %v, want 40", detail.SuspicionScore)
	}
	// Credits 100, debits 100.456, rounded to 2 places.
	if detail.NetBalance != -0.46 {
		t.Errorf("A net balance = %v, want -0.46", detail.NetBalance)
	}
	if !reflect.DeepEqual(detail.Rings, []string{"RING_001"}) || detail.RingsCount != 1 {
		t.Errorf("A ring membership = %v (%d)", detail.Rings, detail.RingsCount)
	}
	if detail.FirstTxn == nil || *detail.FirstTxn != "2026-01-01T10:00:00.000Z" {
		t.Errorf("A first txn = %v", detail.FirstTxn)
	}
	if detail.LastTxn == nil || *detail.LastTxn != "2026-01-01T12:00:00.000Z" {
		t.Errorf("A last txn = %v", detail.LastTxn)
	}

	edge, ok := payload.EdgeDetails["A→B"]
	if !ok {
		t.Fatalf("edge detail A→B missing, have %v", payload.EdgeDetails)
	}
	if edge.Count != 1 || edge.Net != 100.46 {
		t.Errorf("A→B detail = %+v", edge)
	}

	summary := payload.Summary
	if summary.TotalAccountsAnalyzed != 3 || summary.SuspiciousAccountsFlagged != 3 || summary.FraudRingsDetected != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestPipeline_DuplicateTransactionIDsSuffixed(t *testing.T) {
	p := mustPipeline(t)

	rows := []models.Row{
		{TransactionID: "t1", SenderID: "A", ReceiverID: "B", Amount: "10"},
		{TransactionID: "t1", SenderID: "A", ReceiverID: "B", Amount: "20"},
		{TransactionID: "t1", SenderID: "B", ReceiverID: "A", Amount: "5"},
		{SenderID: "A", ReceiverID: "C", Amount: "1"},
	}
	result, err := p.Run(rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ids := make([]string, len(result.Edges))
	for i, e := range result.Edges {
		ids[i] = e.ID
	}
	if !reflect.DeepEqual(ids, []string{"t1", "t1-2", "t1-3", "edge-3"}) {
		t.Errorf("edge IDs = %v", ids)
	}

	// Directed pairs aggregate separately per direction.
	ab := result.AnalysisPayload.EdgeDetails["A→B"]
	if ab.Count != 2 || ab.Net != 30 {
		t.Errorf("A→B = %+v, want count 2 net 30", ab)
	}
	ba := result.AnalysisPayload.EdgeDetails["B→A"]
	if ba.Count != 1 || ba.Net != 5 {
		t.Errorf("B→A = %+v, want count 1 net 5", ba)
	}
}

func TestPipeline_EmptyInput(t *testing.T) {
	p := mustPipeline(t)

	result, err := p.Run(nil)
	if err != nil {
		t.Fatalf("Run on empty input failed: %v", err)
	}
	if len(result.Nodes) != 0 || len(result.Edges) != 0 {
		t.Errorf("empty input should produce an empty graph")
	}
	// Payload collections must be present, not null, for JSON consumers.
	if result.AnalysisPayload.SuspiciousAccounts == nil ||
		result.AnalysisPayload.FraudRings == nil ||
		result.Rings == nil || result.Layered == nil ||
		result.Smurfing.FanIn == nil || result.Smurfing.FanOut == nil {
		t.Errorf("empty collections must be non-nil")
	}
}

func TestPipeline_RerunIsDeterministic(t *testing.T) {
	p := mustPipeline(t)

	rows, err := p.ParseDocument(cycleCSV)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}

	r1, err := p.Run(rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r2, err := p.Run(rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Everything except the fresh run ID and wall-clock timing matches.
	if !reflect.DeepEqual(r1.AnalysisPayload.FraudRings, r2.AnalysisPayload.FraudRings) {
		t.Errorf("fraud rings differ across reruns")
	}
	if !reflect.DeepEqual(r1.AnalysisPayload.SuspiciousAccounts, r2.AnalysisPayload.SuspiciousAccounts) {
		t.Errorf("suspicious accounts differ across reruns")
	}
	if !reflect.DeepEqual(r1.AnalysisPayload.SuspicionExplanations, r2.AnalysisPayload.SuspicionExplanations) {
		t.Errorf("explanations differ across reruns")
	}
	if r1.RunID == r2.RunID {
		t.Errorf("each run must get a fresh run ID")
	}
}
