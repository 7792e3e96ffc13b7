package graphstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

func sampleResult() *models.Result {
	return &models.Result{
		RunID: "run-1",
		AnalysisPayload: models.AnalysisPayload{
			NodeDetails: map[string]models.NodeDetail{
				"A": {Name: "A", SuspicionScore: 40, NetBalance: -10},
				"B": {Name: "B", SuspicionScore: 0, NetBalance: 10},
			},
			EdgeDetails: map[string]models.EdgeDetail{
				"A→B": {Net: 10, Count: 2},
			},
			FraudRings: []models.Ring{
				{RingID: "RING_001", PatternType: models.PatternCycle, MemberAccounts: []string{"A", "B"}, RiskScore: 94},
			},
		},
	}
}

func TestExportRun_UpsertsAccountsEdgesAndRings(t *testing.T) {
	client := NewMemoryClient()
	exporter := NewExporter(client)

	if err := exporter.ExportRun(context.Background(), sampleResult()); err != nil {
		t.Fatalf("ExportRun failed: %v", err)
	}

	calls := client.WriteCalls()
	// 2 accounts + 1 transfer + 1 ring
	if len(calls) != 4 {
		t.Fatalf("expected 4 write statements, got %d", len(calls))
	}

	// Accounts export in sorted ID order for reproducible statement streams.
	if calls[0].Params["id"] != "A" || calls[1].Params["id"] != "B" {
		t.Errorf("account order = %v, %v", calls[0].Params["id"], calls[1].Params["id"])
	}
	if calls[0].Params["score"] != 40.0 || calls[0].Params["runId"] != "run-1" {
		t.Errorf("account params = %v", calls[0].Params)
	}

	transfer := calls[2]
	if !strings.Contains(transfer.Query, "TRANSFER") {
		t.Errorf("third statement should upsert the transfer edge: %s", transfer.Query)
	}
	if transfer.Params["sender"] != "A" || transfer.Params["receiver"] != "B" {
		t.Errorf("transfer params = %v", transfer.Params)
	}
	if transfer.Params["net"] != 10.0 || transfer.Params["count"] != 2 {
		t.Errorf("transfer aggregates = %v", transfer.Params)
	}

	ring := calls[3]
	if !strings.Contains(ring.Query, "MEMBER_OF") {
		t.Errorf("fourth statement should link ring membership: %s", ring.Query)
	}
	if ring.Params["ringId"] != "RING_001" || ring.Params["risk"] != 94.0 {
		t.Errorf("ring params = %v", ring.Params)
	}
}

func TestExportRun_PropagatesWriteErrors(t *testing.T) {
	wantErr := errors.New("bolt connection lost")
	client := NewMemoryClient().WithError(wantErr)
	exporter := NewExporter(client)

	if err := exporter.ExportRun(context.Background(), sampleResult()); !errors.Is(err, wantErr) {
		t.Errorf("expected write error to surface, got %v", err)
	}
}

func TestSplitEdgeKey(t *testing.T) {
	sender, receiver, ok := splitEdgeKey("ACC1→ACC2")
	if !ok || sender != "ACC1" || receiver != "ACC2" {
		t.Errorf("splitEdgeKey = %q, %q, %v", sender, receiver, ok)
	}
	if _, _, ok := splitEdgeKey("no-arrow"); ok {
		t.Errorf("malformed key should not split")
	}
}
