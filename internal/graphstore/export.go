package graphstore

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Exporter mirrors completed analysis runs into the investigator graph
// database so case analysts can traverse accounts and transfers with
// openCypher tooling.
type Exporter struct {
	client Client
}

func NewExporter(client Client) *Exporter {
	return &Exporter{client: client}
}

const upsertAccountCypher = `
MERGE (a:Account {id: $id})
SET a.suspicion_score = $score,
    a.net_balance = $net,
    a.last_run = $runId
`

const upsertTransferCypher = `
MERGE (s:Account {id: $sender})
MERGE (r:Account {id: $receiver})
MERGE (s)-[t:TRANSFER]->(r)
SET t.net = $net,
    t.count = $count,
    t.last_run = $runId
`

const upsertRingCypher = `
MERGE (g:Ring {id: $ringId, run_id: $runId})
SET g.pattern = $pattern,
    g.risk_score = $risk
WITH g
UNWIND $members AS member
MERGE (a:Account {id: member})
MERGE (a)-[:MEMBER_OF]->(g)
`

// ExportRun upserts account nodes, aggregated transfer edges, and ring
// membership for one run. Failures are returned after the first failing
// statement; partial exports are acceptable since every statement is an
// idempotent MERGE.
func (e *Exporter) ExportRun(ctx context.Context, result *models.Result) error {
	payload := result.AnalysisPayload

	accountIDs := make([]string, 0, len(payload.NodeDetails))
	for id := range payload.NodeDetails {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	for _, id := range accountIDs {
		detail := payload.NodeDetails[id]
		_, err := e.client.ExecuteWrite(ctx, upsertAccountCypher, map[string]any{
			"id":    id,
			"score": detail.SuspicionScore,
			"net":   detail.NetBalance,
			"runId": result.RunID,
		})
		if err != nil {
			return err
		}
	}

	edgeKeys := make([]string, 0, len(payload.EdgeDetails))
	for key := range payload.EdgeDetails {
		edgeKeys = append(edgeKeys, key)
	}
	sort.Strings(edgeKeys)

	for _, key := range edgeKeys {
		sender, receiver, ok := splitEdgeKey(key)
		if !ok {
			continue
		}
		detail := payload.EdgeDetails[key]
		_, err := e.client.ExecuteWrite(ctx, upsertTransferCypher, map[string]any{
			"sender":   sender,
			"receiver": receiver,
			"net":      detail.Net,
			"count":    detail.Count,
			"runId":    result.RunID,
		})
		if err != nil {
			return err
		}
	}

	for _, ring := range payload.FraudRings {
		_, err := e.client.ExecuteWrite(ctx, upsertRingCypher, map[string]any{
			"ringId":  ring.RingID,
			"runId":   result.RunID,
			"pattern": ring.PatternType,
			"risk":    ring.RiskScore,
			"members": ring.MemberAccounts,
		})
		if err != nil {
			return err
		}
	}

	log.Printf("[GraphStore] Exported run %s: %d accounts, %d transfers, %d rings",
		result.RunID, len(accountIDs), len(edgeKeys), len(payload.FraudRings))
	return nil
}

// splitEdgeKey reverses the "sender→receiver" aggregation key.
func splitEdgeKey(key string) (string, string, bool) {
	parts := strings.SplitN(key, "→", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
