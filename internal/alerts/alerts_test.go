package alerts

import (
	"testing"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

func resultWithRings(rings ...models.Ring) *models.Result {
	return &models.Result{
		RunID:           "run-1",
		AnalysisPayload: models.AnalysisPayload{FraudRings: rings},
	}
}

func TestEmitFromResult_HighRiskRingAlertsOnce(t *testing.T) {
	var received []Alert
	m := NewManager(85, func(a Alert) { received = append(received, a) })

	ring := models.Ring{
		RingID: "RING_001", PatternType: models.PatternCycle,
		MemberAccounts: []string{"A", "B", "C"}, RiskScore: 96,
	}
	m.EmitFromResult(resultWithRings(ring))
	if len(received) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(received))
	}
	if received[0].AlertType != "ring_detected" || received[0].Severity != "critical" {
		t.Errorf("alert = %+v", received[0])
	}

	// A streaming recompute renumbers the same membership; no re-alert.
	ring.RingID = "RING_002"
	m.EmitFromResult(resultWithRings(ring))
	if len(received) != 1 {
		t.Errorf("same ring membership must not alert twice, got %d", len(received))
	}

	// A genuinely new membership alerts.
	m.EmitFromResult(resultWithRings(models.Ring{
		RingID: "RING_003", PatternType: models.PatternShellChain,
		MemberAccounts: []string{"X", "Y"}, RiskScore: 89,
	}))
	if len(received) != 2 {
		t.Errorf("new ring should alert, got %d alerts", len(received))
	}
	if received[1].Severity != "high" {
		t.Errorf("score 89 should map to high, got %s", received[1].Severity)
	}
}

func TestEmitFromResult_BelowThresholdIgnored(t *testing.T) {
	var received []Alert
	m := NewManager(85, func(a Alert) { received = append(received, a) })

	m.EmitFromResult(resultWithRings(models.Ring{
		RingID: "RING_001", PatternType: models.PatternFanIn,
		MemberAccounts: []string{"H", "P1"}, RiskScore: 74,
	}))
	if len(received) != 0 {
		t.Errorf("ring below the risk threshold must not alert, got %v", received)
	}
}

func TestGetRecentAlerts_NewestFirst(t *testing.T) {
	m := NewManager(85, nil)
	m.EmitAlert(Alert{Severity: "high", AlertType: "ring_detected", Title: "first"})
	m.EmitAlert(Alert{Severity: "high", AlertType: "ring_detected", Title: "second"})

	recent := m.GetRecentAlerts(10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(recent))
	}
	if recent[0].Title != "second" || recent[1].Title != "first" {
		t.Errorf("alerts should be newest first: %v", recent)
	}
	if recent[0].ID == "" || recent[0].Timestamp.IsZero() {
		t.Errorf("emitted alerts must get an ID and timestamp")
	}
}

func TestSeverityThresholds(t *testing.T) {
	if !severityMeetsThreshold("critical", "high") {
		t.Errorf("critical should meet a high minimum")
	}
	if severityMeetsThreshold("medium", "high") {
		t.Errorf("medium should not meet a high minimum")
	}
	if severityForScore(96) != "critical" || severityForScore(90) != "high" || severityForScore(80) != "medium" {
		t.Errorf("severity bands wrong: %s/%s/%s",
			severityForScore(96), severityForScore(90), severityForScore(80))
	}
}
