package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Alert & Webhook System
//
// Structured alert emission for fraud operations teams. Alerts are:
//   1. Broadcast via WebSocket to connected dashboards
//   2. Pushed to registered webhook endpoints (Slack, Discord, SIEM)
//   3. Stored in memory for recent alert history
//
// Webhook payloads follow a common JSON format compatible with
// Slack incoming webhooks, Discord webhooks, and PagerDuty Events API.

// Alert represents a structured fraud alert
type Alert struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Severity    string       `json:"severity"`  // info/low/medium/high/critical
	AlertType   string       `json:"alertType"` // ring_detected/high_risk_account
	Title       string       `json:"title"`
	Description string       `json:"description"`
	RunID       string       `json:"runId,omitempty"`
	Ring        *models.Ring `json:"ring,omitempty"`
}

// WebhookEndpoint is a registered webhook receiver
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity string            `json:"minSeverity"` // Only send alerts >= this severity
}

// Manager handles alert emission and webhook delivery
type Manager struct {
	mu            sync.RWMutex
	webhooks      []WebhookEndpoint
	recentAlerts  []Alert
	seenRings     map[string]bool
	maxHistory    int
	riskThreshold float64
	httpClient    *http.Client
	alertCallback func(Alert) // WebSocket broadcast callback
}

// NewManager creates a new alert system. Rings scoring at or above
// riskThreshold trigger alerts; each distinct ring membership alerts once
// per process lifetime.
func NewManager(riskThreshold float64, broadcastFn func(Alert)) *Manager {
	return &Manager{
		webhooks:      make([]WebhookEndpoint, 0),
		recentAlerts:  make([]Alert, 0),
		seenRings:     make(map[string]bool),
		maxHistory:    1000,
		riskThreshold: riskThreshold,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		alertCallback: broadcastFn,
	}
}

// RegisterWebhook adds a webhook endpoint
func (m *Manager) RegisterWebhook(name, url, minSeverity string, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.webhooks = append(m.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})

	log.Printf("[Alert] Registered webhook: %s (min: %s)", name, minSeverity)
}

// RemoveWebhook removes a webhook by name
func (m *Manager) RemoveWebhook(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, wh := range m.webhooks {
		if wh.Name == name {
			m.webhooks = append(m.webhooks[:i], m.webhooks[i+1:]...)
			return
		}
	}
}

// EmitFromResult inspects a completed run and emits one alert per
// newly seen high-risk ring. Ring identity is the pattern plus its sorted
// membership, not the per-run RING_NNN label, so streaming recomputes do
// not re-alert on the same ring.
func (m *Manager) EmitFromResult(result *models.Result) {
	for i := range result.AnalysisPayload.FraudRings {
		ring := result.AnalysisPayload.FraudRings[i]
		if ring.RiskScore < m.riskThreshold {
			continue
		}

		key := ring.PatternType + ":" + strings.Join(ring.MemberAccounts, "|")
		m.mu.Lock()
		seen := m.seenRings[key]
		m.seenRings[key] = true
		m.mu.Unlock()
		if seen {
			continue
		}

		m.EmitAlert(Alert{
			Severity:  severityForScore(ring.RiskScore),
			AlertType: "ring_detected",
			Title:     fmt.Sprintf("Fraud ring detected: %s (%s)", ring.RingID, ring.PatternType),
			Description: fmt.Sprintf("%d accounts, risk score %.0f: %s",
				len(ring.MemberAccounts), ring.RiskScore, strings.Join(ring.MemberAccounts, ", ")),
			RunID: result.RunID,
			Ring:  &ring,
		})
	}
}

// EmitAlert processes and distributes an alert
func (m *Manager) EmitAlert(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	// Store in history
	m.mu.Lock()
	m.recentAlerts = append(m.recentAlerts, alert)
	if len(m.recentAlerts) > m.maxHistory {
		m.recentAlerts = m.recentAlerts[len(m.recentAlerts)-m.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(m.webhooks))
	copy(webhooks, m.webhooks)
	m.mu.Unlock()

	// Broadcast via WebSocket callback
	if m.alertCallback != nil {
		m.alertCallback(alert)
	}

	// Send to webhooks (async, non-blocking)
	for _, wh := range webhooks {
		if !wh.Enabled {
			continue
		}
		if !severityMeetsThreshold(alert.Severity, wh.MinSeverity) {
			continue
		}
		go m.sendWebhook(wh, alert)
	}

	log.Printf("[Alert] [%s] %s: %s", alert.Severity, alert.AlertType, alert.Title)
}

// GetRecentAlerts returns the most recent alerts, newest first
func (m *Manager) GetRecentAlerts(limit int) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.recentAlerts) {
		limit = len(m.recentAlerts)
	}

	start := len(m.recentAlerts) - limit
	result := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = m.recentAlerts[start+limit-1-i]
	}
	return result
}

// sendWebhook delivers an alert to a webhook endpoint
func (m *Manager) sendWebhook(wh WebhookEndpoint, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal alert: %v", err)
		return
	}

	req, err := http.NewRequest("POST", wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[Webhook] Failed to create request for %s: %v", wh.Name, err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Printf("[Webhook] Failed to send to %s: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Webhook] %s returned status %d", wh.Name, resp.StatusCode)
	}
}

// severityForScore maps a ring risk score to an alert severity band.
func severityForScore(score float64) string {
	switch {
	case score >= 95:
		return "critical"
	case score >= 85:
		return "high"
	default:
		return "medium"
	}
}

// severityMeetsThreshold checks if a severity level meets the minimum
func severityMeetsThreshold(severity, minimum string) bool {
	levels := map[string]int{
		"info": 0, "low": 1, "medium": 2, "high": 3, "critical": 4,
	}
	return levels[severity] >= levels[minimum]
}
