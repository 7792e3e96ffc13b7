package models

// Pattern families surfaced by the detectors.
const (
	PatternCycle      = "cycle"
	PatternFanIn      = "fan_in"
	PatternFanOut     = "fan_out"
	PatternShellChain = "shell_chain"
)

// Ring is a canonical, deduplicated instance of a detected pattern.
// Identity is (PatternType, sorted member set); RingID assignment is
// deterministic across reruns on identical input.
type Ring struct {
	RingID         string   `json:"ring_id"`
	MemberAccounts []string `json:"member_accounts"`
	PatternType    string   `json:"pattern_type"`
	RiskScore      float64  `json:"risk_score"`
}

// SuspiciousAccount is a flagged account with its composite suspicion score.
type SuspiciousAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   float64  `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	RingID           string   `json:"ring_id"`
}

// NodeDetail is the per-account summary consumed by the presentation layer.
type NodeDetail struct {
	Name           string   `json:"name"`
	SuspicionScore float64  `json:"suspicion_score"`
	NetBalance     float64  `json:"net_balance"`
	Credits        int      `json:"credits"`
	Debits         int      `json:"debits"`
	Rings          []string `json:"rings"`
	Smurfs         []string `json:"smurfs"`
	Shells         []string `json:"shells"`
	RingsCount     int      `json:"rings_count"`
	FirstTxn       *string  `json:"first_txn"`
	LastTxn        *string  `json:"last_txn"`
}

// EdgeDetail aggregates all transfers over one directed (sender, receiver) pair.
type EdgeDetail struct {
	Net      float64 `json:"net"`
	Count    int     `json:"count"`
	FirstTxn *string `json:"first_txn"`
	LastTxn  *string `json:"last_txn"`
}

// Summary holds the run-level counters.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// AnalysisPayload is the full structured result of one pipeline run.
type AnalysisPayload struct {
	SuspiciousAccounts     []SuspiciousAccount   `json:"suspicious_accounts"`
	SuspicionExplanations  map[string]string     `json:"suspicion_explanations"`
	NodeDetails            map[string]NodeDetail `json:"node_details"`
	EdgeDetails            map[string]EdgeDetail `json:"edge_details"`
	FraudRings             []Ring                `json:"fraud_rings"`
	RingDisplays           map[string]string     `json:"ring_displays"`
	Summary                Summary               `json:"summary"`
}

// GraphNode is a displayable account node.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// GraphEdge is one accepted transaction, rendered individually. IDs are
// disambiguated with a numeric suffix when a transaction ID repeats.
type GraphEdge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Label     string `json:"label,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Classes lists flagged node IDs per detector, with suppressed accounts removed.
type Classes struct {
	Cycle  []string `json:"cycle"`
	FanIn  []string `json:"fanIn"`
	FanOut []string `json:"fanOut"`
	Stage1 []string `json:"stage1"`
	Stage2 []string `json:"stage2"`
	Stage3 []string `json:"stage3"`
}

// Smurfing holds the human-readable fan-in/fan-out detection strings.
type Smurfing struct {
	FanIn  []string `json:"fanIn"`
	FanOut []string `json:"fanOut"`
}

// Counts summarizes raw detection totals for the dashboard header.
type Counts struct {
	Rings    int `json:"rings"`
	Smurfing int `json:"smurfing"`
	Layered  int `json:"layered"`
}

// Result is the complete engine output payload for one analysis run.
type Result struct {
	RunID           string          `json:"runId"`
	Nodes           []GraphNode     `json:"nodes"`
	Edges           []GraphEdge     `json:"edges"`
	Classes         Classes         `json:"classes"`
	Rings           []string        `json:"rings"`
	Smurfing        Smurfing        `json:"smurfing"`
	Layered         []string        `json:"layered"`
	Counts          Counts          `json:"counts"`
	AnalysisMS      float64         `json:"analysisMs"`
	AnalysisPayload AnalysisPayload `json:"analysisPayload"`
}
