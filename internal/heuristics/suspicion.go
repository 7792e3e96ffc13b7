package heuristics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Suspicion Scoring
//
// Per-account scores composite the distinct pattern families an account
// participates in, plus a bonus for spanning several families. The score is
// a pure function of ring membership, so it inherits ring determinism, and
// every score comes with a literal arithmetic explanation an analyst can
// quote in a case file.

// Per-pattern suspicion bases and the cross-pattern bonus.
const (
	suspicionBaseCycle      = 40
	suspicionBaseShellChain = 35
	suspicionBaseFan        = 25
	crossPatternBonus       = 5
)

// patternLabel maps a pattern family to its human-readable detection label.
func patternLabel(pattern string) string {
	switch pattern {
	case models.PatternCycle:
		return "cycle_length_3_5"
	case models.PatternFanIn:
		return "fan_in_10_plus_72h"
	case models.PatternFanOut:
		return "fan_out_10_plus_72h"
	case models.PatternShellChain:
		return "layered_shell_3_hops"
	}
	return pattern
}

func patternBase(pattern string) int {
	switch pattern {
	case models.PatternCycle:
		return suspicionBaseCycle
	case models.PatternShellChain:
		return suspicionBaseShellChain
	case models.PatternFanIn, models.PatternFanOut:
		return suspicionBaseFan
	}
	return 0
}

type accountRing struct {
	ringID string
	risk   float64
}

// scoreAccounts derives the suspicious-account list and explanation strings
// from assembled rings. Accounts are ordered by score descending, then by
// account ID, so ties are stable across reruns.
func scoreAccounts(rings []models.Ring) ([]models.SuspiciousAccount, map[string]string) {
	patterns := make(map[string]map[string]struct{})
	best := make(map[string]accountRing)

	for _, ring := range rings {
		for _, acc := range ring.MemberAccounts {
			if patterns[acc] == nil {
				patterns[acc] = make(map[string]struct{})
			}
			patterns[acc][ring.PatternType] = struct{}{}
			if cur, ok := best[acc]; !ok || ring.RiskScore > cur.risk {
				best[acc] = accountRing{ringID: ring.RingID, risk: ring.RiskScore}
			}
		}
	}

	explanations := make(map[string]string, len(patterns))
	accounts := make([]models.SuspiciousAccount, 0, len(patterns))
	for acc, pats := range patterns {
		base := 0
		labels := make([]string, 0, len(pats))
		for p := range pats {
			base += patternBase(p)
			labels = append(labels, patternLabel(p))
		}
		sort.Strings(labels)

		bonus := 0
		if len(pats) > 1 {
			bonus = crossPatternBonus * (len(pats) - 1)
		}
		total := math.Min(100, float64(base+bonus))

		ringID := "RING_000"
		if b, ok := best[acc]; ok {
			ringID = b.ringID
		}

		detected := strings.Join(labels, ", ")
		if detected == "" {
			detected = "none"
		}
		explanations[acc] = strings.Join([]string{
			fmt.Sprintf("Account: %s", acc),
			fmt.Sprintf("Detected patterns: %s", detected),
			fmt.Sprintf("Ring ID: %s", ringID),
			fmt.Sprintf("Score formula: base(%d) + bonus(%d) = %d", base, bonus, int(total)),
		}, "\n")

		accounts = append(accounts, models.SuspiciousAccount{
			AccountID:        acc,
			SuspicionScore:   round1(total),
			DetectedPatterns: labels,
			RingID:           ringID,
		})
	}

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].SuspicionScore != accounts[j].SuspicionScore {
			return accounts[i].SuspicionScore > accounts[j].SuspicionScore
		}
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts, explanations
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
