package heuristics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Ring Assembly
//
// Raw detector output is noisy: the same loop can surface from several start
// nodes, a fan hub can be rediscovered on every flush, and map iteration
// order is not stable. Assembly canonicalizes every detection into a
// (pattern, sorted member set) candidate, merges duplicates (first
// occurrence keeps its display text), and only then assigns RING_001,
// RING_002, ... in a deterministic order: pattern name first, canonical key
// second. Identical input therefore yields identical ring IDs across
// reruns, whatever the internal iteration order was.

// Per-pattern base risk scores.
const (
	riskBaseCycle      = 90
	riskBaseShellChain = 85
	riskBaseFan        = 70
)

type ringCandidate struct {
	key     string
	pattern string
	members []string // sorted, deduplicated, suppression already applied
	base    int
	display string
}

type ringAssembler struct {
	seen       map[string]struct{}
	candidates []ringCandidate
}

func newRingAssembler() *ringAssembler {
	return &ringAssembler{seen: make(map[string]struct{})}
}

// add canonicalizes and registers one detection. Empty member sets are
// ignored; duplicate keys keep the first display text.
func (a *ringAssembler) add(pattern string, members []string, base int, display string) {
	if len(members) == 0 {
		return
	}
	unique := make([]string, 0, len(members))
	dedup := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, ok := dedup[m]; ok {
			continue
		}
		dedup[m] = struct{}{}
		unique = append(unique, m)
	}
	sort.Strings(unique)

	key := pattern + ":" + strings.Join(unique, "|")
	if _, dup := a.seen[key]; dup {
		return
	}
	a.seen[key] = struct{}{}
	a.candidates = append(a.candidates, ringCandidate{
		key:     key,
		pattern: pattern,
		members: unique,
		base:    base,
		display: display,
	})
}

// assemble sorts candidates into canonical order and assigns IDs and risk
// scores. Risk is base + min(20, 2 x member count), clamped to 100.
func (a *ringAssembler) assemble() ([]models.Ring, map[string]string) {
	sort.Slice(a.candidates, func(i, j int) bool {
		ci, cj := a.candidates[i], a.candidates[j]
		if ci.pattern != cj.pattern {
			return ci.pattern < cj.pattern
		}
		return ci.key < cj.key
	})

	rings := make([]models.Ring, 0, len(a.candidates))
	displays := make(map[string]string)
	for i, c := range a.candidates {
		ringID := fmt.Sprintf("RING_%03d", i+1)
		sizeBonus := 2 * len(c.members)
		if sizeBonus > 20 {
			sizeBonus = 20
		}
		risk := float64(c.base + sizeBonus)
		if risk > 100 {
			risk = 100
		}
		rings = append(rings, models.Ring{
			RingID:         ringID,
			MemberAccounts: c.members,
			PatternType:    c.pattern,
			RiskScore:      risk,
		})
		if c.display != "" {
			displays[ringID] = c.display
		}
	}
	return rings, displays
}
