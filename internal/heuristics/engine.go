package heuristics

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rawblock/muletrace-engine/internal/graph"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

// ErrDetectorUnavailable is returned when analysis is requested against an
// uninitialized engine. Silently skipping a pattern family would produce
// misleadingly clean results, so this is fatal for the run.
var ErrDetectorUnavailable = errors.New("heuristics: detector engine not initialized")

// Engine runs the four pattern detectors over a built graph and assembles
// their output into canonical rings, scores and flag classes.
type Engine struct {
	caps Caps
}

// NewEngine validates the caps and returns a ready engine.
func NewEngine(caps Caps) (*Engine, error) {
	if err := caps.Validate(); err != nil {
		return nil, err
	}
	return &Engine{caps: caps}, nil
}

// Caps returns the active detector caps.
func (e *Engine) Caps() Caps { return e.caps }

// Report is the complete analytic output over one graph.
type Report struct {
	Classes models.Classes

	// Human-readable display strings per raw detection.
	CycleDisplays  []string
	FanInDisplays  []string
	FanOutDisplays []string
	ShellDisplays  []string

	Rings        []models.Ring
	RingDisplays map[string]string

	Suspicious   []models.SuspiciousAccount
	Explanations map[string]string

	// Membership ID lists feeding the per-account details.
	CycleRingsByAccount map[string][]string
	SmurfsByAccount     map[string][]string
	ShellsByAccount     map[string][]string
}

// Analyze executes all detectors, applies the suppression filter, and
// assembles deterministic rings and scores.
func (e *Engine) Analyze(g *graph.Graph) (*Report, error) {
	if e == nil {
		return nil, ErrDetectorUnavailable
	}
	if err := e.caps.Validate(); err != nil {
		return nil, err
	}

	cycles := DetectCycles(g, e.caps)
	fanIn := DetectFanIn(g, e.caps)
	fanOut := DetectFanOut(g, e.caps)
	chains := DetectShellChains(g, e.caps)

	r := &Report{
		RingDisplays:        map[string]string{},
		Explanations:        map[string]string{},
		CycleRingsByAccount: map[string][]string{},
		SmurfsByAccount:     map[string][]string{},
		ShellsByAccount:     map[string][]string{},
	}
	assembler := newRingAssembler()

	// ── Cycles ──────────────────────────────────────────────────────
	// Every participant is class-flagged (suppressed accounts filtered
	// below), but only cycles free of suppressed members become rings.
	cycleFlagged := make(map[int]struct{})
	for _, cycle := range cycles {
		clean := true
		for _, idx := range cycle {
			cycleFlagged[idx] = struct{}{}
			if g.IsSuppressed(idx) {
				clean = false
			}
		}
		if !clean {
			continue
		}
		display := joinFlow(g, cycle) + " → " + g.Nodes[cycle[0]]
		r.CycleDisplays = append(r.CycleDisplays, display)
		assembler.add(models.PatternCycle, idsOf(g, cycle), riskBaseCycle, display)
	}

	// ── Smurfing ────────────────────────────────────────────────────
	// A fan ring is discarded only when its hub is suppressed. Suppressed
	// peripheral members are trimmed from the group but leave it intact.
	for hub := range fanIn {
		if g.IsSuppressed(hub) {
			delete(fanIn, hub)
			continue
		}
		fanIn[hub] = unsuppressed(g, fanIn[hub])
	}
	for hub := range fanOut {
		if g.IsSuppressed(hub) {
			delete(fanOut, hub)
			continue
		}
		fanOut[hub] = unsuppressed(g, fanOut[hub])
	}
	for _, hub := range sortedHubs(g, fanIn) {
		members := append([]int{hub}, fanIn[hub]...)
		r.FanInDisplays = append(r.FanInDisplays,
			g.Nodes[hub]+" ← "+strings.Join(sortedIDs(g, fanIn[hub]), ", "))
		assembler.add(models.PatternFanIn, idsOf(g, members), riskBaseFan, "")
	}
	for _, hub := range sortedHubs(g, fanOut) {
		members := append([]int{hub}, fanOut[hub]...)
		r.FanOutDisplays = append(r.FanOutDisplays,
			g.Nodes[hub]+" → "+strings.Join(sortedIDs(g, fanOut[hub]), ", "))
		assembler.add(models.PatternFanOut, idsOf(g, members), riskBaseFan, "")
	}

	// ── Shell chains ────────────────────────────────────────────────
	// Ring membership is the intermediates only; a chain with a suppressed
	// intermediate is discarded whole. Endpoints are not checked.
	stage1 := make(map[int]struct{})
	stage2 := make(map[int]struct{})
	stage3 := make(map[int]struct{})
	var cleanChains [][]int
	for _, chain := range chains {
		intermediates := chain[1 : len(chain)-1]
		clean := true
		for _, idx := range intermediates {
			if g.IsSuppressed(idx) {
				clean = false
				break
			}
		}
		if !clean {
			continue
		}
		for pos, idx := range intermediates {
			switch pos {
			case 0:
				stage1[idx] = struct{}{}
			case 1:
				stage2[idx] = struct{}{}
			default:
				stage3[idx] = struct{}{}
			}
		}
		cleanChains = append(cleanChains, chain)
		r.ShellDisplays = append(r.ShellDisplays, joinFlow(g, chain))
		assembler.add(models.PatternShellChain, idsOf(g, intermediates), riskBaseShellChain, "")
	}

	// ── Classes ─────────────────────────────────────────────────────
	r.Classes = models.Classes{
		Cycle:  flaggedIDs(g, cycleFlagged),
		FanIn:  hubIDs(g, fanIn),
		FanOut: hubIDs(g, fanOut),
		Stage1: flaggedIDs(g, stage1),
		Stage2: flaggedIDs(g, stage2),
		Stage3: flaggedIDs(g, stage3),
	}

	// ── Rings and scores ────────────────────────────────────────────
	r.Rings, r.RingDisplays = assembler.assemble()
	r.Suspicious, r.Explanations = scoreAccounts(r.Rings)

	for _, ring := range r.Rings {
		if ring.PatternType != models.PatternCycle {
			continue
		}
		for _, acc := range ring.MemberAccounts {
			r.CycleRingsByAccount[acc] = append(r.CycleRingsByAccount[acc], ring.RingID)
		}
	}
	assignGroupIDs(g, fanIn, "SMURF_IN_%03d", r.SmurfsByAccount)
	assignGroupIDs(g, fanOut, "SMURF_OUT_%03d", r.SmurfsByAccount)
	assignChainIDs(g, cleanChains, r.ShellsByAccount)

	return r, nil
}

// assignGroupIDs numbers smurfing groups in sorted-hub order and records the
// ID against the hub and every counterparty.
func assignGroupIDs(g *graph.Graph, fans map[int][]int, format string, out map[string][]string) {
	for i, hub := range sortedHubs(g, fans) {
		id := fmt.Sprintf(format, i+1)
		out[g.Nodes[hub]] = append(out[g.Nodes[hub]], id)
		for _, peer := range fans[hub] {
			out[g.Nodes[peer]] = append(out[g.Nodes[peer]], id)
		}
	}
}

// assignChainIDs numbers shell chains by sorted canonical sequence and
// records SHELL_* membership for every node on the path, endpoints included.
func assignChainIDs(g *graph.Graph, chains [][]int, out map[string][]string) {
	keys := make([]string, 0, len(chains))
	byKey := make(map[string][]int, len(chains))
	for _, chain := range chains {
		key := strings.Join(idsOf(g, chain), "|")
		keys = append(keys, key)
		byKey[key] = chain
	}
	sort.Strings(keys)
	for i, key := range keys {
		id := fmt.Sprintf("SHELL_%03d", i+1)
		for _, idx := range byKey[key] {
			out[g.Nodes[idx]] = append(out[g.Nodes[idx]], id)
		}
	}
}

// unsuppressed filters suppressed accounts out of a node-index list.
func unsuppressed(g *graph.Graph, idxs []int) []int {
	out := make([]int, 0, len(idxs))
	for _, idx := range idxs {
		if g.IsSuppressed(idx) {
			continue
		}
		out = append(out, idx)
	}
	return out
}

func idsOf(g *graph.Graph, idxs []int) []string {
	ids := make([]string, len(idxs))
	for i, idx := range idxs {
		ids[i] = g.Nodes[idx]
	}
	return ids
}

func sortedIDs(g *graph.Graph, idxs []int) []string {
	ids := idsOf(g, idxs)
	sort.Strings(ids)
	return ids
}

func joinFlow(g *graph.Graph, idxs []int) string {
	return strings.Join(idsOf(g, idxs), " → ")
}

// sortedHubs orders fan hubs by account ID for deterministic numbering.
func sortedHubs(g *graph.Graph, fans map[int][]int) []int {
	hubs := make([]int, 0, len(fans))
	for hub := range fans {
		hubs = append(hubs, hub)
	}
	sort.Slice(hubs, func(i, j int) bool { return g.Nodes[hubs[i]] < g.Nodes[hubs[j]] })
	return hubs
}

// flaggedIDs filters suppressed accounts out of a flag set and returns the
// remainder in sorted order.
func flaggedIDs(g *graph.Graph, set map[int]struct{}) []string {
	ids := make([]string, 0, len(set))
	for idx := range set {
		if g.IsSuppressed(idx) {
			continue
		}
		ids = append(ids, g.Nodes[idx])
	}
	sort.Strings(ids)
	return ids
}

// hubIDs returns the (already suppression-filtered) hub IDs in sorted order.
func hubIDs(g *graph.Graph, fans map[int][]int) []string {
	ids := make([]string, 0, len(fans))
	for hub := range fans {
		ids = append(ids, g.Nodes[hub])
	}
	sort.Strings(ids)
	return ids
}
