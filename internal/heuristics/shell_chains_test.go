package heuristics

import (
	"reflect"
	"testing"

	"github.com/rawblock/muletrace-engine/internal/graph"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

func TestDetectShellChains_SingleChain(t *testing.T) {
	// A → B → C → D → E. B, C, D each have total degree 2 (shells); A and E
	// have degree 1 (endpoints). Exactly one chain must surface, covering the
	// whole path, not its sub-paths.
	g := graph.Build([]models.Transaction{
		edge("A", "B"), edge("B", "C"), edge("C", "D"), edge("D", "E"),
	})

	chains := DetectShellChains(g, DefaultCaps())
	if len(chains) != 1 {
		t.Fatalf("expected exactly 1 chain, got %d", len(chains))
	}
	got := cycleIDs(g, chains[0])
	if !reflect.DeepEqual(got, []string{"A", "B", "C", "D", "E"}) {
		t.Errorf("chain = %v, want [A B C D E]", got)
	}
}

func TestDetectShellChains_BusyIntermediateBreaksChain(t *testing.T) {
	// C gains extra traffic until its degree leaves the shell band, so no
	// all-shell path from A to E exists.
	g := graph.Build([]models.Transaction{
		edge("A", "B"), edge("B", "C"), edge("C", "D"), edge("D", "E"),
		edge("X1", "C"), edge("X2", "C"), edge("X3", "C"),
	})

	if chains := DetectShellChains(g, DefaultCaps()); len(chains) != 0 {
		t.Errorf("busy intermediate should break the chain, got %d chains", len(chains))
	}
}

func TestDetectShellChains_ShellEndpointRejected(t *testing.T) {
	// On A → B → C → D → E the prefix A..D is long enough but ends on the
	// shell D, so only the full path with the non-shell endpoint E counts.
	// Extra fan from A keeps its degree out of the shell band.
	g := graph.Build([]models.Transaction{
		edge("A", "B"), edge("B", "C"), edge("C", "D"), edge("D", "E"),
		edge("A", "A2"), edge("A", "A3"), edge("A", "A4"),
	})

	chains := DetectShellChains(g, DefaultCaps())
	if len(chains) != 1 {
		t.Fatalf("expected 1 chain, got %d", len(chains))
	}
	if got := cycleIDs(g, chains[0]); got[len(got)-1] != "E" {
		t.Errorf("chain must terminate at the non-shell endpoint, got %v", got)
	}
}

func TestDetectShellChains_DepthCap(t *testing.T) {
	// Seven hops of shells: longer than the depth cap, and every window that
	// fits inside the cap has a shell endpoint, so nothing qualifies.
	g := graph.Build([]models.Transaction{
		edge("A", "S1"), edge("S1", "S2"), edge("S2", "S3"), edge("S3", "S4"),
		edge("S4", "S5"), edge("S5", "S6"), edge("S6", "Z"),
	})

	if chains := DetectShellChains(g, DefaultCaps()); len(chains) != 0 {
		t.Errorf("chain beyond the depth cap should not surface, got %d", len(chains))
	}
}
