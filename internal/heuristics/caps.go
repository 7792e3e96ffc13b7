package heuristics

import (
	"errors"
	"fmt"
)

// Detector resource caps.
//
// Cycle and chain enumeration is unbounded in general directed graphs, so
// every search carries an explicit per-start path budget and a per-node
// neighbor fan limit. The caps are hard limits: exceeding one truncates the
// search for that start node and moves on. They are policy constants, not
// algorithmic necessities, and are tunable through configuration.

// Caps bounds the pattern searches.
type Caps struct {
	CycleMinLen   int     // shortest reported cycle, in nodes
	CycleMaxLen   int     // longest reported cycle, in nodes
	CycleMaxPaths int     // completed-path budget per start node
	ChainMaxDepth int     // longest chain, in hops
	ChainMaxPaths int     // path budget per start node
	MaxNeighbors  int     // outgoing edges considered per node
	FanMinUnique  int     // distinct counterparties to flag smurfing
	FanWindowMS   float64 // sliding window for smurfing detection
	ShellMinDeg   int     // total-degree band for pass-through accounts
	ShellMaxDeg   int
}

// DefaultCaps is the production tuning: cycles of 3-5 nodes, chains up
// to 5 hops, 60-neighbor fan, 72-hour smurfing window, 10 counterparties.
func DefaultCaps() Caps {
	return Caps{
		CycleMinLen:   3,
		CycleMaxLen:   5,
		CycleMaxPaths: 1500,
		ChainMaxDepth: 5,
		ChainMaxPaths: 2000,
		MaxNeighbors:  60,
		FanMinUnique:  10,
		FanWindowMS:   72 * 60 * 60 * 1000,
		ShellMinDeg:   2,
		ShellMaxDeg:   3,
	}
}

var errInvalidCaps = errors.New("heuristics: invalid detector caps")

// Validate rejects cap combinations that would disable termination
// guarantees or make a detector vacuous.
func (c Caps) Validate() error {
	switch {
	case c.CycleMinLen < 2 || c.CycleMaxLen < c.CycleMinLen:
		return fmt.Errorf("%w: cycle length range [%d,%d]", errInvalidCaps, c.CycleMinLen, c.CycleMaxLen)
	case c.CycleMaxPaths <= 0 || c.ChainMaxPaths <= 0:
		return fmt.Errorf("%w: path budgets must be positive", errInvalidCaps)
	case c.ChainMaxDepth < 3:
		return fmt.Errorf("%w: chain depth %d below minimum chain length", errInvalidCaps, c.ChainMaxDepth)
	case c.MaxNeighbors <= 0:
		return fmt.Errorf("%w: neighbor fan must be positive", errInvalidCaps)
	case c.FanMinUnique <= 0 || c.FanWindowMS <= 0:
		return fmt.Errorf("%w: smurfing window/threshold must be positive", errInvalidCaps)
	case c.ShellMinDeg <= 0 || c.ShellMaxDeg < c.ShellMinDeg:
		return fmt.Errorf("%w: shell degree band [%d,%d]", errInvalidCaps, c.ShellMinDeg, c.ShellMaxDeg)
	}
	return nil
}
