package heuristics

import (
	"math"
	"sort"

	"github.com/rawblock/muletrace-engine/internal/graph"
)

// Smurfing Detection (fan-in / fan-out)
//
// Smurfing splits funds into many small transfers to stay under reporting
// thresholds. Fan-in is the collecting side: many distinct senders each
// pushing a small amount into one receiver inside a short window. Fan-out
// is the distribution mirror image.
//
// "Small" is relative to the data set: at most SmallThreshold, half the
// median transfer amount of the whole run. Transfers without a usable
// timestamp are excluded. Detection uses a two-pointer sliding window over
// the hub's time-sorted transfers; the hub is flagged when any window holds
// FanMinUnique distinct counterparties, and every counterparty seen in a
// qualifying window is reported.

type fanEvent struct {
	counterparty int
	ts           float64
}

// DetectFanIn returns, per flagged receiver index, the distinct sender
// indexes observed across all qualifying windows.
func DetectFanIn(g *graph.Graph, caps Caps) map[int][]int {
	return detectFan(g, caps, g.ReceiverIdx, g.SenderIdx)
}

// DetectFanOut returns, per flagged sender index, the distinct receiver
// indexes observed across all qualifying windows.
func DetectFanOut(g *graph.Graph, caps Caps) map[int][]int {
	return detectFan(g, caps, g.SenderIdx, g.ReceiverIdx)
}

func detectFan(g *graph.Graph, caps Caps, hubs, peers []int) map[int][]int {
	buckets := make([][]fanEvent, len(g.Nodes))
	for e := range hubs {
		ts := g.TimestampMS[e]
		if math.IsNaN(ts) {
			continue
		}
		if g.SmallThreshold > 0 && g.Amount[e] > g.SmallThreshold {
			continue
		}
		buckets[hubs[e]] = append(buckets[hubs[e]], fanEvent{counterparty: peers[e], ts: ts})
	}

	flagged := make(map[int][]int)
	for hub, events := range buckets {
		if len(events) < caps.FanMinUnique {
			continue
		}
		sort.Slice(events, func(i, j int) bool { return events[i].ts < events[j].ts })

		counts := make(map[int]int)
		var union map[int]struct{}
		left := 0
		for right := 0; right < len(events); right++ {
			counts[events[right].counterparty]++
			for events[right].ts-events[left].ts > caps.FanWindowMS {
				id := events[left].counterparty
				if counts[id] <= 1 {
					delete(counts, id)
				} else {
					counts[id]--
				}
				left++
			}
			// Every counterparty inside any qualifying window counts,
			// not just the first window to reach the minimum.
			if len(counts) >= caps.FanMinUnique {
				if union == nil {
					union = make(map[int]struct{}, len(counts))
				}
				for id := range counts {
					union[id] = struct{}{}
				}
			}
		}
		if union != nil {
			members := make([]int, 0, len(union))
			for id := range union {
				members = append(members, id)
			}
			sort.Ints(members)
			flagged[hub] = members
		}
	}
	return flagged
}
