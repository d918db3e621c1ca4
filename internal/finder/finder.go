// Package finder implements the bounded-hop negative-cycle search over
// a CSR snapshot. Costs are additive log-costs, so a cycle whose summed
// cost is negative corresponds to a rate product above one.
package finder

import (
	"math"

	"github.com/tokenarb/cyclescan/internal/domain"
	"github.com/tokenarb/cyclescan/internal/graph"
)

// negEps is the detection threshold: a returning cost must undercut
// zero by more than this to count as profitable, filtering float noise
// on break-even loops.
const negEps = 1e-12

// Finder runs hop-indexed Bellman-Ford relaxations from every start
// token and reports the globally shortest-hop profitable cycle, ties
// broken by the most negative total cost, remaining ties by the lowest
// start token. Work buffers are allocated once and reused across starts
// and across calls.
type Finder struct {
	hopCap int

	bestPrev []float64
	bestCur  []float64
	// predByHop[h][v] is the edge that achieved best_cur[v] at hop h,
	// or -1. Row 0 stays unused; reconstruction walks rows h..1.
	predByHop [][]int
	row       []graph.Neighbor
}

// New creates a Finder with the given hop cap. A cap below one finds
// nothing.
func New(hopCap int) *Finder {
	return &Finder{hopCap: hopCap}
}

// HopCap returns the configured hop cap.
func (f *Finder) HopCap() int { return f.hopCap }

// Find searches the snapshot and returns the best profitable cycle, or
// false when none exists within the hop cap. The snapshot is not
// mutated.
func (f *Finder) Find(g *graph.CSR) (domain.Cycle, bool) {
	n := g.NumTokens()
	if n == 0 || g.NumEdges() == 0 || f.hopCap < 1 {
		return domain.Cycle{}, false
	}
	f.grow(n)

	var best domain.Cycle
	bestHop := f.hopCap + 1

	for start := 0; start < n; start++ {
		// A later start can only win with strictly fewer hops, or equal
		// hops at lower cost; never search deeper than the current best.
		limit := min(f.hopCap, bestHop)

		fillInf(f.bestPrev)
		f.bestPrev[start] = 0

		for hop := 1; hop <= limit; hop++ {
			fillInf(f.bestCur)
			pred := f.predByHop[hop]
			fillNone(pred)

			f.relax(g, pred)

			cost := f.bestCur[start]
			if cost < -negEps {
				if hop < bestHop || (hop == bestHop && cost < best.LogCost) {
					if cyc, ok := f.reconstruct(g, start, hop, cost); ok {
						best = cyc
						bestHop = hop
					}
				}
				break // shortest cycle through this start found
			}

			f.bestPrev, f.bestCur = f.bestCur, f.bestPrev
		}

		if bestHop == 1 {
			break // a self-loop cannot be beaten
		}
	}

	if bestHop > f.hopCap {
		return domain.Cycle{}, false
	}
	return best, true
}

// relax performs one full edge pass from hop h-1 costs (bestPrev) into
// hop h costs (bestCur), recording the winning predecessor edge per
// node. The caller has already reset bestCur and the pred row.
func (f *Finder) relax(g *graph.CSR, pred []int) {
	n := g.NumTokens()
	for u := 0; u < n; u++ {
		du := f.bestPrev[u]
		if math.IsInf(du, 1) {
			continue
		}
		f.row = g.Neighbors(u, f.row[:0])
		for _, nb := range f.row {
			if d := du + nb.Weight; d < f.bestCur[nb.To] {
				f.bestCur[nb.To] = d
				pred[nb.To] = nb.Edge
			}
		}
	}
}

// reconstruct walks the predecessor rows backwards exactly hop steps
// from start, yielding the edge sequence in cycle order.
func (f *Finder) reconstruct(g *graph.CSR, start, hop int, cost float64) (domain.Cycle, bool) {
	edges := make([]int, 0, hop)
	node := start
	for h := hop; h >= 1; h-- {
		e := f.predByHop[h][node]
		if e < 0 {
			return domain.Cycle{}, false
		}
		edges = append(edges, e)
		node = g.EdgeSrc(e)
	}
	reverse(edges)

	vertices := make([]int, 0, hop+1)
	vertices = append(vertices, g.EdgeSrc(edges[0]))
	for _, e := range edges {
		vertices = append(vertices, g.EdgeDst(e))
	}

	profit := math.Exp(-cost)
	if math.IsInf(profit, 0) || math.IsNaN(profit) {
		return domain.Cycle{}, false
	}

	return domain.Cycle{
		Start:    start,
		Hops:     hop,
		Edges:    edges,
		Vertices: vertices,
		LogCost:  cost,
		Profit:   profit,
	}, true
}

// grow resizes the reusable buffers for a graph with n tokens.
func (f *Finder) grow(n int) {
	if len(f.bestPrev) >= n && len(f.predByHop) >= f.hopCap+1 {
		return
	}
	f.bestPrev = make([]float64, n)
	f.bestCur = make([]float64, n)
	f.predByHop = make([][]int, f.hopCap+1)
	for h := range f.predByHop {
		f.predByHop[h] = make([]int, n)
	}
}

func fillInf(s []float64) {
	for i := range s {
		s[i] = math.Inf(1)
	}
}

func fillNone(s []int) {
	for i := range s {
		s[i] = -1
	}
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
