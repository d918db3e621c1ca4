// Package graph provides the compressed-sparse-row conversion graph
// shared by the pipeline writer and the cycle finder. Topology is fixed
// at construction; only edge weights mutate afterwards, which keeps the
// snapshot discipline cheap: a snapshot shares the topology arrays and
// copies just the weights.
package graph

import (
	"fmt"
	"math"

	"github.com/tokenarb/cyclescan/internal/domain"
)

// Edge is a construction-time input: a directed conversion from one
// token to another at a linear rate.
type Edge struct {
	From int
	To   int
	Rate float64
}

// CSR is a directed graph over dense token indices in compressed
// sparse-row form. Edges keep the global index they had in the input
// slice; parallel edges are retained in insertion order. Weights hold
// the additive log-cost -ln(rate) per global edge index.
type CSR struct {
	rowOffsets []int // len numTokens+1, monotone non-decreasing
	colIndex   []int // len M, destination token per CSR slot
	edgeID     []int // len M, global edge index per CSR slot
	srcByEdge  []int // len M, source token per global edge index
	dstByEdge  []int // len M, destination token per global edge index
	weights    []float64
	numTokens  int
}

// Neighbor is one out-edge seen during a row scan.
type Neighbor struct {
	To     int
	Weight float64
	Edge   int
}

// Build constructs a CSR graph from an edge list. Edges are bucketed by
// source with a counting sort, preserving input order within each
// source row. It fails on out-of-range endpoints and on non-finite or
// non-positive rates.
func Build(numTokens int, edges []Edge) (*CSR, error) {
	if len(edges) == 0 {
		return nil, domain.ErrEmptyDataset
	}

	outDegree := make([]int, numTokens)
	for i, e := range edges {
		if e.From < 0 || e.From >= numTokens {
			return nil, fmt.Errorf("edge %d: from %d: %w", i, e.From, domain.ErrTokenOutOfRange)
		}
		if e.To < 0 || e.To >= numTokens {
			return nil, fmt.Errorf("edge %d: to %d: %w", i, e.To, domain.ErrTokenOutOfRange)
		}
		if math.IsNaN(e.Rate) || math.IsInf(e.Rate, 0) || e.Rate <= 0 {
			return nil, fmt.Errorf("edge %d: rate %v: %w", i, e.Rate, domain.ErrInvalidRate)
		}
		outDegree[e.From]++
	}

	m := len(edges)
	g := &CSR{
		rowOffsets: make([]int, numTokens+1),
		colIndex:   make([]int, m),
		edgeID:     make([]int, m),
		srcByEdge:  make([]int, m),
		dstByEdge:  make([]int, m),
		weights:    make([]float64, m),
		numTokens:  numTokens,
	}
	for u := 0; u < numTokens; u++ {
		g.rowOffsets[u+1] = g.rowOffsets[u] + outDegree[u]
	}

	fill := make([]int, numTokens)
	for i, e := range edges {
		slot := g.rowOffsets[e.From] + fill[e.From]
		fill[e.From]++
		g.colIndex[slot] = e.To
		g.edgeID[slot] = i
		g.srcByEdge[i] = e.From
		g.dstByEdge[i] = e.To
		g.weights[i] = -math.Log(e.Rate)
	}

	return g, nil
}

// NumTokens returns the token count fixed at construction.
func (g *CSR) NumTokens() int { return g.numTokens }

// NumEdges returns the edge count fixed at construction.
func (g *CSR) NumEdges() int { return len(g.weights) }

// Neighbors appends the out-edges of u to dst and returns it. Passing a
// reused slice keeps row scans allocation-free in the finder's hot
// loop.
func (g *CSR) Neighbors(u int, dst []Neighbor) []Neighbor {
	start, end := g.rowOffsets[u], g.rowOffsets[u+1]
	for slot := start; slot < end; slot++ {
		e := g.edgeID[slot]
		dst = append(dst, Neighbor{To: g.colIndex[slot], Weight: g.weights[e], Edge: e})
	}
	return dst
}

// OutDegree returns the number of out-edges of u.
func (g *CSR) OutDegree(u int) int {
	return g.rowOffsets[u+1] - g.rowOffsets[u]
}

// EdgeSrc returns the source token of a global edge index.
func (g *CSR) EdgeSrc(e int) int { return g.srcByEdge[e] }

// EdgeDst returns the destination token of a global edge index.
func (g *CSR) EdgeDst(e int) int { return g.dstByEdge[e] }

// Weight returns the current log-cost of a global edge index.
func (g *CSR) Weight(e int) float64 { return g.weights[e] }

// Rate returns the current linear rate of a global edge index.
func (g *CSR) Rate(e int) float64 { return math.Exp(-g.weights[e]) }

// SetWeight overwrites the log-cost of one edge in constant time. The
// caller guarantees e is in range and wLog is finite and within the
// configured cost range; the pipeline writer validates before calling.
func (g *CSR) SetWeight(e int, wLog float64) {
	g.weights[e] = wLog
}

// Snapshot returns a read-only copy suitable for searching without a
// lock. Topology arrays are shared (they never mutate); the weights
// array is copied.
func (g *CSR) Snapshot() *CSR {
	w := make([]float64, len(g.weights))
	copy(w, g.weights)
	return &CSR{
		rowOffsets: g.rowOffsets,
		colIndex:   g.colIndex,
		edgeID:     g.edgeID,
		srcByEdge:  g.srcByEdge,
		dstByEdge:  g.dstByEdge,
		weights:    w,
		numTokens:  g.numTokens,
	}
}
