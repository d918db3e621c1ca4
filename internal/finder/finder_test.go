package finder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenarb/cyclescan/internal/graph"
)

func build(t *testing.T, n int, edges []graph.Edge) *graph.CSR {
	t.Helper()
	g, err := graph.Build(n, edges)
	require.NoError(t, err)
	return g
}

func TestFind_TrivialNoCycle(t *testing.T) {
	g := build(t, 2, []graph.Edge{
		{From: 0, To: 1, Rate: 1.0},
		{From: 1, To: 0, Rate: 1.0},
	})

	_, ok := New(4).Find(g)
	assert.False(t, ok, "unit-rate round trip is break-even, not profitable")
}

func TestFind_TwoHopProfit(t *testing.T) {
	g := build(t, 2, []graph.Edge{
		{From: 0, To: 1, Rate: 2.0},
		{From: 1, To: 0, Rate: 1.0},
	})

	cyc, ok := New(4).Find(g)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, cyc.Edges)
	assert.Equal(t, 2, cyc.Hops)
	assert.Equal(t, 0, cyc.Start)
	assert.InDelta(t, -math.Log(2.0), cyc.LogCost, 1e-12)
	assert.InDelta(t, 2.0, cyc.Profit, 1e-12)
	assert.Equal(t, cyc.Vertices[0], cyc.Vertices[len(cyc.Vertices)-1])
}

func TestFind_ShortestHopWins(t *testing.T) {
	g := build(t, 3, []graph.Edge{
		{From: 0, To: 1, Rate: 2.0},
		{From: 1, To: 0, Rate: 1.0},
		{From: 1, To: 2, Rate: 3.0},
		{From: 2, To: 0, Rate: 1.0},
	})

	cyc, ok := New(4).Find(g)
	require.True(t, ok)
	assert.Equal(t, 2, cyc.Hops, "the length-2 cycle must beat the more profitable length-3 one")
	assert.Equal(t, []int{0, 1}, cyc.Edges)
}

func TestFind_SelfLoop(t *testing.T) {
	g := build(t, 1, []graph.Edge{{From: 0, To: 0, Rate: 1.5}})

	cyc, ok := New(4).Find(g)
	require.True(t, ok)
	assert.Equal(t, 1, cyc.Hops)
	assert.Equal(t, []int{0}, cyc.Edges)
	assert.Equal(t, []int{0, 0}, cyc.Vertices)
	assert.InDelta(t, 1.5, cyc.Profit, 1e-12)
}

func TestFind_SelfLoopBeatsLongerCycle(t *testing.T) {
	g := build(t, 3, []graph.Edge{
		{From: 1, To: 2, Rate: 4.0},
		{From: 2, To: 1, Rate: 1.0},
		{From: 0, To: 0, Rate: 1.1},
	})

	cyc, ok := New(4).Find(g)
	require.True(t, ok)
	assert.Equal(t, 1, cyc.Hops)
	assert.Equal(t, []int{2}, cyc.Edges)
}

func TestFind_EqualHopsPrefersLowerCost(t *testing.T) {
	// Two disjoint 2-cycles; the second is more profitable.
	g := build(t, 4, []graph.Edge{
		{From: 0, To: 1, Rate: 1.2},
		{From: 1, To: 0, Rate: 1.0},
		{From: 2, To: 3, Rate: 2.0},
		{From: 3, To: 2, Rate: 1.0},
	})

	cyc, ok := New(4).Find(g)
	require.True(t, ok)
	assert.Equal(t, 2, cyc.Hops)
	assert.Equal(t, []int{2, 3}, cyc.Edges)
	assert.InDelta(t, 2.0, cyc.Profit, 1e-12)
}

func TestFind_RespectsHopCap(t *testing.T) {
	edges := []graph.Edge{
		{From: 0, To: 1, Rate: 1.01},
		{From: 1, To: 2, Rate: 1.01},
		{From: 2, To: 3, Rate: 1.01},
		{From: 3, To: 0, Rate: 1.01},
	}

	_, ok := New(3).Find(build(t, 4, edges))
	assert.False(t, ok, "cap 3 must not reach the 4-hop cycle")

	cyc, ok := New(4).Find(build(t, 4, edges))
	require.True(t, ok)
	assert.Equal(t, 4, cyc.Hops)
}

func TestFind_HopCapExceedingTokenCount(t *testing.T) {
	g := build(t, 3, []graph.Edge{
		{From: 0, To: 1, Rate: 1.02},
		{From: 1, To: 2, Rate: 1.02},
		{From: 2, To: 0, Rate: 0.98},
	})

	cyc, ok := New(13).Find(g)
	require.True(t, ok)
	assert.Greater(t, cyc.Profit, 1.0)
	assert.Equal(t, cyc.Vertices[0], cyc.Vertices[len(cyc.Vertices)-1])
}

func TestFind_NoArbitrage(t *testing.T) {
	g := build(t, 3, []graph.Edge{
		{From: 0, To: 1, Rate: 1.01},
		{From: 1, To: 2, Rate: 0.99},
		{From: 2, To: 0, Rate: 1.0},
	})

	_, ok := New(8).Find(g)
	assert.False(t, ok)
}

func TestFind_ZeroHopCap(t *testing.T) {
	g := build(t, 2, []graph.Edge{
		{From: 0, To: 1, Rate: 1.1},
		{From: 1, To: 0, Rate: 1.1},
	})

	_, ok := New(0).Find(g)
	assert.False(t, ok)
}

func TestFind_SparseTokenIndices(t *testing.T) {
	g := build(t, 101, []graph.Edge{
		{From: 83, To: 40, Rate: 1.011538},
		{From: 40, To: 22, Rate: 1.006524},
		{From: 22, To: 83, Rate: 1.00674},
	})

	cyc, ok := New(4).Find(g)
	require.True(t, ok)
	assert.Equal(t, 3, cyc.Hops)
	assert.Greater(t, cyc.Profit, 1.0)
	assert.Less(t, cyc.LogCost, 0.0)
}

func TestFind_CostSumMatchesReportedTotal(t *testing.T) {
	g := build(t, 3, []graph.Edge{
		{From: 0, To: 1, Rate: 1.10},
		{From: 1, To: 2, Rate: 1.05},
		{From: 2, To: 0, Rate: 0.98},
	})

	cyc, ok := New(8).Find(g)
	require.True(t, ok)

	var sum float64
	node := cyc.Start
	for _, e := range cyc.Edges {
		require.Equal(t, node, g.EdgeSrc(e), "edges must chain head to tail")
		sum += g.Weight(e)
		node = g.EdgeDst(e)
	}
	require.Equal(t, cyc.Start, node, "walk must close at the start token")
	assert.InDelta(t, cyc.LogCost, sum, 1e-12)
	assert.Equal(t, cyc.Hops, len(cyc.Edges))
}

func TestFind_BufferReuseAcrossCalls(t *testing.T) {
	f := New(6)

	g1 := build(t, 3, []graph.Edge{
		{From: 0, To: 1, Rate: 1.02},
		{From: 1, To: 2, Rate: 1.02},
		{From: 2, To: 0, Rate: 0.98},
	})
	_, ok := f.Find(g1)
	require.True(t, ok)

	g2 := build(t, 2, []graph.Edge{
		{From: 0, To: 1, Rate: 0.99},
		{From: 1, To: 0, Rate: 0.99},
	})
	_, ok = f.Find(g2)
	assert.False(t, ok, "stale state from a previous call must not leak")

	cyc, ok := f.Find(g1)
	require.True(t, ok)
	assert.Greater(t, cyc.Profit, 1.0)
}
