package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starLinks() []Link {
	// hub connected to three leaves, weight 1.
	return []Link{
		{EntityA: "hub", Relation: "rel", EntityB: "leaf1", Weight: 1},
		{EntityA: "hub", Relation: "rel", EntityB: "leaf2", Weight: 1},
		{EntityA: "hub", Relation: "rel", EntityB: "leaf3", Weight: 1},
	}
}

func TestBuild_Undirected(t *testing.T) {
	g := Build(starLinks())
	assert.Equal(t, 4, g.Len())
	assert.Contains(t, g.Nodes(), "hub")
	_, ok := g.adj["leaf1"]["hub"]
	assert.True(t, ok, "edge should be symmetric")
}

func TestBuild_IgnoresSelfLoopsAndEmpty(t *testing.T) {
	g := Build([]Link{
		{EntityA: "a", EntityB: "a", Weight: 1},
		{EntityA: "", EntityB: "b", Weight: 1},
	})
	assert.Equal(t, 0, g.Len())
}

func TestBuild_ParallelEdgesKeepMaxWeight(t *testing.T) {
	g := Build([]Link{
		{EntityA: "a", EntityB: "b", Weight: 0.5},
		{EntityA: "a", EntityB: "b", Weight: 0.9},
	})
	assert.Equal(t, 0.9, g.adj["a"]["b"])
}

func TestPageRank_SumsToOne(t *testing.T) {
	g := Build(starLinks())
	pr := g.PageRank(0.85, 1e-6, 100)
	var sum float64
	for _, v := range pr {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestPageRank_HubRanksHighestInStar(t *testing.T) {
	g := Build(starLinks())
	pr := g.PageRank(0.85, 1e-6, 100)
	for _, leaf := range []string{"leaf1", "leaf2", "leaf3"} {
		assert.Greater(t, pr["hub"], pr[leaf])
	}
}

func TestPageRank_EmptyGraph(t *testing.T) {
	g := Build(nil)
	pr := g.PageRank(0.85, 1e-6, 100)
	assert.Empty(t, pr)
}

func TestPageRank_DisconnectedComponents(t *testing.T) {
	g := Build([]Link{
		{EntityA: "a", EntityB: "b", Weight: 1},
		{EntityA: "c", EntityB: "d", Weight: 1},
	})
	pr := g.PageRank(0.85, 1e-6, 100)
	require.Len(t, pr, 4)
	for _, v := range pr {
		assert.False(t, math.IsNaN(v))
	}
}

func TestDegreeCentrality(t *testing.T) {
	g := Build(starLinks())
	deg := g.DegreeCentrality()
	assert.Equal(t, 3.0, deg["hub"])
	assert.Equal(t, 1.0, deg["leaf1"])
}

func TestBetweenness_HubOnAllPaths(t *testing.T) {
	g := Build(starLinks())
	bw := g.Betweenness()
	assert.Greater(t, bw["hub"], 0.0)
	assert.Equal(t, 0.0, bw["leaf1"])
}

func TestBetweenness_PathGraph(t *testing.T) {
	// a - b - c: b sits on the only shortest path between a and c.
	g := Build([]Link{
		{EntityA: "a", EntityB: "b", Weight: 1},
		{EntityA: "b", EntityB: "c", Weight: 1},
	})
	bw := g.Betweenness()
	assert.Greater(t, bw["b"], bw["a"])
	assert.Greater(t, bw["b"], bw["c"])
}

func TestNeighbors_Attenuation(t *testing.T) {
	g := Build([]Link{
		{EntityA: "a", EntityB: "b", Weight: 1},
		{EntityA: "b", EntityB: "c", Weight: 1},
		{EntityA: "c", EntityB: "d", Weight: 1},
	})
	n := g.Neighbors("a", 2)
	assert.Equal(t, 0.5, n["b"])
	assert.Equal(t, 0.25, n["c"])
	_, hasD := n["d"]
	assert.False(t, hasD, "d is 3 hops away, beyond maxHops=2")
}

func TestNeighbors_DoesNotIncludeSelf(t *testing.T) {
	g := Build(starLinks())
	n := g.Neighbors("hub", 2)
	_, ok := n["hub"]
	assert.False(t, ok)
}

func TestNeighbors_MaxHopsClampedToAttenuationTable(t *testing.T) {
	g := Build([]Link{
		{EntityA: "a", EntityB: "b", Weight: 1},
		{EntityA: "b", EntityB: "c", Weight: 1},
		{EntityA: "c", EntityB: "d", Weight: 1},
		{EntityA: "d", EntityB: "e", Weight: 1},
	})
	n := g.Neighbors("a", 10)
	assert.Equal(t, 0.25, n["c"])
	_, hasD := n["d"]
	assert.False(t, hasD, "d is 3 hops away, beyond the 2-hop attenuation table")
	_, hasE := n["e"]
	assert.False(t, hasE)
}

func TestRelatedMemories_AggregatesMaxAttenuation(t *testing.T) {
	g := Build([]Link{
		{EntityA: "a", EntityB: "b", Weight: 1},
		{EntityA: "a", EntityB: "c", Weight: 1},
	})
	entityMemories := map[string][]string{
		"b": {"mem1"},
		"c": {"mem1", "mem2"},
	}
	related := g.RelatedMemories("a", entityMemories, 2)
	assert.Equal(t, 0.5, related["mem1"])
	assert.Equal(t, 0.5, related["mem2"])
}
