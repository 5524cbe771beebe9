// Package graph implements an in-memory undirected weighted adjacency model
// over entity keys, rebuilt from stored links, with PageRank, degree and
// betweenness centrality, and attenuated k-hop neighbor queries.
package graph

import (
	"math"
	"sort"
)

// Link is a weighted edge between two entity keys, independent of how it was
// stored so this package stays testable without a store dependency.
type Link struct {
	EntityA, Relation, EntityB string
	Weight                     float64
}

// Graph is an undirected weighted adjacency map over entity keys.
type Graph struct {
	adj map[string]map[string]float64
}

// Build constructs a Graph from a flat edge list, collapsing parallel edges
// between the same pair to the maximum observed weight.
func Build(links []Link) *Graph {
	g := &Graph{adj: make(map[string]map[string]float64)}
	for _, l := range links {
		g.addEdge(l.EntityA, l.EntityB, l.Weight)
	}
	return g
}

func (g *Graph) addEdge(a, b string, w float64) {
	if a == "" || b == "" || a == b {
		return
	}
	g.ensure(a)
	g.ensure(b)
	if cur, ok := g.adj[a][b]; !ok || w > cur {
		g.adj[a][b] = w
		g.adj[b][a] = w
	}
}

func (g *Graph) ensure(n string) {
	if _, ok := g.adj[n]; !ok {
		g.adj[n] = make(map[string]float64)
	}
}

// Nodes returns every entity key in the graph, sorted for deterministic
// iteration order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.adj))
	for n := range g.adj {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.adj) }

// PageRank runs standard power iteration with uniform teleportation. Works
// correctly over disconnected components since teleport mass is spread
// uniformly across all nodes regardless of reachability.
func (g *Graph) PageRank(damping, tolerance float64, maxIterations int) map[string]float64 {
	nodes := g.Nodes()
	n := len(nodes)
	if n == 0 {
		return map[string]float64{}
	}

	rank := make(map[string]float64, n)
	for _, node := range nodes {
		rank[node] = 1.0 / float64(n)
	}

	outWeight := make(map[string]float64, n)
	for _, node := range nodes {
		var sum float64
		for _, w := range g.adj[node] {
			sum += w
		}
		outWeight[node] = sum
	}

	for iter := 0; iter < maxIterations; iter++ {
		base := (1 - damping) / float64(n)
		next := make(map[string]float64, n)
		for _, node := range nodes {
			next[node] = base
		}

		var dangling float64
		for _, node := range nodes {
			if outWeight[node] == 0 {
				dangling += rank[node]
			}
		}
		if dangling > 0 {
			share := damping * dangling / float64(n)
			for _, node := range nodes {
				next[node] += share
			}
		}

		for _, node := range nodes {
			if outWeight[node] == 0 {
				continue
			}
			contribution := damping * rank[node] / outWeight[node]
			for nb, w := range g.adj[node] {
				next[nb] += contribution * w
			}
		}

		var delta float64
		for _, node := range nodes {
			delta += math.Abs(next[node] - rank[node])
		}
		rank = next
		if delta < tolerance {
			break
		}
	}
	return rank
}

// DegreeCentrality returns, per node, the sum of its incident edge weights.
func (g *Graph) DegreeCentrality() map[string]float64 {
	out := make(map[string]float64, len(g.adj))
	for node, neighbors := range g.adj {
		var sum float64
		for _, w := range neighbors {
			sum += w
		}
		out[node] = sum
	}
	return out
}

// Betweenness computes Brandes' betweenness centrality over the unweighted
// shortest-path structure of the graph (hop count, not edge weight, since
// mixing the two changes what "shortest" means).
func (g *Graph) Betweenness() map[string]float64 {
	nodes := g.Nodes()
	cb := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		cb[n] = 0
	}

	for _, s := range nodes {
		stack := make([]string, 0, len(nodes))
		pred := make(map[string][]string, len(nodes))
		sigma := make(map[string]float64, len(nodes))
		dist := make(map[string]int, len(nodes))
		for _, n := range nodes {
			sigma[n] = 0
			dist[n] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []string{s}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for w := range g.adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		delta := make(map[string]float64, len(nodes))
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}

	// Each shortest path between an undirected pair is found from both
	// endpoints, so every contribution is counted twice.
	for n := range cb {
		cb[n] /= 2
	}
	return cb
}

// attenuation maps hop distance (1-indexed) to relevance weight. An exact
// match (hop 0) carries relevance 1.0 and is handled by callers directly, not
// by this table.
var attenuation = []float64{0.5, 0.25}

// Neighbors returns every node reachable from entity within maxHops, each
// weighted by the attenuation table (0.5 at hop 1, 0.25 at hop 2). maxHops is
// clamped to len(attenuation), since relevance beyond a 2-hop neighbor isn't
// tracked.
func (g *Graph) Neighbors(entity string, maxHops int) map[string]float64 {
	if maxHops <= 0 || maxHops > len(attenuation) {
		maxHops = len(attenuation)
	}

	type item struct {
		node string
		hop  int
	}
	visited := map[string]int{entity: 0}
	queue := []item{{entity, 0}}
	out := make(map[string]float64)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hop >= maxHops {
			continue
		}
		for nb := range g.adj[cur.node] {
			if _, seen := visited[nb]; seen {
				continue
			}
			hop := cur.hop + 1
			visited[nb] = hop
			out[nb] = attenuation[hop-1]
			queue = append(queue, item{nb, hop})
		}
	}
	return out
}

// RelatedMemories aggregates k-hop neighbor attenuation into per-memory
// relevance, given an entity-key -> memory-id index (as drawn from
// memory_entities). A memory's score is the highest attenuation among the
// entities that link it to entity within maxHops.
func (g *Graph) RelatedMemories(entity string, entityMemories map[string][]string, maxHops int) map[string]float64 {
	neighbors := g.Neighbors(entity, maxHops)
	out := make(map[string]float64)
	for nb, weight := range neighbors {
		for _, memID := range entityMemories[nb] {
			if cur, ok := out[memID]; !ok || weight > cur {
				out[memID] = weight
			}
		}
	}
	return out
}
