// Package routing implements the Queue/Routing component (C9): graph
// centrality scoring over the bead dependency DAG, capability matching
// between beads and workers, and coarse model-tier routing. No graph
// library appears anywhere in the retrieved corpus, so PageRank,
// betweenness, and critical-path are hand-rolled against the standard
// library only; see DESIGN.md.
package routing

import (
	"sort"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

const (
	pageRankDamping   = 0.85
	pageRankEpsilon   = 1e-6
	pageRankMaxRounds = 100
)

// Graph is the bead dependency DAG: edges point from a bead to the
// beads it depends on, matching models.Dependency's BeadID -> DependsOnID.
type Graph struct {
	nodes []string
	index map[string]int
	// dependsOn[i] lists node indices that node i depends on (outgoing
	// edges in the "depends on" sense); dependents[i] is the reverse.
	dependsOn  [][]int
	dependents [][]int
}

// NewGraph builds a Graph from the full bead and dependency set of a project.
func NewGraph(beadIDs []string, deps []*models.Dependency) *Graph {
	g := &Graph{index: make(map[string]int, len(beadIDs))}
	for _, id := range beadIDs {
		g.index[id] = len(g.nodes)
		g.nodes = append(g.nodes, id)
	}
	g.dependsOn = make([][]int, len(g.nodes))
	g.dependents = make([][]int, len(g.nodes))
	for _, d := range deps {
		from, ok1 := g.index[d.BeadID]
		to, ok2 := g.index[d.DependsOnID]
		if !ok1 || !ok2 {
			continue
		}
		g.dependsOn[from] = append(g.dependsOn[from], to)
		g.dependents[to] = append(g.dependents[to], from)
	}
	return g
}

// PageRank computes a damped PageRank over the dependency graph treating
// edges as "depends on" links (so a bead many things depend on accrues
// rank from its dependents), iterating to convergence epsilon or
// pageRankMaxRounds, whichever comes first.
func (g *Graph) PageRank() map[string]float64 {
	n := len(g.nodes)
	if n == 0 {
		return map[string]float64{}
	}
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}
	outDeg := make([]int, n)
	for i := range g.dependsOn {
		outDeg[i] = len(g.dependsOn[i]) // "outgoing" in the rank-flow sense: a bead pushes rank to what it depends on
	}

	for round := 0; round < pageRankMaxRounds; round++ {
		next := make([]float64, n)
		base := (1 - pageRankDamping) / float64(n)
		for i := range next {
			next[i] = base
		}
		danglingSum := 0.0
		for i := 0; i < n; i++ {
			if outDeg[i] == 0 {
				danglingSum += rank[i]
				continue
			}
			share := pageRankDamping * rank[i] / float64(outDeg[i])
			for _, to := range g.dependsOn[i] {
				next[to] += share
			}
		}
		if danglingSum > 0 {
			redistribute := pageRankDamping * danglingSum / float64(n)
			for i := range next {
				next[i] += redistribute
			}
		}

		delta := 0.0
		for i := range next {
			d := next[i] - rank[i]
			if d < 0 {
				d = -d
			}
			delta += d
		}
		rank = next
		if delta < pageRankEpsilon {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, id := range g.nodes {
		out[id] = rank[i]
	}
	return out
}

// Betweenness computes unweighted betweenness centrality via Brandes'
// algorithm over the undirected view of the dependency graph (a bead
// that bridges two otherwise-disconnected clusters of work matters
// regardless of edge direction).
func (g *Graph) Betweenness() map[string]float64 {
	n := len(g.nodes)
	centrality := make([]float64, n)
	if n == 0 {
		return map[string]float64{}
	}

	adj := make([][]int, n)
	for i := 0; i < n; i++ {
		adj[i] = append(adj[i], g.dependsOn[i]...)
		adj[i] = append(adj[i], g.dependents[i]...)
	}

	for s := 0; s < n; s++ {
		stack := make([]int, 0, n)
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []int{s}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				if sigma[w] != 0 {
					delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
				}
			}
			if w != s {
				centrality[w] += delta[w]
			}
		}
	}

	// Undirected graph: each shortest path counted from both endpoints.
	for i := range centrality {
		centrality[i] /= 2
	}

	out := make(map[string]float64, n)
	for i, id := range g.nodes {
		out[id] = centrality[i]
	}
	return out
}

// CriticalPathLength returns, for each node, the length (in edges) of
// the longest chain of dependents that ultimately rests on it, computed
// via topological longest-path dynamic programming. Beads deep in a
// long dependency chain get a priority bonus since delaying them delays
// everything above them.
func (g *Graph) CriticalPathLength() map[string]int {
	n := len(g.nodes)
	longest := make([]int, n)
	visited := make([]bool, n)

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		best := 0
		for _, dependent := range g.dependents[i] {
			visit(dependent)
			if longest[dependent]+1 > best {
				best = longest[dependent] + 1
			}
		}
		longest[i] = best
	}
	for i := 0; i < n; i++ {
		visit(i)
	}

	out := make(map[string]int, n)
	for i, id := range g.nodes {
		out[id] = longest[i]
	}
	return out
}

// PriorityWeights controls how the four signals combine into one score.
type PriorityWeights struct {
	PLevel        float64
	PageRank       float64
	Betweenness    float64
	CriticalPath   float64
}

// DefaultPriorityWeights matches the balance used throughout spec.md's
// worked examples: explicit P-level dominates, the graph signals refine
// ordering within a level.
func DefaultPriorityWeights() PriorityWeights {
	return PriorityWeights{PLevel: 0.5, PageRank: 0.2, Betweenness: 0.2, CriticalPath: 0.1}
}

// PLevelScore converts a models.BeadPriority into the [0,1] score used
// in the combined priority formula: P0 scores highest.
func PLevelScore(p models.BeadPriority) float64 {
	const maxP = 4.0
	score := (maxP - float64(p)) / maxP
	if score < 0 {
		return 0
	}
	return score
}

// CombinedPriority is one bead's final ranking score and its components,
// useful for explaining why the scheduler picked what it picked.
type CombinedPriority struct {
	BeadID           string
	Score            float64
	PLevelScore      float64
	PageRank         float64
	Betweenness      float64
	CriticalPathBonus float64
}

// RankBeads computes the combined priority for every bead in the graph
// and returns them sorted highest score first.
func RankBeads(beads []*models.Bead, deps []*models.Dependency, weights PriorityWeights) []CombinedPriority {
	ids := make([]string, len(beads))
	byID := make(map[string]*models.Bead, len(beads))
	for i, b := range beads {
		ids[i] = b.ID
		byID[b.ID] = b
	}
	g := NewGraph(ids, deps)
	pr := g.PageRank()
	bt := g.Betweenness()
	cp := g.CriticalPathLength()

	maxCP := 1
	for _, v := range cp {
		if v > maxCP {
			maxCP = v
		}
	}

	out := make([]CombinedPriority, 0, len(beads))
	for _, id := range ids {
		b := byID[id]
		pScore := PLevelScore(b.Priority)
		cpBonus := float64(cp[id]) / float64(maxCP)
		score := weights.PLevel*pScore + weights.PageRank*pr[id] + weights.Betweenness*bt[id] + weights.CriticalPath*cpBonus
		out = append(out, CombinedPriority{
			BeadID:            id,
			Score:             score,
			PLevelScore:       pScore,
			PageRank:          pr[id],
			Betweenness:       bt[id],
			CriticalPathBonus: cpBonus,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
