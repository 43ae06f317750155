package routing

import (
	"testing"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

func TestPageRank_HubGetsHigherRank(t *testing.T) {
	// a, b, c all depend on hub.
	deps := []*models.Dependency{
		{BeadID: "a", DependsOnID: "hub"},
		{BeadID: "b", DependsOnID: "hub"},
		{BeadID: "c", DependsOnID: "hub"},
	}
	g := NewGraph([]string{"a", "b", "c", "hub", "isolated"}, deps)
	ranks := g.PageRank()
	if ranks["hub"] <= ranks["isolated"] {
		t.Fatalf("expected hub to outrank isolated node, got hub=%v isolated=%v", ranks["hub"], ranks["isolated"])
	}
}

func TestCriticalPathLength_ChainDepth(t *testing.T) {
	// a -> b -> c -> d (a depends on b, b depends on c, c depends on d)
	deps := []*models.Dependency{
		{BeadID: "a", DependsOnID: "b"},
		{BeadID: "b", DependsOnID: "c"},
		{BeadID: "c", DependsOnID: "d"},
	}
	g := NewGraph([]string{"a", "b", "c", "d"}, deps)
	cp := g.CriticalPathLength()
	if cp["d"] != 3 {
		t.Fatalf("expected root of chain to have critical path 3, got %d", cp["d"])
	}
	if cp["a"] != 0 {
		t.Fatalf("expected leaf to have critical path 0, got %d", cp["a"])
	}
}

func TestRankBeads_PLevelDominates(t *testing.T) {
	beads := []*models.Bead{
		{ID: "low", Priority: models.BeadPriority(4)},
		{ID: "high", Priority: models.BeadPriority(0)},
	}
	ranked := RankBeads(beads, nil, DefaultPriorityWeights())
	if ranked[0].BeadID != "high" {
		t.Fatalf("expected P0 bead to rank first, got %s", ranked[0].BeadID)
	}
}

func TestSelectWorker_RequiresAllCapabilities(t *testing.T) {
	workers := []*models.Worker{
		{ID: "w1", Status: models.WorkerStatusIdle, Capabilities: []string{"python"}},
		{ID: "w2", Status: models.WorkerStatusIdle, Capabilities: []string{"python", "go"}},
	}
	w := SelectWorker(workers, []string{"python", "go"}, nil)
	if w == nil || w.ID != "w2" {
		t.Fatalf("expected w2, got %+v", w)
	}
}

func TestSelectWorker_NoEligibleReturnsNil(t *testing.T) {
	workers := []*models.Worker{
		{ID: "w1", Status: models.WorkerStatusBusy, Capabilities: []string{"python", "go"}},
	}
	if w := SelectWorker(workers, []string{"python"}, nil); w != nil {
		t.Fatalf("expected nil, got %+v", w)
	}
}

func TestScoreComplexity_EpicIsComplex(t *testing.T) {
	b := &models.Bead{Type: models.BeadTypeEpic}
	if ScoreComplexity(b) != ComplexityComplex {
		t.Fatalf("expected complex")
	}
}

func TestRouteModelTier(t *testing.T) {
	if RouteModelTier(ComplexitySimple) != TierFast {
		t.Fatalf("expected fast tier")
	}
	if RouteModelTier(ComplexityComplex) != TierPowerful {
		t.Fatalf("expected powerful tier")
	}
}
