package routing

import (
	"sort"
	"strings"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

// SuccessRater looks up a worker's historical success rate, backing the
// tie-break in capability matching. Satisfied by a reasoningbank.Bank.
type SuccessRater interface {
	WorkerSuccessRate(workerID string) (rate float64, samples int)
}

// hasAllCapabilities reports whether worker covers every capability required.
func hasAllCapabilities(worker *models.Worker, required []string) bool {
	have := make(map[string]bool, len(worker.Capabilities))
	for _, c := range worker.Capabilities {
		have[c] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

// SelectWorker picks the best idle worker for a bead's required
// capabilities: candidates are filtered to those whose capability set is
// a superset of what's required, then ranked by historical success rate
// (candidates with fewer than 3 samples rank after those with 3 or more),
// falling back to raw tasks_completed when no rater is available or no
// candidate has enough samples.
func SelectWorker(candidates []*models.Worker, required []string, rater SuccessRater) *models.Worker {
	var eligible []*models.Worker
	for _, w := range candidates {
		if w.Status != models.WorkerStatusIdle {
			continue
		}
		if hasAllCapabilities(w, required) {
			eligible = append(eligible, w)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	type scored struct {
		worker  *models.Worker
		rate    float64
		samples int
	}
	var ranked []scored
	for _, w := range eligible {
		rate, samples := 0.0, 0
		if rater != nil {
			rate, samples = rater.WorkerSuccessRate(w.ID)
		}
		ranked = append(ranked, scored{worker: w, rate: rate, samples: samples})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		iHasSamples := ranked[i].samples >= 3
		jHasSamples := ranked[j].samples >= 3
		if iHasSamples != jHasSamples {
			return iHasSamples
		}
		if iHasSamples && jHasSamples && ranked[i].rate != ranked[j].rate {
			return ranked[i].rate > ranked[j].rate
		}
		return ranked[i].worker.TasksCompleted > ranked[j].worker.TasksCompleted
	})

	return ranked[0].worker
}

// ModelTier is the coarse routing bucket a bead's complexity maps to.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierBalanced ModelTier = "balanced"
	TierPowerful ModelTier = "powerful"
)

// Complexity is the scored bucket a bead is sorted into before tiering.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

var complexKeywords = []string{
	"architecture", "migrate", "migration", "redesign", "refactor", "concurrency",
	"race condition", "distributed", "security", "performance", "optimize",
}
var simpleKeywords = []string{
	"typo", "rename", "comment", "log message", "bump version", "formatting", "docs",
}

// ScoreComplexity is a coarse heuristic over a bead's type, description
// length, and keyword content; it never calls out to a model itself.
func ScoreComplexity(b *models.Bead) Complexity {
	text := strings.ToLower(b.Title + " " + b.Description)
	if b.Type == models.BeadTypeEpic {
		return ComplexityComplex
	}
	for _, kw := range complexKeywords {
		if strings.Contains(text, kw) {
			return ComplexityComplex
		}
	}
	for _, kw := range simpleKeywords {
		if strings.Contains(text, kw) {
			return ComplexitySimple
		}
	}
	if len(b.Description) > 1200 {
		return ComplexityComplex
	}
	if len(b.Description) < 200 {
		return ComplexitySimple
	}
	return ComplexityModerate
}

// RouteModelTier maps a complexity bucket to a model tier.
func RouteModelTier(c Complexity) ModelTier {
	switch c {
	case ComplexitySimple:
		return TierFast
	case ComplexityComplex:
		return TierPowerful
	default:
		return TierBalanced
	}
}
