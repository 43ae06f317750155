// Package reasoningbank implements the Reasoning Bank (C11): a
// similarity lookup over past task outcomes, used both to warn a worker
// about how similar work went before and to route beads to the model
// that has historically done best on tasks like them. Grounded on
// original_source/memory/reasoning_bank.py's find_similar and on
// store.ReasoningBankRepository for persistence.
package reasoningbank

import (
	"sort"
	"strings"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

const minSimilarity = 0.3
const minSuccessRateSamples = 3

// Repository is the persistence surface reasoningbank needs; satisfied
// by store.ReasoningBankRepository.
type Repository interface {
	Record(o *models.TaskOutcome) error
	SimilarOutcomes(projectID string, beadType models.BeadType, limit int) ([]*models.TaskOutcome, error)
	ModelSuccessRate(projectID, modelUsed string) (rate float64, samples int, err error)
}

// RateCache fronts the repository's per-(project,model) success-rate
// lookups so a busy scheduler doesn't recompute the same rollup from
// task_outcomes on every routing decision. Satisfied by *RedisRateCache;
// nil means no caching (every call hits the repository).
type RateCache interface {
	Get(projectID, modelUsed string) (rate float64, samples int, ok bool)
	Set(projectID, modelUsed string, rate float64, samples int)
}

// Bank wraps a Repository with the scoring and aggregation logic that
// turns raw outcome rows into recommendations.
type Bank struct {
	repo  Repository
	cache RateCache
}

func New(repo Repository) *Bank {
	return &Bank{repo: repo}
}

// WithCache attaches a RateCache (e.g. RedisRateCache) that fronts
// ModelSuccessRate lookups; returns b for chaining off New.
func (b *Bank) WithCache(cache RateCache) *Bank {
	b.cache = cache
	return b
}

func (b *Bank) modelSuccessRate(projectID, modelUsed string) (float64, int, error) {
	if b.cache != nil {
		if rate, samples, ok := b.cache.Get(projectID, modelUsed); ok {
			return rate, samples, nil
		}
	}
	rate, samples, err := b.repo.ModelSuccessRate(projectID, modelUsed)
	if err == nil && b.cache != nil {
		b.cache.Set(projectID, modelUsed, rate, samples)
	}
	return rate, samples, err
}

// Record stores a finished task's outcome for future similarity lookups.
func (b *Bank) Record(o *models.TaskOutcome) error {
	return b.repo.Record(o)
}

// Match pairs a candidate outcome with its similarity to the query bead.
type Match struct {
	Outcome    *models.TaskOutcome
	Similarity float64
}

// FindSimilar scores every past outcome of the same bead type against
// the query's keyword set and file count, keeping only matches at or
// above minSimilarity, highest similarity first.
func (b *Bank) FindSimilar(projectID string, beadType models.BeadType, keywords []string, fileCount int, limit int) ([]Match, error) {
	candidates, err := b.repo.SimilarOutcomes(projectID, beadType, limit*4)
	if err != nil {
		return nil, err
	}
	querySet := toSet(keywords)

	var matches []Match
	for _, c := range candidates {
		sim := similarity(querySet, toSet(c.Keywords), fileCount, c.FileCount)
		if sim < minSimilarity {
			continue
		}
		matches = append(matches, Match{Outcome: c, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// similarity combines keyword-set Jaccard (dominant signal) with a
// coarse file-count similarity term.
func similarity(a, b map[string]bool, fileCountA, fileCountB int) float64 {
	keywordScore := jaccard(a, b)
	fileScore := fileCountSimilarity(fileCountA, fileCountB)
	return 0.8*keywordScore + 0.2*fileScore
}

func fileCountSimilarity(a, b int) float64 {
	if a == 0 && b == 0 {
		return 1.0
	}
	max := a
	if b > max {
		max = b
	}
	if max == 0 {
		return 1.0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	score := 1.0 - float64(diff)/float64(max)
	if score < 0 {
		return 0
	}
	return score
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

// ModelSuccessRates returns the success rate for every model that has
// accumulated at least minSuccessRateSamples outcomes; models with fewer
// samples are left out of the map.
func (b *Bank) ModelSuccessRates(projectID string, models []string) map[string]float64 {
	out := make(map[string]float64, len(models))
	for _, m := range models {
		rate, samples, err := b.modelSuccessRate(projectID, m)
		if err != nil || samples < minSuccessRateSamples {
			continue
		}
		out[m] = rate
	}
	return out
}

// WorkerSuccessRate satisfies routing.SuccessRater by treating the
// worker's current assigned model (if any) as its rate proxy; callers
// that route by worker identity rather than model should pass the
// worker's configured model name here.
func (b *Bank) WorkerSuccessRate(workerModel string) (float64, int) {
	rate, samples, err := b.modelSuccessRate("", workerModel)
	if err != nil {
		return 0, 0
	}
	return rate, samples
}
