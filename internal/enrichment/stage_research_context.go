package enrichment

import (
	"fmt"
	"strings"
)

const researchSimilarityThreshold = 0.3
const researchMaxResults = 3

// researchContextStage is gated by the store having any completed tasks
// of the same bead type for this project; candidates are scored by
// keyword-set Jaccard overlap against the current task and the top
// matches above the similarity threshold are surfaced as prior outcomes.
// Grounded on original_source/enricher/research_context.py and C11's
// find_similar.
func (p *Pipeline) researchContextStage(in Input, remaining int) *StageResult {
	if in.Research == nil || in.Bead == nil {
		return nil
	}
	candidates, err := in.Research.SimilarOutcomes(in.Bead.ProjectID, in.Bead.Type, researchMaxResults*4)
	if err != nil || len(candidates) == 0 {
		return nil
	}

	taskWords := keywordSet(extractKeywords(in.Bead.Title + " " + in.Bead.Description))

	type scored struct {
		score   float64
		success bool
		reflect string
		model   string
	}
	var results []scored
	for _, c := range candidates {
		if c.BeadID == in.Bead.ID {
			continue
		}
		candWords := keywordSet(c.Keywords)
		score := jaccard(taskWords, candWords)
		if score < researchSimilarityThreshold {
			continue
		}
		results = append(results, scored{score: score, success: c.Success, reflect: c.Reflection, model: c.ModelUsed})
	}
	if len(results) == 0 {
		return nil
	}

	// highest similarity first, stable on ties
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].score > results[j-1].score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	if len(results) > researchMaxResults {
		results = results[:researchMaxResults]
	}

	var sb strings.Builder
	sb.WriteString("## Related Prior Outcomes\n\n")
	for _, r := range results {
		outcome := "succeeded"
		if !r.success {
			outcome = "failed"
		}
		sb.WriteString(fmt.Sprintf("- (similarity %.2f, %s", r.score, outcome))
		if r.model != "" {
			sb.WriteString(fmt.Sprintf(", model %s", r.model))
		}
		sb.WriteString("): " + r.reflect + "\n")
	}
	return &StageResult{Content: sb.String()}
}

func keywordSet(words []string) map[string]bool {
	set := map[string]bool{}
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
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
