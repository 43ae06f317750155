package reasoningbank

import (
	"errors"
	"testing"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

type fakeRepo struct {
	outcomes []*models.TaskOutcome
	rates    map[string]float64
	samples  map[string]int
	recorded []*models.TaskOutcome
}

func (f *fakeRepo) Record(o *models.TaskOutcome) error {
	f.recorded = append(f.recorded, o)
	return nil
}

func (f *fakeRepo) SimilarOutcomes(projectID string, beadType models.BeadType, limit int) ([]*models.TaskOutcome, error) {
	return f.outcomes, nil
}

func (f *fakeRepo) ModelSuccessRate(projectID, modelUsed string) (float64, int, error) {
	if f.rates == nil {
		return 0, 0, errors.New("no data")
	}
	rate, ok := f.rates[modelUsed]
	if !ok {
		return 0, 0, nil
	}
	return rate, f.samples[modelUsed], nil
}

func TestFindSimilar_FiltersBelowThreshold(t *testing.T) {
	repo := &fakeRepo{outcomes: []*models.TaskOutcome{
		{BeadID: "t1", Keywords: []string{"parser", "token"}, FileCount: 2},
		{BeadID: "t2", Keywords: []string{"unrelated", "stuff"}, FileCount: 9},
	}}
	bank := New(repo)
	matches, err := bank.FindSimilar("proj", models.BeadTypeTask, []string{"parser", "token", "lexer"}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Outcome.BeadID != "t1" {
		t.Fatalf("expected only t1 to match, got %+v", matches)
	}
}

func TestModelSuccessRates_EnforcesMinSamples(t *testing.T) {
	repo := &fakeRepo{
		rates:   map[string]float64{"fast-model": 0.9, "slow-model": 0.5},
		samples: map[string]int{"fast-model": 5, "slow-model": 1},
	}
	bank := New(repo)
	rates := bank.ModelSuccessRates("proj", []string{"fast-model", "slow-model"})
	if _, ok := rates["slow-model"]; ok {
		t.Fatalf("expected slow-model to be excluded for insufficient samples")
	}
	if rates["fast-model"] != 0.9 {
		t.Fatalf("expected fast-model rate 0.9, got %v", rates["fast-model"])
	}
}
