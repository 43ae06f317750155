package enrichment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var readmeCandidates = []string{"README.md", "README.rst", "README.txt", "README"}
var conventionCandidates = []string{"CONVENTIONS.md", "STYLE.md", "CONTRIBUTING.md"}
var adrDirs = []string{"docs/adr", "docs/decisions", "adr", "architecture/decisions"}

var apiKeywords = []string{"api", "endpoint", "route", "rest", "graphql", "schema", "openapi"}
var architectureKeywords = []string{"architecture", "design", "system", "component", "module boundary"}

// documentationContextStage always runs: README + conventions files are
// unconditional; an ADR is included when its file name overlaps the task
// words with a score of at least 0.3, and the API spec and architecture
// doc are included when the task text contains one of their keywords.
func (p *Pipeline) documentationContextStage(in Input, remaining int) *StageResult {
	if in.ProjectDir == "" {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("## Documentation Context\n\n")
	found := false

	for _, name := range readmeCandidates {
		if data, err := os.ReadFile(filepath.Join(in.ProjectDir, name)); err == nil {
			sb.WriteString(fmt.Sprintf("### %s\n\n%s\n\n", name, truncateDoc(string(data))))
			found = true
			break
		}
	}
	for _, name := range conventionCandidates {
		if data, err := os.ReadFile(filepath.Join(in.ProjectDir, name)); err == nil {
			sb.WriteString(fmt.Sprintf("### %s\n\n%s\n\n", name, truncateDoc(string(data))))
			found = true
		}
	}

	taskText := ""
	if in.Bead != nil {
		taskText = strings.ToLower(in.Bead.Title + " " + in.Bead.Description)
	}
	taskWords := strings.Fields(taskText)

	for _, dir := range adrDirs {
		full := filepath.Join(in.ProjectDir, dir)
		entries, err := os.ReadDir(full)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			score := titleOverlapScore(e.Name(), taskWords)
			if score < 0.3 {
				continue
			}
			if data, err := os.ReadFile(filepath.Join(full, e.Name())); err == nil {
				sb.WriteString(fmt.Sprintf("### ADR: %s\n\n%s\n\n", e.Name(), truncateDoc(string(data))))
				found = true
			}
		}
	}

	if matchesAny(taskText, apiKeywords) {
		if content, ok := readFirstExisting(in.ProjectDir, "docs/api.md", "API.md", "openapi.yaml", "openapi.yml"); ok {
			sb.WriteString("### API Specification\n\n" + truncateDoc(content) + "\n\n")
			found = true
		}
	}
	if matchesAny(taskText, architectureKeywords) {
		if content, ok := readFirstExisting(in.ProjectDir, "docs/architecture.md", "ARCHITECTURE.md"); ok {
			sb.WriteString("### Architecture\n\n" + truncateDoc(content) + "\n\n")
			found = true
		}
	}

	if !found {
		return nil
	}
	return &StageResult{Content: sb.String()}
}

func truncateDoc(s string) string {
	const max = 4000
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}

func matchesAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func readFirstExisting(root string, candidates ...string) (string, bool) {
	for _, c := range candidates {
		if data, err := os.ReadFile(filepath.Join(root, c)); err == nil {
			return string(data), true
		}
	}
	return "", false
}

// titleOverlapScore is a coarse filename-vs-task-word overlap measure.
func titleOverlapScore(filename string, taskWords []string) float64 {
	name := strings.ToLower(strings.TrimSuffix(filename, filepath.Ext(filename)))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	nameWords := strings.Fields(name)
	if len(nameWords) == 0 || len(taskWords) == 0 {
		return 0
	}
	taskSet := map[string]bool{}
	for _, w := range taskWords {
		taskSet[w] = true
	}
	hits := 0
	for _, w := range nameWords {
		if taskSet[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(nameWords))
}
