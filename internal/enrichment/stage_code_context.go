package enrichment

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var codeExtensions = map[string]bool{
	".py": true, ".rs": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".go": true, ".java": true, ".rb": true, ".c": true, ".cpp": true, ".h": true,
	".cs": true, ".swift": true, ".kt": true, ".scala": true, ".clj": true,
}

var ignoreDirs = map[string]bool{
	".git": true, "__pycache__": true, "node_modules": true, ".venv": true,
	"target": true, "dist": true, "build": true, ".next": true, "coverage": true,
}

var explicitMentionRe = regexp.MustCompile(`(?:^|[\s` + "`" + `"'(])([a-zA-Z0-9_/.-]+\.[a-zA-Z0-9]+)`)
var camelCaseRe = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]{2,}\b`)
var snakeCaseRe = regexp.MustCompile(`\b[a-z][a-z0-9_]{2,}_[a-z0-9_]+\b`)

var keywordStopWords = map[string]bool{
	"The": true, "This": true, "That": true, "When": true, "TODO": true,
}

type codeFile struct {
	relPath   string
	relevance float64
	reason    string
	lines     []string
	truncated bool
}

// codeContextStage always runs: walks the project tree, scores candidate
// source files by explicit mention and keyword match, then packs the
// highest-relevance files into the remaining budget. Imports of the
// selected files are not traced.
// Grounded on original_source/enricher/code_context.py's extract().
func (p *Pipeline) codeContextStage(in Input, remaining int) *StageResult {
	if in.ProjectDir == "" {
		return nil
	}
	maxFiles := p.budget.CodeContextMaxFiles
	maxLines := p.budget.CodeContextMaxFileLines
	maxTokens := p.budget.CodeContextMaxTokens
	if maxTokens > remaining {
		maxTokens = remaining
	}

	taskText := ""
	if in.Bead != nil {
		taskText = in.Bead.Title + " " + in.Bead.Description
	}

	candidates := walkSourceFiles(in.ProjectDir)
	scored := scoreCandidates(candidates, taskText, in.ProjectDir, maxLines)
	if len(scored) == 0 {
		return nil
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].relevance > scored[j].relevance })
	if len(scored) > maxFiles {
		scored = scored[:maxFiles]
	}

	packed := applyTokenBudgetPartial(scored, maxTokens)
	if len(packed) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("## Code Context\n\n")
	var sources []string
	for _, f := range packed {
		sb.WriteString(fmt.Sprintf("### %s\n\n", f.relPath))
		sb.WriteString("```" + strings.TrimPrefix(filepath.Ext(f.relPath), ".") + "\n")
		sb.WriteString(strings.Join(f.lines, "\n"))
		sb.WriteString("\n```\n")
		if f.truncated {
			sb.WriteString("_(truncated for token budget)_\n")
		}
		sb.WriteString("\n")
		sources = append(sources, f.relPath)
	}

	return &StageResult{Content: sb.String(), Sources: sources}
}

func walkSourceFiles(root string) []string {
	var out []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if codeExtensions[filepath.Ext(d.Name())] {
			rel, err := filepath.Rel(root, path)
			if err == nil {
				out = append(out, rel)
			}
		}
		return nil
	})
	return out
}

func extractKeywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if !keywordStopWords[s] && !seen[s] && len(out) < 10 {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, m := range camelCaseRe.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range snakeCaseRe.FindAllString(text, -1) {
		add(m)
	}
	return out
}

func explicitMentions(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range explicitMentionRe.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 && !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func scoreCandidates(relPaths []string, taskText, root string, maxLines int) []codeFile {
	keywords := extractKeywords(taskText)
	mentions := explicitMentions(taskText)
	mentionSet := map[string]bool{}
	for _, m := range mentions {
		mentionSet[strings.ToLower(m)] = true
	}

	var out []codeFile
	for _, rel := range relPaths {
		relevance := 0.0
		reason := ""
		lower := strings.ToLower(rel)
		base := strings.ToLower(filepath.Base(rel))

		if mentionSet[base] || mentionSet[lower] {
			relevance = 1.0
			reason = "explicit_mention"
		} else {
			count := 0
			for _, kw := range keywords {
				if strings.Contains(lower, strings.ToLower(kw)) {
					count++
				}
			}
			if count > 0 {
				relevance = min(0.3+float64(count)*0.1, 0.9)
				for _, kw := range keywords {
					if strings.Contains(base, strings.ToLower(kw)) {
						relevance = min(relevance+0.2, 0.95)
						break
					}
				}
				reason = "keyword_match"
			}
		}

		if relevance <= 0 {
			continue
		}

		lines, truncated := readFileLines(filepath.Join(root, rel), maxLines)
		if lines == nil {
			continue
		}
		out = append(out, codeFile{relPath: rel, relevance: relevance, reason: reason, lines: lines, truncated: truncated})
	}
	return out
}

func readFileLines(path string, maxLines int) ([]string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > maxLines {
		return lines[:maxLines], true
	}
	return lines, false
}

// applyTokenBudgetPartial sorts by relevance (already sorted by caller),
// packs greedily, and allows the last file to be partially truncated if
// at least 500 tokens of budget remain, matching code_context.py.
func applyTokenBudgetPartial(files []codeFile, maxTokens int) []codeFile {
	var packed []codeFile
	remaining := maxTokens
	for _, f := range files {
		content := strings.Join(f.lines, "\n")
		tokens := EstimateTokens(content)
		if tokens <= remaining {
			packed = append(packed, f)
			remaining -= tokens
			continue
		}
		if remaining >= 500 {
			maxChars := remaining * 4
			if maxChars > len(content) {
				maxChars = len(content)
			}
			f.lines = strings.Split(content[:maxChars]+"\n... (truncated for token budget)", "\n")
			f.truncated = true
			packed = append(packed, f)
		}
		break
	}
	return packed
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
