package enrichment

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var strongDeployKeywords = []string{
	"deploy", "deployment", "kubernetes", "k8s", "docker", "helm", "production",
	"staging", "cluster", "container", "orchestration", "rollout", "release",
	"pipeline", "ci/cd", "infrastructure", "terraform",
}
var mediumDeployKeywords = []string{
	"config", "environment", "env", "secret", "credential", "yaml", "build", "image", "registry", "namespace",
}

var secretKeyPattern = regexp.MustCompile(`(?i)password|secret|api[_-]?key|access[_-]?key|private[_-]?key|token|credential|auth|bearer|jwt|connection[_-]?string|database[_-]?url`)

var k8sDirs = []string{"k8s", "kubernetes", "manifests", "deploy", "deployment", "deployments", "charts", "helm"}

type deployFile struct {
	label     string
	relPath   string
	content   string
	relevance float64
}

// deploymentContextStage is gated by task relevance against strong/medium
// keyword lists (threshold 0.3). Grounded on
// original_source/enricher/deployment_context.py.
func (p *Pipeline) deploymentContextStage(in Input, remaining int) *StageResult {
	if in.ProjectDir == "" || in.Bead == nil {
		return nil
	}
	taskText := strings.ToLower(in.Bead.Title + " " + in.Bead.Description)
	relevance := deploymentTaskRelevance(taskText)
	if relevance < 0.3 {
		return nil
	}

	maxTokens := p.budget.DeploymentMaxTokens
	if maxTokens > remaining {
		maxTokens = remaining
	}
	maxFiles := p.budget.DeploymentMaxFiles

	var files []deployFile
	files = append(files, collectEnvFiles(in.ProjectDir)...)
	files = append(files, collectComposeFiles(in.ProjectDir)...)
	files = append(files, collectK8sManifests(in.ProjectDir)...)
	files = append(files, collectHelmValues(in.ProjectDir)...)
	files = append(files, collectCICDConfigs(in.ProjectDir)...)

	if len(files) == 0 {
		return nil
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].relevance > files[j].relevance })
	if len(files) > maxFiles {
		files = files[:maxFiles]
	}

	packed, truncatedFiles := applyDeploymentTokenBudget(files, maxTokens)
	if len(packed) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("## Deployment Context\n\n_Sensitive values redacted_\n\n")
	for _, f := range packed {
		sb.WriteString(fmt.Sprintf("### %s: %s\n\n```\n%s\n```\n\n", f.label, f.relPath, f.content))
	}
	if truncatedFiles {
		sb.WriteString("_Some deployment files omitted for token budget_\n")
	}
	return &StageResult{Content: sb.String()}
}

func deploymentTaskRelevance(taskText string) float64 {
	score := 0.0
	for _, kw := range strongDeployKeywords {
		if strings.Contains(taskText, kw) {
			score += 0.15
		}
	}
	for _, kw := range mediumDeployKeywords {
		if strings.Contains(taskText, kw) {
			score += 0.08
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// applyDeploymentTokenBudget truncates whole files (no partial
// truncation, unlike code_context) once max_files or the token budget
// is exceeded.
func applyDeploymentTokenBudget(files []deployFile, maxTokens int) ([]deployFile, bool) {
	var packed []deployFile
	remaining := maxTokens
	dropped := false
	for _, f := range files {
		tokens := EstimateTokens(f.content)
		if tokens <= remaining {
			packed = append(packed, f)
			remaining -= tokens
		} else {
			dropped = true
		}
	}
	return packed, dropped
}

func collectEnvFiles(root string) []deployFile {
	var out []deployFile
	matches, _ := filepath.Glob(filepath.Join(root, ".env*"))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		rel, _ := filepath.Rel(root, m)
		out = append(out, deployFile{label: "Environment", relPath: rel, content: redactEnvFile(string(data)), relevance: 0.5})
	}
	return out
}

func collectComposeFiles(root string) []deployFile {
	var out []deployFile
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		full := filepath.Join(root, name)
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		out = append(out, deployFile{label: "Docker Compose", relPath: name, content: redactYAML(string(data)), relevance: 0.6})
	}
	return out
}

func collectK8sManifests(root string) []deployFile {
	var out []deployFile
	for _, dir := range k8sDirs {
		full := filepath.Join(root, dir)
		entries, err := os.ReadDir(full)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !(strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
				continue
			}
			path := filepath.Join(full, e.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			content := string(data)
			if !strings.Contains(content, "kind:") || !strings.Contains(content, "apiVersion:") {
				continue
			}
			rel, _ := filepath.Rel(root, path)
			out = append(out, deployFile{label: "Kubernetes", relPath: rel, content: redactYAML(content), relevance: 0.6})
		}
	}
	return out
}

func collectHelmValues(root string) []deployFile {
	var out []deployFile
	matches, _ := filepath.Glob(filepath.Join(root, "**", "values*.yaml"))
	extra, _ := filepath.Glob(filepath.Join(root, "values*.yaml"))
	matches = append(matches, extra...)
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		rel, _ := filepath.Rel(root, m)
		out = append(out, deployFile{label: "Helm Values", relPath: rel, content: redactYAML(string(data)), relevance: 0.55})
	}
	return out
}

func collectCICDConfigs(root string) []deployFile {
	var out []deployFile
	matches, _ := filepath.Glob(filepath.Join(root, ".github", "workflows", "*.yml"))
	extra, _ := filepath.Glob(filepath.Join(root, ".github", "workflows", "*.yaml"))
	matches = append(matches, extra...)
	if data, err := os.ReadFile(filepath.Join(root, ".gitlab-ci.yml")); err == nil {
		matches = append(matches, filepath.Join(root, ".gitlab-ci.yml"))
		_ = data
	}
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		rel, _ := filepath.Rel(root, m)
		out = append(out, deployFile{label: "CI/CD Config", relPath: rel, content: redactYAML(string(data)), relevance: 0.5})
	}
	return out
}

// isSensitiveKey reports whether a KEY=value or YAML key looks like a secret.
func isSensitiveKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}

func redactEnvFile(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if isSensitiveKey(parts[0]) {
			lines[i] = parts[0] + "=<REDACTED>"
		}
	}
	return strings.Join(lines, "\n")
}

func redactYAML(content string) string {
	var docs []any
	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var doc any
		if err := dec.Decode(&doc); err != nil {
			break
		}
		docs = append(docs, redactYAMLValue(doc))
	}
	if len(docs) == 0 {
		return redactYAMLLines(content)
	}
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return redactYAMLLines(content)
		}
	}
	enc.Close()
	return sb.String()
}

func redactYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			if _, ok := sub.(string); ok && isSensitiveKey(k) {
				out[k] = "<REDACTED>"
			} else {
				out[k] = redactYAMLValue(sub)
			}
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(val))
		for k, sub := range val {
			ks, _ := k.(string)
			if _, ok := sub.(string); ok && isSensitiveKey(ks) {
				out[k] = "<REDACTED>"
			} else {
				out[k] = redactYAMLValue(sub)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = redactYAMLValue(sub)
		}
		return out
	default:
		return v
	}
}

var yamlLineKVRe = regexp.MustCompile(`^(\s*)(\S+):\s*(.+)$`)

// redactYAMLLines is the line-by-line fallback when YAML parsing fails,
// skipping block-scalar values that start with | or >.
func redactYAMLLines(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		m := yamlLineKVRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.Trim(m[2], `"'`)
		value := strings.TrimSpace(m[3])
		if strings.HasPrefix(value, "|") || strings.HasPrefix(value, ">") {
			continue
		}
		if isSensitiveKey(key) {
			lines[i] = m[1] + m[2] + ": <REDACTED>"
		}
	}
	return strings.Join(lines, "\n")
}
