package enrichment

import (
	"context"
	"fmt"
)

// taskContextStage always runs: title, id, state, priority, attempt count.
func (p *Pipeline) taskContextStage(in Input, remaining int) *StageResult {
	b := in.Bead
	if b == nil {
		return nil
	}
	content := fmt.Sprintf(`## Task

- ID: %s
- Title: %s
- Status: %s
- Priority: P%d
- Attempt: %d/%d
- Type: %s

%s`, b.ID, b.Title, b.Status, int(b.Priority), b.Attempts, b.MaxAttempts, b.Type, b.Description)
	return &StageResult{Content: content}
}

// projectContextStage always runs: name, repo path, default branch.
func (p *Pipeline) projectContextStage(in Input, remaining int) *StageResult {
	proj := in.Project
	if proj == nil {
		return nil
	}
	content := fmt.Sprintf(`## Project

- Name: %s
- Repository: %s
- Default branch: %s
- Working directory: %s`, proj.Name, proj.RepoURL, proj.DefaultBranch, in.ProjectDir)

	if in.Memory != nil {
		summary, err := in.Memory.BuildContextSummary(context.Background(), proj.ID)
		if err == nil && summary != "" {
			content += "\n\n" + summary
		}
	}
	return &StageResult{Content: content}
}
