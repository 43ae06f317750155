package enrichment

import (
	"strings"
)

var debugKeywords = []string{
	"fix", "debug", "investigate", "error", "bug", "crash", "fail", "broken",
	"exception", "performance", "slow", "timeout", "regression", "flaky",
}

// logsContextStage is gated by a debug-flavored keyword in the task text;
// it surfaces recent ERROR/CRITICAL lines already collected by the caller
// (task-scoped first, then project-scoped), deduplicated. Grounded on
// original_source/enricher/logs_context.py.
func (p *Pipeline) logsContextStage(in Input, remaining int) *StageResult {
	if in.Bead == nil || len(in.RecentLogs) == 0 {
		return nil
	}
	taskText := strings.ToLower(in.Bead.Title + " " + in.Bead.Description)
	if !matchesAny(taskText, debugKeywords) {
		return nil
	}

	seen := map[string]bool{}
	var lines []string
	for _, l := range in.RecentLogs {
		if seen[l] {
			continue
		}
		seen[l] = true
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return nil
	}

	content := "## Recent Logs\n\n_Last 24h, ERROR/CRITICAL only_\n\n```\n" + strings.Join(lines, "\n") + "\n```\n"
	return &StageResult{Content: content}
}
