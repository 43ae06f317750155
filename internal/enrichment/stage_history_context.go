package enrichment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

var keyDecisionRe = regexp.MustCompile(`(?i)\b(decided|we will|going with|chose|instead of|let's use|agreed to)\b`)

var actionVerbRe = regexp.MustCompile(`(?i)\b(add|fix|refactor|implement|remove|rename|update|investigate|migrate)\b`)

var pathRe = regexp.MustCompile(`\b[\w./-]+\.[a-zA-Z0-9]{1,5}\b`)

// historyContextStage is the RLM summarizer: the most recent
// recent_verbatim messages are kept verbatim; once the task has more than
// summary_threshold messages, the older messages not already covered by
// an existing models.Summary are folded into chunked summaries of
// chunk_size messages each. Grounded on
// original_source/enricher/history_context.py's RollingSummaryMemory.
func (p *Pipeline) historyContextStage(in Input, remaining int) *StageResult {
	if in.History == nil || in.Bead == nil {
		return nil
	}
	taskID := in.Bead.ID

	total, err := in.History.CountMessages(taskID)
	if err != nil || total == 0 {
		return nil
	}

	maxTokens := p.budget.HistoryMaxTokens
	if maxTokens > remaining {
		maxTokens = remaining
	}

	verbatimN := p.budget.HistoryRecentVerbatim
	recent, err := in.History.RecentMessages(taskID, verbatimN)
	if err != nil {
		return nil
	}

	var sb strings.Builder
	sections := 0

	if total > p.budget.HistorySummaryThreshold {
		existing, _ := in.History.SummariesForTask(taskID)
		covered := int64(0)
		for _, s := range existing {
			if s.EndMsgID > covered {
				covered = s.EndMsgID
			}
		}

		firstUncoveredID := covered + 1
		var lastRecentID int64
		if len(recent) > 0 {
			lastRecentID = recent[0].ID
		}

		if firstUncoveredID < lastRecentID {
			msgs, _ := in.History.MessagesInRange(taskID, firstUncoveredID, lastRecentID-1)
			newSummaries := summarizeInChunks(msgs, p.budget.HistoryChunkSize)
			for _, ns := range newSummaries {
				ns.TaskID = taskID
				_ = in.History.AddSummary(ns)
			}
			existing = append(existing, newSummaries...)
		}

		if len(existing) > 0 {
			decisions := extractKeyDecisions(existing)
			if len(decisions) > 0 {
				sb.WriteString("### Key Decisions\n\n")
				for _, d := range decisions {
					sb.WriteString("- " + d + "\n")
				}
				sb.WriteString("\n")
				sections++
			}
			sb.WriteString("### Summary of Earlier Discussion\n\n")
			for _, s := range existing {
				sb.WriteString(s.Text + "\n\n")
			}
			sections++
		}
	}

	if len(recent) > 0 {
		sb.WriteString("### Recent Messages\n\n")
		for _, m := range recent {
			sb.WriteString(fmt.Sprintf("**%s**: %s\n\n", m.Role, m.Content))
		}
		sections++
	}

	if sections == 0 {
		return nil
	}

	content := "## Conversation History\n\n" + sb.String()
	if EstimateTokens(content) > maxTokens {
		content = truncateToTokens(content, maxTokens)
	}
	return &StageResult{Content: content}
}

// summarizeInChunks folds chunk_size messages at a time into one
// models.Summary each, oldest chunk first.
func summarizeInChunks(msgs []*models.ChatMessage, chunkSize int) []*models.Summary {
	var out []*models.Summary
	for i := 0; i < len(msgs); i += chunkSize {
		end := i + chunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[i:end]
		if len(chunk) == 0 {
			continue
		}
		out = append(out, &models.Summary{
			StartMsgID: chunk[0].ID,
			EndMsgID:   chunk[len(chunk)-1].ID,
			Text:       summarizeChunk(chunk),
		})
	}
	return out
}

func summarizeChunk(chunk []*models.ChatMessage) string {
	pathSet := map[string]bool{}
	var paths []string
	var questions []string
	verbSet := map[string]bool{}
	var verbs []string

	for _, m := range chunk {
		for _, path := range pathRe.FindAllString(m.Content, -1) {
			if !pathSet[path] {
				pathSet[path] = true
				paths = append(paths, path)
			}
		}
		if m.Role == "user" && strings.Contains(m.Content, "?") {
			questions = append(questions, firstSentence(m.Content))
		}
		for _, v := range actionVerbRe.FindAllString(m.Content, -1) {
			lv := strings.ToLower(v)
			if !verbSet[lv] {
				verbSet[lv] = true
				verbs = append(verbs, lv)
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d messages", len(chunk)))
	if len(verbs) > 0 {
		sb.WriteString(" covering: " + strings.Join(verbs, ", "))
	}
	if len(paths) > 0 {
		sb.WriteString(". Files touched: " + strings.Join(paths, ", "))
	}
	if len(questions) > 0 {
		sb.WriteString(". Questions raised: " + strings.Join(questions, "; "))
	}
	return sb.String()
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".?!\n"); idx >= 0 && idx < 150 {
		return s[:idx+1]
	}
	if len(s) > 150 {
		return s[:150] + "..."
	}
	return s
}

// extractKeyDecisions scans summary content for decision-marker phrases,
// truncates each to 150 chars, dedups, and caps at 15.
func extractKeyDecisions(summaries []*models.Summary) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range summaries {
		for _, sentence := range strings.Split(s.Text, ". ") {
			if !keyDecisionRe.MatchString(sentence) {
				continue
			}
			d := strings.TrimSpace(sentence)
			if len(d) > 150 {
				d = d[:150] + "..."
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
			if len(out) >= 15 {
				return out
			}
		}
	}
	return out
}
