// Package enrichment assembles the per-task prompt (C5): nine ordered
// stages, each operating under the remaining token budget, producing an
// AssembledPrompt with a stable content hash. Grounded stage-for-stage on
// the original Python ringmaster's src/ringmaster/enricher/*.py.
package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ringmaster-dev/ringmaster/internal/logging"
	"github.com/ringmaster-dev/ringmaster/internal/memory"
	"github.com/ringmaster-dev/ringmaster/internal/metrics"
	"github.com/ringmaster-dev/ringmaster/internal/models"
)

// EstimateTokens mirrors the original's char/4 heuristic used everywhere
// a token count is needed without invoking a real tokenizer.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}

// StageResult is what an individual stage contributes, or nil if it has
// nothing to add for this task.
type StageResult struct {
	Content        string
	TokensEstimate int
	Sources        []string
}

// Metrics summarizes one pipeline run for ContextAssemblyLog.
type Metrics struct {
	EstimatedTokens    int
	StagesApplied      []string
	CompressionApplied bool
	AssemblyMillis     int64
}

// AssembledPrompt is the pipeline's output, ready to hand to a worker.
type AssembledPrompt struct {
	SystemPrompt string
	UserPrompt   string
	ContextHash  string
	Metrics      Metrics
}

// Budget is the config.EnrichmentConfig subset the pipeline needs.
type Budget struct {
	TotalMaxTokens          int
	CodeContextMaxTokens    int
	CodeContextMaxFiles     int
	CodeContextMaxFileLines int
	DeploymentMaxTokens     int
	DeploymentMaxFiles      int
	HistoryRecentVerbatim   int
	HistorySummaryThreshold int
	HistoryChunkSize        int
	HistoryMaxTokens        int
}

// DefaultBudget matches the defaults named throughout spec.md.
func DefaultBudget() Budget {
	return Budget{
		TotalMaxTokens:          100000,
		CodeContextMaxTokens:    12000,
		CodeContextMaxFiles:     10,
		CodeContextMaxFileLines: 500,
		DeploymentMaxTokens:     3000,
		DeploymentMaxFiles:      8,
		HistoryRecentVerbatim:   10,
		HistorySummaryThreshold: 20,
		HistoryChunkSize:        10,
		HistoryMaxTokens:        4000,
	}
}

// HistoryStore is the subset of store.Store the history_context stage needs.
type HistoryStore interface {
	RecentMessages(taskID string, limit int) ([]*models.ChatMessage, error)
	CountMessages(taskID string) (int, error)
	SummariesForTask(taskID string) ([]*models.Summary, error)
	MessagesInRange(taskID string, startID, endID int64) ([]*models.ChatMessage, error)
	AddSummary(s *models.Summary) error
}

// ResearchStore is the subset of store.Store the research_context stage needs.
type ResearchStore interface {
	SimilarOutcomes(projectID string, beadType models.BeadType, limit int) ([]*models.TaskOutcome, error)
}

// Input bundles everything a pipeline run needs to build a prompt.
type Input struct {
	Bead        *models.Bead
	Project     *models.Project
	ProjectDir  string
	History     HistoryStore          // nil disables history_context
	Research    ResearchStore         // nil disables research_context
	Memory      *memory.MemoryManager // nil disables the project_context memory summary
	RecentLogs  []string              // task/project-scoped ERROR/CRITICAL lines, last 24h
}

// Pipeline runs the nine stages in order against a token budget.
type Pipeline struct {
	budget Budget
	log    *logging.Logger

	// Stats and Tracer are optional; nil disables instrumentation
	// (unit tests never set them).
	Stats  *metrics.Registry
	Tracer trace.Tracer
}

// New returns a Pipeline with the given budget (DefaultBudget() if zero-valued).
func New(budget Budget) *Pipeline {
	if budget.TotalMaxTokens == 0 {
		budget = DefaultBudget()
	}
	return &Pipeline{budget: budget, log: logging.For("enrichment")}
}

// Budget returns the token budget this pipeline assembles under.
func (p *Pipeline) Budget() Budget {
	return p.budget
}

type stageFunc func(p *Pipeline, in Input, remaining int) *StageResult

// stages runs in this exact order; every entry is named for the
// ContextAssemblyLog.StagesRun audit trail.
var stageOrder = []struct {
	name string
	fn   stageFunc
}{
	{"task_context", (*Pipeline).taskContextStage},
	{"project_context", (*Pipeline).projectContextStage},
	{"code_context", (*Pipeline).codeContextStage},
	{"documentation_context", (*Pipeline).documentationContextStage},
	{"deployment_context", (*Pipeline).deploymentContextStage},
	{"history_context", (*Pipeline).historyContextStage},
	{"logs_context", (*Pipeline).logsContextStage},
	{"research_context", (*Pipeline).researchContextStage},
	{"refinement_context", (*Pipeline).refinementContextStage},
}

// Assemble runs every stage and concatenates their content into the user
// prompt; task_context + project_context are treated as system framing.
func (p *Pipeline) Assemble(ctx context.Context, in Input) AssembledPrompt {
	if p.Tracer != nil {
		var span trace.Span
		_, span = p.Tracer.Start(ctx, "enrichment.Assemble")
		defer span.End()
	}

	start := time.Now()
	remaining := p.budget.TotalMaxTokens

	var systemParts []string
	var userParts []string
	var applied []string
	compressed := false

	for _, st := range stageOrder {
		if remaining <= 0 {
			break
		}
		res := st.fn(p, in, remaining)
		if res == nil || res.Content == "" {
			continue
		}
		tokens := res.TokensEstimate
		if tokens == 0 {
			tokens = EstimateTokens(res.Content)
		}
		if tokens > remaining {
			// truncate to fit what's left, consistent with stages that
			// themselves apply a token budget internally.
			res.Content = truncateToTokens(res.Content, remaining)
			tokens = EstimateTokens(res.Content)
			compressed = true
		}
		remaining -= tokens
		applied = append(applied, st.name)

		switch st.name {
		case "task_context", "project_context":
			systemParts = append(systemParts, res.Content)
		default:
			userParts = append(userParts, res.Content)
		}
	}

	systemPrompt := joinSections(systemParts)
	userPrompt := joinSections(userParts)

	out := AssembledPrompt{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		ContextHash:  ContextHash(systemPrompt, userPrompt),
		Metrics: Metrics{
			EstimatedTokens:    p.budget.TotalMaxTokens - remaining,
			StagesApplied:      applied,
			CompressionApplied: compressed,
			AssemblyMillis:     time.Since(start).Milliseconds(),
		},
	}

	if p.Stats != nil {
		projectID := "unknown"
		if in.Project != nil {
			projectID = in.Project.ID
		}
		p.Stats.ContextAssemblyDuration.WithLabelValues(projectID).Observe(time.Since(start).Seconds())
	}

	return out
}

// ContextHash is a stable 16-hex digest over system_prompt + "\n---\n" + user_prompt.
func ContextHash(systemPrompt, userPrompt string) string {
	sum := sha256.Sum256([]byte(systemPrompt + "\n---\n" + userPrompt))
	return hex.EncodeToString(sum[:])[:16]
}

func joinSections(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

func truncateToTokens(s string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(s) <= maxChars {
		return s
	}
	if maxChars < 0 {
		maxChars = 0
	}
	return s[:maxChars] + "\n... (truncated for token budget)"
}
