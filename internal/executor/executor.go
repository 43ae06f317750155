package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ringmaster-dev/ringmaster/internal/enrichment"
	"github.com/ringmaster-dev/ringmaster/internal/eventbus"
	"github.com/ringmaster-dev/ringmaster/internal/gitops"
	"github.com/ringmaster-dev/ringmaster/internal/hotreload"
	"github.com/ringmaster-dev/ringmaster/internal/logging"
	"github.com/ringmaster-dev/ringmaster/internal/memory"
	"github.com/ringmaster-dev/ringmaster/internal/metrics"
	"github.com/ringmaster-dev/ringmaster/internal/models"
	"github.com/ringmaster-dev/ringmaster/internal/monitor"
	"github.com/ringmaster-dev/ringmaster/internal/outcome"
	"github.com/ringmaster-dev/ringmaster/internal/outputbuf"
)

const defaultMonitorCheckInterval = 30 * time.Second

const (
	backoffBaseSeconds = 30
	backoffMaxSeconds  = 3600
)

// BackoffSeconds implements the exponential retry delay: base * 2^(n-1)
// capped at max, so attempts 1..N produce 30, 60, 120, 240, 480, ...
func BackoffSeconds(attempts int) int {
	if attempts < 1 {
		attempts = 1
	}
	delay := backoffBaseSeconds
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= backoffMaxSeconds {
			return backoffMaxSeconds
		}
	}
	return delay
}

// SessionSpawner starts one worker process for a resolved prompt and
// blocks until it finishes. Session satisfies this directly.
type SessionSpawner interface {
	Run(ctx context.Context, workerID string, buf *outputbuf.Buffer) SessionResult
}

// SpawnerFactory builds the session for a given command/working dir/prompt.
type SpawnerFactory func(command string, args []string, workingDir, prompt string) SessionSpawner

// ProjectStore, BeadStore, WorkerStore are the narrow persistence
// surfaces the executor needs, matching store.Store's repositories.
type ProjectStore interface {
	Get(id string) (*models.Project, error)
}

type BeadStore interface {
	Get(id string) (*models.Bead, error)
	Update(b *models.Bead) error
}

type WorkerStore interface {
	Get(id string) (*models.Worker, error)
	Upsert(w *models.Worker) error
}

type MetricsStore interface {
	Record(m *models.SessionMetric) error
}

type AssemblyLogStore interface {
	Record(l *models.ContextAssemblyLog) error
}

// OutcomeRecorder is satisfied by reasoningbank.Bank; it is optional.
type OutcomeRecorder interface {
	Record(o *models.TaskOutcome) error
}

// Executor runs the C8 lifecycle for one bead at a time, on whatever
// goroutine calls RunBead; the scheduler is responsible for concurrency.
type Executor struct {
	Projects     ProjectStore
	Beads        BeadStore
	Workers      WorkerStore
	Metrics      MetricsStore
	AssemblyLogs AssemblyLogStore
	Outcomes     OutcomeRecorder

	Worktrees *gitops.Manager
	Pipeline  *enrichment.Pipeline
	Output    *outputbuf.Buffer
	Events    *eventbus.Bus

	// AgentCommand/AgentArgs launch the external coding-agent process;
	// the assembled prompt is piped to its stdin.
	AgentCommand string
	AgentArgs    []string

	MonitorCheckInterval time.Duration
	NewSpawner           SpawnerFactory

	History  enrichment.HistoryStore
	Research enrichment.ResearchStore
	Memory   *memory.MemoryManager

	// Stats and Tracer are optional; nil disables Prometheus/OTel
	// instrumentation entirely (the unit tests never set them).
	Stats  *metrics.Registry
	Tracer trace.Tracer

	// HotReload, if enabled, reruns HotReloadCommand (auto-detected
	// when empty) on every worktree edit for the duration of the
	// worker session; off by default.
	HotReloadEnabled  bool
	HotReloadCommand  string
	HotReloadDebounce time.Duration
	HotReloadRecorder hotreload.Recorder

	log *logging.Logger
}

// New builds an Executor; AgentCommand/AgentArgs and NewSpawner must be
// set by the caller before RunBead is used (tests substitute a fake
// SpawnerFactory).
func New() *Executor {
	return &Executor{
		Output:               outputbuf.New(0),
		MonitorCheckInterval: defaultMonitorCheckInterval,
		log:                  logging.For("executor"),
	}
}

// RunBead executes the full 12-step lifecycle for one bead against one
// worker. Worker-session failures are recorded against the bead and do
// not propagate as an error unless the executor itself cannot proceed
// (missing project, missing worker, etc).
func (e *Executor) RunBead(ctx context.Context, beadID, workerID string) error {
	if e.Tracer != nil {
		var span trace.Span
		ctx, span = e.Tracer.Start(ctx, "executor.RunBead", trace.WithAttributes(
			attribute.String("bead_id", beadID),
			attribute.String("worker_id", workerID),
		))
		defer span.End()
	}

	bead, err := e.Beads.Get(beadID)
	if err != nil {
		return fmt.Errorf("load bead: %w", err)
	}
	proj, err := e.Projects.Get(bead.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	worker, err := e.Workers.Get(workerID)
	if err != nil {
		return fmt.Errorf("load worker: %w", err)
	}

	bead.Status = models.BeadStatusInProgress
	bead.Attempts++
	now := time.Now()
	bead.StartedAt = &now
	if err := e.Beads.Update(bead); err != nil {
		return fmt.Errorf("mark bead in_progress: %w", err)
	}
	e.publish(eventbus.EventBeadStatusChanged, bead.ProjectID, map[string]any{"bead_id": bead.ID, "status": bead.Status})

	worker.Status = models.WorkerStatusBusy
	worker.CurrentTaskID = bead.ID
	if err := e.Workers.Upsert(worker); err != nil {
		return fmt.Errorf("mark worker busy: %w", err)
	}
	if e.Stats != nil {
		e.Stats.RecordWorkerStatus(bead.ProjectID, worker.ID, string(worker.Status))
	}

	workingDir, err := e.resolveWorkingDir(proj, worker, bead)
	if err != nil {
		e.finishAsFailure(bead, worker, fmt.Sprintf("worktree resolution failed: %v", err))
		return nil
	}

	prompt := e.buildPrompt(ctx, bead, proj, workingDir)

	e.Output.Clear(worker.ID)

	start := time.Now()
	spawner := e.NewSpawner(e.AgentCommand, e.AgentArgs, workingDir, prompt)
	sessionCtx, cancel := context.WithCancel(ctx)
	resultCh := make(chan SessionResult, 1)
	go func() {
		resultCh <- spawner.Run(sessionCtx, worker.ID, e.Output)
	}()

	if e.HotReloadEnabled {
		watcher := hotreload.New(workingDir, bead.ID, worker.ID, e.HotReloadCommand, e.HotReloadDebounce)
		watcher.Recorder = e.HotReloadRecorder
		go func() {
			if err := watcher.Run(sessionCtx); err != nil {
				e.log.Warn("hot-reload watcher for bead %s: %v", bead.ID, err)
			}
		}()
	}

	tracker := monitor.NewTracker(e.MonitorCheckInterval * 10)
	ticker := time.NewTicker(e.monitorInterval())
	defer ticker.Stop()

	var result SessionResult
	var nextSeq int64
loop:
	for {
		select {
		case result = <-resultCh:
			break loop
		case <-ticker.C:
			for _, line := range e.Output.Snapshot(worker.ID) {
				if line.Seq < nextSeq {
					continue
				}
				tracker.RecordOutput(line.Text)
				nextSeq = line.Seq + 1
			}
			rec := tracker.RecommendRecovery()
			switch rec.Action {
			case monitor.ActionInterrupt, monitor.ActionCheckpointRestart:
				e.log.Warn("terminating worker %s session for bead %s: %s", worker.ID, bead.ID, rec.Reason)
				cancel()
			case monitor.ActionLogWarning:
				e.log.Warn("worker %s degrading on bead %s: %s", worker.ID, bead.ID, rec.Reason)
			}
		}
	}
	cancel()

	durationMillis := time.Since(start).Milliseconds()

	verdict := outcome.DetectWithFindings(outcome.TrimForDetection(result.Output, 8000), result.ExitCode, result.ExitCodeKnown)
	e.recordOutcome(bead, worker, verdict, durationMillis, result)
	e.persistDisposition(bead, verdict)

	worker.Status = models.WorkerStatusIdle
	worker.CurrentTaskID = ""
	if verdict.Disposition == outcome.DispositionSuccess {
		worker.TasksCompleted++
	} else if verdict.Disposition == outcome.DispositionFailure {
		worker.TasksFailed++
	}
	worker.LastActiveAt = time.Now()
	_ = e.Workers.Upsert(worker)
	if e.Stats != nil {
		e.Stats.RecordWorkerStatus(bead.ProjectID, worker.ID, string(worker.Status))
		e.Stats.TaskDuration.WithLabelValues(bead.ProjectID, string(bead.Type)).Observe(float64(durationMillis) / 1000.0)
		e.Stats.TasksTotal.WithLabelValues(bead.ProjectID, string(verdict.Disposition)).Inc()
	}

	return nil
}

func (e *Executor) monitorInterval() time.Duration {
	if e.MonitorCheckInterval <= 0 {
		return defaultMonitorCheckInterval
	}
	return e.MonitorCheckInterval
}

func (e *Executor) resolveWorkingDir(proj *models.Project, worker *models.Worker, bead *models.Bead) (string, error) {
	if e.Worktrees == nil || !proj.UseWorktrees {
		return worker.WorkingDir, nil
	}
	path, err := e.Worktrees.GetOrCreateWorktree(proj.RepoURL, gitops.Config{
		WorkerID: worker.ID,
		TaskID:   bead.ID,
	}, proj.DefaultBranch)
	if err != nil {
		return "", err
	}
	return path, nil
}

// buildPrompt assembles the enriched prompt, falling back to a minimal
// template if the pipeline panics or produces nothing.
func (e *Executor) buildPrompt(ctx context.Context, bead *models.Bead, proj *models.Project, workingDir string) (prompt string) {
	if e.Pipeline == nil {
		return minimalPrompt(bead)
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("enrichment pipeline panicked for bead %s: %v", bead.ID, r)
			prompt = minimalPrompt(bead)
		}
	}()
	assembled := e.Pipeline.Assemble(ctx, enrichment.Input{
		Bead:       bead,
		Project:    proj,
		ProjectDir: workingDir,
		History:    e.History,
		Research:   e.Research,
		Memory:     e.Memory,
	})
	if e.AssemblyLogs != nil {
		_ = e.AssemblyLogs.Record(&models.ContextAssemblyLog{
			TaskID:         bead.ID,
			ContextHash:    assembled.ContextHash,
			TotalTokens:    assembled.Metrics.EstimatedTokens,
			BudgetTokens:   e.Pipeline.Budget().TotalMaxTokens,
			StagesRun:      assembled.Metrics.StagesApplied,
			DurationMillis: assembled.Metrics.AssemblyMillis,
		})
	}
	if assembled.SystemPrompt == "" && assembled.UserPrompt == "" {
		return minimalPrompt(bead)
	}
	return assembled.SystemPrompt + "\n\n" + assembled.UserPrompt
}

func minimalPrompt(bead *models.Bead) string {
	return fmt.Sprintf("Task %s: %s\n\n%s\n\nWhen done, end your final message with <promise>COMPLETE</promise>.", bead.ID, bead.Title, bead.Description)
}

func (e *Executor) recordOutcome(bead *models.Bead, worker *models.Worker, verdict outcome.Result, durationMillis int64, result SessionResult) {
	if e.Metrics != nil {
		_ = e.Metrics.Record(&models.SessionMetric{
			TaskID:         bead.ID,
			WorkerID:       worker.ID,
			Iteration:      bead.Attempts,
			DurationMillis: durationMillis,
			Success:        verdict.Disposition == outcome.DispositionSuccess,
			Outcome:        string(verdict.Disposition),
			Confidence:     verdict.Confidence,
		})
	}
	if e.Outcomes != nil {
		_ = e.Outcomes.Record(&models.TaskOutcome{
			ProjectID:  bead.ProjectID,
			BeadID:     bead.ID,
			BeadType:   bead.Type,
			Success:    verdict.Disposition == outcome.DispositionSuccess,
			Reflection: verdict.Reason,
		})
	}
}

// persistDisposition applies the outcome verdict to the bead's status
// per the lifecycle table: success goes to review, a decision request
// blocks the bead for a human, and failure either schedules a backoff
// retry or terminates the bead once max_attempts is exhausted.
func (e *Executor) persistDisposition(bead *models.Bead, verdict outcome.Result) {
	switch verdict.Disposition {
	case outcome.DispositionSuccess:
		bead.Status = models.BeadStatusReview
		bead.LastFailureReason = ""
	case outcome.DispositionNeedsDecision:
		bead.Status = models.BeadStatusBlocked
		bead.BlockedReason = verdict.Reason
	case outcome.DispositionFailure:
		bead.LastFailureReason = verdict.Reason
		if len(verdict.Findings) > 0 {
			bead.LastFailureReason = fmt.Sprintf("%s (%d findings, e.g. %s)", verdict.Reason, len(verdict.Findings), verdict.Findings[0].Message)
		}
		if bead.Attempts >= bead.MaxAttempts {
			bead.Status = models.BeadStatusFailed
		} else {
			bead.Status = models.BeadStatusReady
			retryAt := time.Now().Add(time.Duration(BackoffSeconds(bead.Attempts)) * time.Second)
			bead.RetryAfter = &retryAt
		}
	}
	if bead.Status == models.BeadStatusReview || bead.Status == models.BeadStatusFailed {
		now := time.Now()
		bead.CompletedAt = &now
	}
	_ = e.Beads.Update(bead)
	e.publish(eventbus.EventBeadStatusChanged, bead.ProjectID, map[string]any{"bead_id": bead.ID, "status": bead.Status})
}

func (e *Executor) finishAsFailure(bead *models.Bead, worker *models.Worker, reason string) {
	bead.LastFailureReason = reason
	if bead.Attempts >= bead.MaxAttempts {
		bead.Status = models.BeadStatusFailed
	} else {
		bead.Status = models.BeadStatusReady
		retryAt := time.Now().Add(time.Duration(BackoffSeconds(bead.Attempts)) * time.Second)
		bead.RetryAfter = &retryAt
	}
	_ = e.Beads.Update(bead)
	worker.Status = models.WorkerStatusIdle
	worker.CurrentTaskID = ""
	_ = e.Workers.Upsert(worker)
}

func (e *Executor) publish(typ eventbus.EventType, projectID string, data map[string]any) {
	if e.Stats != nil {
		e.Stats.EventsPublished.WithLabelValues(string(typ)).Inc()
	}
	if e.Events == nil {
		return
	}
	e.Events.Publish(typ, projectID, data)
}

// NewWorkerID generates an ephemeral worker-session identifier when a
// caller needs one before a models.Worker row exists.
func NewWorkerID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String()[:8])
}
