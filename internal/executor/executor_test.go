package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ringmaster-dev/ringmaster/internal/eventbus"
	"github.com/ringmaster-dev/ringmaster/internal/models"
	"github.com/ringmaster-dev/ringmaster/internal/outputbuf"
)

type fakeProjects struct {
	proj *models.Project
}

func (f *fakeProjects) Get(id string) (*models.Project, error) { return f.proj, nil }

type fakeBeads struct {
	bead *models.Bead
}

func (f *fakeBeads) Get(id string) (*models.Bead, error) { return f.bead, nil }
func (f *fakeBeads) Update(b *models.Bead) error {
	f.bead = b
	return nil
}

type fakeWorkers struct {
	worker *models.Worker
}

func (f *fakeWorkers) Get(id string) (*models.Worker, error) { return f.worker, nil }
func (f *fakeWorkers) Upsert(w *models.Worker) error {
	f.worker = w
	return nil
}

type fakeSpawner struct {
	result SessionResult
}

func (f *fakeSpawner) Run(ctx context.Context, workerID string, buf *outputbuf.Buffer) SessionResult {
	return f.result
}

func newTestExecutor(spawnerResult SessionResult) (*Executor, *fakeBeads, *fakeWorkers) {
	beads := &fakeBeads{bead: &models.Bead{
		ID:          "bead-1",
		ProjectID:   "proj-1",
		Title:       "fix the thing",
		Description: "make it work",
		Status:      models.BeadStatusReady,
		MaxAttempts: 3,
	}}
	workers := &fakeWorkers{worker: &models.Worker{
		ID:        "worker-1",
		ProjectID: "proj-1",
		Status:    models.WorkerStatusIdle,
	}}
	e := New()
	e.Projects = &fakeProjects{proj: &models.Project{ID: "proj-1", UseWorktrees: false}}
	e.Beads = beads
	e.Workers = workers
	e.Events = eventbus.New(16)
	e.MonitorCheckInterval = time.Millisecond
	e.NewSpawner = func(command string, args []string, workingDir, prompt string) SessionSpawner {
		return &fakeSpawner{result: spawnerResult}
	}
	return e, beads, workers
}

func TestRunBead_SuccessMarksReviewAndIdlesWorker(t *testing.T) {
	e, beads, workers := newTestExecutor(SessionResult{
		ExitCode:      0,
		ExitCodeKnown: true,
		Output:        "doing work\n<promise>COMPLETE</promise>\n",
	})

	if err := e.RunBead(context.Background(), "bead-1", "worker-1"); err != nil {
		t.Fatalf("RunBead: %v", err)
	}

	if beads.bead.Status != models.BeadStatusReview {
		t.Fatalf("expected status review, got %s", beads.bead.Status)
	}
	if beads.bead.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set on success")
	}
	if workers.worker.Status != models.WorkerStatusIdle {
		t.Fatalf("expected worker idle, got %s", workers.worker.Status)
	}
	if workers.worker.TasksCompleted != 1 {
		t.Fatalf("expected TasksCompleted=1, got %d", workers.worker.TasksCompleted)
	}
}

func TestRunBead_FailureSchedulesBackoffRetry(t *testing.T) {
	e, beads, workers := newTestExecutor(SessionResult{
		ExitCode:      1,
		ExitCodeKnown: true,
		Output:        "Traceback (most recent call last):\nboom\n",
	})

	if err := e.RunBead(context.Background(), "bead-1", "worker-1"); err != nil {
		t.Fatalf("RunBead: %v", err)
	}

	if beads.bead.Status != models.BeadStatusReady {
		t.Fatalf("expected status ready for retry, got %s", beads.bead.Status)
	}
	if beads.bead.RetryAfter == nil {
		t.Fatal("expected RetryAfter to be set")
	}
	if beads.bead.CompletedAt != nil {
		t.Fatal("did not expect CompletedAt set on a retryable failure")
	}
	if workers.worker.TasksFailed != 1 {
		t.Fatalf("expected TasksFailed=1, got %d", workers.worker.TasksFailed)
	}
}

func TestRunBead_FailureExhaustedAttemptsTerminates(t *testing.T) {
	e, beads, _ := newTestExecutor(SessionResult{
		ExitCode:      1,
		ExitCodeKnown: true,
		Output:        "panic: boom\n",
	})
	beads.bead.Attempts = 2 // next attempt hits MaxAttempts=3

	if err := e.RunBead(context.Background(), "bead-1", "worker-1"); err != nil {
		t.Fatalf("RunBead: %v", err)
	}

	if beads.bead.Status != models.BeadStatusFailed {
		t.Fatalf("expected status failed once attempts exhausted, got %s", beads.bead.Status)
	}
	if beads.bead.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set once a bead terminates as failed")
	}
}

func TestRunBead_NeedsDecisionBlocksBead(t *testing.T) {
	e, beads, _ := newTestExecutor(SessionResult{
		ExitCode:      0,
		ExitCodeKnown: true,
		Output:        "I need a decision: <promise>NEEDS_DECISION</promise>\n",
	})

	if err := e.RunBead(context.Background(), "bead-1", "worker-1"); err != nil {
		t.Fatalf("RunBead: %v", err)
	}

	if beads.bead.Status != models.BeadStatusBlocked {
		t.Fatalf("expected status blocked, got %s", beads.bead.Status)
	}
	if beads.bead.BlockedReason == "" {
		t.Fatal("expected a blocked reason to be recorded")
	}
}

func TestBackoffSeconds_DoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempts int
		want     int
	}{
		{0, 30},
		{1, 30},
		{2, 60},
		{3, 120},
		{4, 240},
		{20, 3600},
	}
	for _, c := range cases {
		if got := BackoffSeconds(c.attempts); got != c.want {
			t.Errorf("BackoffSeconds(%d) = %d, want %d", c.attempts, got, c.want)
		}
	}
}

func TestMinimalPrompt_ContainsCompletionContract(t *testing.T) {
	bead := &models.Bead{ID: "bead-9", Title: "t", Description: "d"}
	got := minimalPrompt(bead)
	for _, want := range []string{bead.ID, bead.Title, bead.Description, "<promise>COMPLETE</promise>"} {
		if !strings.Contains(got, want) {
			t.Fatalf("minimal prompt missing %q: %q", want, got)
		}
	}
}
