package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

type fakeBeadStore struct {
	mu    sync.Mutex
	beads map[string]*models.Bead
}

func newFakeBeadStore(beads ...*models.Bead) *fakeBeadStore {
	s := &fakeBeadStore{beads: make(map[string]*models.Bead)}
	for _, b := range beads {
		s.beads[b.ID] = b
	}
	return s
}

func (s *fakeBeadStore) GetReadyTasks(projectID string, limit int) ([]*models.Bead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Bead
	for _, b := range s.beads {
		if b.ProjectID == projectID && (b.Status == models.BeadStatusReady || b.Status == models.BeadStatusOpen) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBeadStore) ListByProject(projectID string) ([]*models.Bead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Bead
	for _, b := range s.beads {
		if b.ProjectID == projectID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBeadStore) Update(b *models.Bead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beads[b.ID] = b
	return nil
}

type fakeDepStore struct{ deps []*models.Dependency }

func (s *fakeDepStore) ListForProject(projectID string) ([]*models.Dependency, error) {
	return s.deps, nil
}

type fakeWorkerStore struct {
	mu      sync.Mutex
	workers []*models.Worker
}

func (s *fakeWorkerStore) ListIdle(projectID string) ([]*models.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Worker
	for _, w := range s.workers {
		if w.ProjectID == projectID && w.Status == models.WorkerStatusIdle {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeExecutor struct {
	mu    sync.Mutex
	ran   []string
	block chan struct{}
}

func (f *fakeExecutor) RunBead(ctx context.Context, beadID, workerID string) error {
	f.mu.Lock()
	f.ran = append(f.ran, beadID)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ran)
}

func TestAssignReadyBeads_DispatchesToIdleWorker(t *testing.T) {
	beads := newFakeBeadStore(&models.Bead{ID: "b1", ProjectID: "p1", Status: models.BeadStatusReady, MaxAttempts: 3})
	workers := &fakeWorkerStore{workers: []*models.Worker{{ID: "w1", ProjectID: "p1", Status: models.WorkerStatusIdle}}}
	exec := &fakeExecutor{}

	s := New(4, time.Millisecond)
	s.Beads = beads
	s.Deps = &fakeDepStore{}
	s.Workers = workers
	s.Executor = exec

	s.assignReadyBeads(context.Background(), "p1")

	deadline := time.After(time.Second)
	for exec.count() < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatch")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestAssignReadyBeads_NoEligibleWorkerSkipsBead(t *testing.T) {
	beads := newFakeBeadStore(&models.Bead{
		ID: "b1", ProjectID: "p1", Status: models.BeadStatusReady, MaxAttempts: 3,
		RequiredCapabilities: []string{"python"},
	})
	workers := &fakeWorkerStore{workers: []*models.Worker{
		{ID: "w1", ProjectID: "p1", Status: models.WorkerStatusIdle, Capabilities: []string{"javascript"}},
	}}
	exec := &fakeExecutor{}

	s := New(4, time.Millisecond)
	s.Beads = beads
	s.Deps = &fakeDepStore{}
	s.Workers = workers
	s.Executor = exec

	s.assignReadyBeads(context.Background(), "p1")
	time.Sleep(10 * time.Millisecond)

	if exec.count() != 0 {
		t.Fatalf("expected no dispatch without a capable worker, got %d", exec.count())
	}
}

func TestAssignReadyBeads_RespectsConcurrencyCap(t *testing.T) {
	beads := newFakeBeadStore(
		&models.Bead{ID: "b1", ProjectID: "p1", Status: models.BeadStatusReady, MaxAttempts: 3},
		&models.Bead{ID: "b2", ProjectID: "p1", Status: models.BeadStatusReady, MaxAttempts: 3},
	)
	workers := &fakeWorkerStore{workers: []*models.Worker{
		{ID: "w1", ProjectID: "p1", Status: models.WorkerStatusIdle},
		{ID: "w2", ProjectID: "p1", Status: models.WorkerStatusIdle},
	}}
	block := make(chan struct{})
	exec := &fakeExecutor{block: block}
	defer close(block)

	s := New(1, time.Millisecond)
	s.Beads = beads
	s.Deps = &fakeDepStore{}
	s.Workers = workers
	s.Executor = exec

	s.assignReadyBeads(context.Background(), "p1")
	time.Sleep(20 * time.Millisecond)

	if got := exec.count(); got != 1 {
		t.Fatalf("expected exactly 1 dispatch under cap=1, got %d", got)
	}
}

func TestReclaimStuckBeads_ResetsStaleInProgress(t *testing.T) {
	staleStart := time.Now().Add(-time.Hour)
	beads := newFakeBeadStore(&models.Bead{
		ID: "b1", ProjectID: "p1", Status: models.BeadStatusInProgress,
		StartedAt: &staleStart, AssignedWorkerID: "w1",
	})

	s := New(4, time.Millisecond)
	s.Beads = beads
	s.StuckThreshold = time.Minute

	s.reclaimStuckBeads("p1")

	got := beads.beads["b1"]
	if got.Status != models.BeadStatusReady {
		t.Fatalf("expected stuck bead reset to ready, got %s", got.Status)
	}
	if got.AssignedWorkerID != "" {
		t.Fatalf("expected assigned worker cleared, got %q", got.AssignedWorkerID)
	}
}

func TestReclaimStuckBeads_LeavesFreshInProgress(t *testing.T) {
	recent := time.Now()
	beads := newFakeBeadStore(&models.Bead{
		ID: "b1", ProjectID: "p1", Status: models.BeadStatusInProgress, StartedAt: &recent,
	})

	s := New(4, time.Millisecond)
	s.Beads = beads
	s.StuckThreshold = time.Hour

	s.reclaimStuckBeads("p1")

	if beads.beads["b1"].Status != models.BeadStatusInProgress {
		t.Fatal("expected a recently-started bead to be left alone")
	}
}
