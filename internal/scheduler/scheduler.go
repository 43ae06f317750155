// Package scheduler implements the cooperative poll loop (C10) that turns
// ready beads into running worker sessions: each tick it reclaims stuck
// in-progress beads, ranks the ready queue by routing.RankBeads, matches
// idle workers by capability, and dispatches Executor.RunBead goroutines
// under a max_concurrent_tasks semaphore. Grounded on
// internal/taskexecutor.Executor's watcherLoop/workerLoop/maybeSpawnWorkers
// pattern, generalized from one-worker-per-goroutine polling to a single
// pool-wide poll cycle driven by the routing package's priority graph.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ringmaster-dev/ringmaster/internal/logging"
	"github.com/ringmaster-dev/ringmaster/internal/metrics"
	"github.com/ringmaster-dev/ringmaster/internal/models"
	"github.com/ringmaster-dev/ringmaster/internal/routing"
)

const (
	defaultPollInterval       = 2 * time.Second
	defaultMaxConcurrentTasks = 4
	defaultReadyLimit         = 50
	// defaultStuckThreshold is how long an in_progress bead can go without
	// a status update before the scheduler assumes its executor goroutine
	// died and reclaims it back to ready.
	defaultStuckThreshold = 30 * time.Minute
)

// BeadStore is the narrow persistence surface the scheduler polls.
type BeadStore interface {
	GetReadyTasks(projectID string, limit int) ([]*models.Bead, error)
	ListByProject(projectID string) ([]*models.Bead, error)
	Update(b *models.Bead) error
}

// DependencyStore supplies the dependency edges routing.RankBeads needs.
type DependencyStore interface {
	ListForProject(projectID string) ([]*models.Dependency, error)
}

// WorkerStore returns the idle candidate pool for a project.
type WorkerStore interface {
	ListIdle(projectID string) ([]*models.Worker, error)
}

// BeadExecutor runs one bead to completion; satisfied by *executor.Executor.
type BeadExecutor interface {
	RunBead(ctx context.Context, beadID, workerID string) error
}

// Scheduler runs the poll loop for a single project. Callers that manage
// several projects run one Scheduler per project, each with its own
// concurrency cap, matching the teacher's per-project worker pools.
type Scheduler struct {
	Beads    BeadStore
	Deps     DependencyStore
	Workers  WorkerStore
	Executor BeadExecutor
	Rater    routing.SuccessRater

	PollInterval       time.Duration
	MaxConcurrentTasks int
	StuckThreshold     time.Duration
	PriorityWeights    routing.PriorityWeights

	// Stats is optional; nil disables Prometheus instrumentation of the
	// routing pass (unit tests never set it).
	Stats *metrics.Registry

	log *logging.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	sem      chan struct{}
}

// New builds a Scheduler with the given concurrency cap; zero-valued
// fields fall back to the defaults used throughout spec.md's examples.
func New(maxConcurrentTasks int, pollInterval time.Duration) *Scheduler {
	if maxConcurrentTasks <= 0 {
		maxConcurrentTasks = defaultMaxConcurrentTasks
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Scheduler{
		PollInterval:       pollInterval,
		MaxConcurrentTasks: maxConcurrentTasks,
		StuckThreshold:     defaultStuckThreshold,
		PriorityWeights:    routing.DefaultPriorityWeights(),
		log:                logging.For("scheduler"),
		inFlight:           make(map[string]struct{}),
		sem:                make(chan struct{}, maxConcurrentTasks),
	}
}

// Run blocks, polling projectID on PollInterval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, projectID string) {
	s.log.Printf("scheduler started for project %s (max_concurrent_tasks=%d)", projectID, s.MaxConcurrentTasks)
	defer s.log.Printf("scheduler stopped for project %s", projectID)

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollCycle(ctx, projectID)
		}
	}
}

// pollCycle reclaims stuck beads, then assigns as many ready beads to idle
// workers as the concurrency cap and capability matches allow.
func (s *Scheduler) pollCycle(ctx context.Context, projectID string) {
	s.reclaimStuckBeads(projectID)
	s.assignReadyBeads(ctx, projectID)
}

// reclaimStuckBeads resets in_progress beads whose executor goroutine
// appears to have died (no StartedAt update within StuckThreshold) back
// to ready so another worker can pick them up.
func (s *Scheduler) reclaimStuckBeads(projectID string) {
	beads, err := s.Beads.ListByProject(projectID)
	if err != nil {
		s.log.Warn("list beads for stuck scan in %s: %v", projectID, err)
		return
	}
	for _, b := range beads {
		if b.Status != models.BeadStatusInProgress || b.StartedAt == nil {
			continue
		}
		if s.isInFlight(b.ID) {
			continue
		}
		if time.Since(*b.StartedAt) < s.StuckThreshold {
			continue
		}
		s.log.Warn("reclaiming stuck bead %s (in_progress since %s)", b.ID, b.StartedAt.Format(time.RFC3339))
		b.Status = models.BeadStatusReady
		b.AssignedWorkerID = ""
		b.LastFailureReason = "reclaimed: no progress for " + s.StuckThreshold.String()
		if err := s.Beads.Update(b); err != nil {
			s.log.Warn("reclaim bead %s: %v", b.ID, err)
		}
	}
}

// assignReadyBeads ranks the ready queue, matches each bead in priority
// order against the idle worker pool, and spawns a bounded RunBead
// goroutine for every match the semaphore has room for.
func (s *Scheduler) assignReadyBeads(ctx context.Context, projectID string) {
	ready, err := s.Beads.GetReadyTasks(projectID, defaultReadyLimit)
	if err != nil {
		s.log.Warn("get ready tasks for %s: %v", projectID, err)
		return
	}
	ready = s.excludeInFlight(ready)
	if len(ready) == 0 {
		return
	}

	deps, err := s.Deps.ListForProject(projectID)
	if err != nil {
		s.log.Warn("list dependencies for %s: %v", projectID, err)
		deps = nil
	}
	rankStart := time.Now()
	ranked := routing.RankBeads(ready, deps, s.PriorityWeights)
	if s.Stats != nil {
		s.Stats.RoutingDuration.WithLabelValues(projectID).Observe(time.Since(rankStart).Seconds())
	}
	byID := make(map[string]*models.Bead, len(ready))
	for _, b := range ready {
		byID[b.ID] = b
	}

	workers, err := s.Workers.ListIdle(projectID)
	if err != nil {
		s.log.Warn("list idle workers for %s: %v", projectID, err)
		return
	}
	// claimed tracks workers picked earlier in this same cycle: the
	// executor only flips a worker to busy once its goroutine starts, so
	// without this the idle list could hand the same worker to two beads.
	claimed := make(map[string]bool, len(workers))

	for _, rank := range ranked {
		bead := byID[rank.BeadID]
		if bead == nil {
			continue
		}

		candidates := make([]*models.Worker, 0, len(workers))
		for _, w := range workers {
			if !claimed[w.ID] {
				candidates = append(candidates, w)
			}
		}
		worker := routing.SelectWorker(candidates, bead.RequiredCapabilities, s.Rater)
		if worker == nil {
			continue
		}
		if !s.tryAcquire() {
			return
		}

		claimed[worker.ID] = true
		s.markInFlight(bead.ID)
		go s.dispatch(ctx, bead.ID, worker.ID)
	}
}

// dispatch runs one bead to completion and releases its concurrency slot
// and in-flight marker once the Executor returns, regardless of outcome.
func (s *Scheduler) dispatch(ctx context.Context, beadID, workerID string) {
	defer s.release()
	defer s.clearInFlight(beadID)

	if err := s.Executor.RunBead(ctx, beadID, workerID); err != nil {
		s.log.Warn("run bead %s on worker %s: %v", beadID, workerID, err)
	}
}

func (s *Scheduler) tryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) release() {
	select {
	case <-s.sem:
	default:
	}
}

func (s *Scheduler) markInFlight(beadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[beadID] = struct{}{}
}

func (s *Scheduler) clearInFlight(beadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, beadID)
}

func (s *Scheduler) isInFlight(beadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[beadID]
	return ok
}

func (s *Scheduler) excludeInFlight(beads []*models.Bead) []*models.Bead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := beads[:0:0]
	for _, b := range beads {
		if _, ok := s.inFlight[b.ID]; !ok {
			out = append(out, b)
		}
	}
	return out
}
