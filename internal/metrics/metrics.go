// Package metrics exposes the Prometheus instrumentation surface shared by
// the Scheduler, Executor, Queue/Routing, and Enrichment components.
// Grounded on the teacher's internal/metrics package (one promauto-backed
// Registry built once and threaded into every component that records
// against it) with the metric names and label sets renamed to the
// Ringmaster domain.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every Prometheus collector Ringmaster registers.
type Registry struct {
	// TasksTotal counts beads reaching a terminal or retry disposition,
	// recorded by the Executor (C8) once persistDisposition runs.
	TasksTotal *prometheus.CounterVec

	// TaskDuration tracks wall-clock session time, recorded by the
	// Executor (C8) after the worker session returns.
	TaskDuration *prometheus.HistogramVec

	// WorkerStatus mirrors the supervisor's view of each worker
	// (C8/C10): 1 for the status a worker currently holds, 0 otherwise.
	WorkerStatus *prometheus.GaugeVec

	// ContextAssemblyDuration tracks the enrichment pipeline's (C5)
	// nine-stage Assemble() cost against the "must not dominate the
	// task latency" budget.
	ContextAssemblyDuration *prometheus.HistogramVec

	// RoutingDuration tracks the Queue/Routing (C9) cost of ranking the
	// ready queue once per scheduler poll cycle.
	RoutingDuration *prometheus.HistogramVec

	// EventsPublished counts Event Bus (C2) publications, recorded at
	// the Executor's publish() call sites.
	EventsPublished *prometheus.CounterVec
}

var (
	once   sync.Once
	shared *Registry
)

// New returns the process-wide Registry, building and registering its
// collectors on first call; later calls return the same instance so
// every scheduler/executor pair started by cmd/ringmasterd shares one
// set of counters.
func New() *Registry {
	once.Do(func() {
		shared = &Registry{
			TasksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ringmaster_tasks_total",
					Help: "Total beads reaching a terminal or retry disposition, by result.",
				},
				[]string{"project_id", "result"},
			),
			TaskDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ringmaster_task_duration_seconds",
					Help:    "Wall-clock duration of a worker session from spawn to exit.",
					Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68min
				},
				[]string{"project_id", "bead_type"},
			),
			WorkerStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "ringmaster_worker_status",
					Help: "1 if the worker currently holds the labeled status, else 0.",
				},
				[]string{"project_id", "worker_id", "status"},
			),
			ContextAssemblyDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ringmaster_context_assembly_duration_seconds",
					Help:    "Time spent assembling an enriched prompt across all nine stages.",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
				},
				[]string{"project_id"},
			),
			RoutingDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ringmaster_routing_duration_seconds",
					Help:    "Time spent ranking the ready queue (PageRank/betweenness/critical-path) per poll cycle.",
					Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
				},
				[]string{"project_id"},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ringmaster_events_published_total",
					Help: "Total events published on the in-process event bus, by type.",
				},
				[]string{"event_type"},
			),
		}
	})
	return shared
}

// allWorkerStatuses lists every label value RecordWorkerStatus clears,
// so a worker flipping to "busy" doesn't leave a stale "idle" gauge at 1.
var allWorkerStatuses = []string{"idle", "busy", "error", "stopped"}

// RecordWorkerStatus sets the gauge for workerID's current status to 1
// and every other known status to 0.
func (r *Registry) RecordWorkerStatus(projectID, workerID, status string) {
	for _, s := range allWorkerStatuses {
		v := 0.0
		if s == status {
			v = 1.0
		}
		r.WorkerStatus.WithLabelValues(projectID, workerID, s).Set(v)
	}
}
