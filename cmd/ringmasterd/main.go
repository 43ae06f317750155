// Command ringmasterd is the Ringmaster daemon: it wires the Store,
// Event Bus, Worktree Manager, Enrichment Pipeline, Worker Executor,
// Scheduler, Reasoning Bank, and Undo Log together and runs one
// scheduler poll loop per project. Grounded on the teacher's cmd/loom
// entrypoint's config-load-then-start shape, generalized from a single
// monolithic server into explicit component wiring.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ringmaster-dev/ringmaster/internal/config"
	"github.com/ringmaster-dev/ringmaster/internal/enrichment"
	"github.com/ringmaster-dev/ringmaster/internal/eventbus"
	"github.com/ringmaster-dev/ringmaster/internal/executor"
	"github.com/ringmaster-dev/ringmaster/internal/gitops"
	"github.com/ringmaster-dev/ringmaster/internal/memory"
	"github.com/ringmaster-dev/ringmaster/internal/metrics"
	"github.com/ringmaster-dev/ringmaster/internal/reasoningbank"
	"github.com/ringmaster-dev/ringmaster/internal/routing"
	"github.com/ringmaster-dev/ringmaster/internal/scheduler"
	"github.com/ringmaster-dev/ringmaster/internal/store"
	"github.com/ringmaster-dev/ringmaster/internal/telemetry"
	"github.com/ringmaster-dev/ringmaster/internal/undo"
)

func main() {
	configPath := os.Getenv("RINGMASTER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("no config at %s (%v), using defaults", configPath, err)
		cfg = config.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Store.DSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	reg := metrics.New()
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
		log.Printf("prometheus metrics exposed on %s/metrics", cfg.Metrics.Addr)
	}

	var tracer trace.Tracer
	if cfg.Tracing.Enabled {
		serviceName := cfg.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "ringmasterd"
		}
		tr, shutdown, err := telemetry.Init(ctx, serviceName, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			log.Printf("tracing disabled: %v", err)
		} else {
			tracer = tr
			defer shutdown(context.Background())
		}
	}

	bus := eventbus.New(cfg.EventBus.BufferSize)
	defer bus.Close()

	if cfg.EventBus.NATSURL != "" {
		mirror, err := eventbus.NewNATSMirror(eventbus.NATSMirrorConfig{
			URL:        cfg.EventBus.NATSURL,
			StreamName: cfg.EventBus.NATSStreamName,
		})
		if err != nil {
			log.Printf("nats mirror disabled: %v", err)
		} else {
			defer mirror.Close()
			_, ch := bus.Subscribe(func(*eventbus.Event) bool { return true })
			go func() {
				for evt := range ch {
					mirror.Forward(evt)
				}
			}()
		}
	}

	worktrees := gitops.NewManager()

	bank := reasoningbank.New(db.Outcomes)
	if cfg.ReasoningBank.CacheBackend == "redis" {
		cache, err := reasoningbank.NewRedisRateCache(cfg.ReasoningBank)
		if err != nil {
			log.Printf("reasoning bank cache disabled: %v", err)
		} else {
			bank = bank.WithCache(cache)
		}
	}

	undoLog := undo.New(db.Actions)
	_ = undoLog // wired for future admin commands; not yet driven by the daemon loop

	budget := enrichment.Budget{
		TotalMaxTokens:          cfg.Enrichment.TotalMaxTokens,
		CodeContextMaxTokens:    cfg.Enrichment.CodeContextMaxTokens,
		CodeContextMaxFiles:     cfg.Enrichment.CodeContextMaxFiles,
		CodeContextMaxFileLines: cfg.Enrichment.CodeContextMaxFileLines,
		DeploymentMaxTokens:     cfg.Enrichment.DeploymentMaxTokens,
		DeploymentMaxFiles:      cfg.Enrichment.DeploymentMaxFiles,
		HistoryRecentVerbatim:   cfg.Enrichment.HistoryRecentVerbatim,
		HistorySummaryThreshold: cfg.Enrichment.HistorySummaryThreshold,
		HistoryChunkSize:        cfg.Enrichment.HistoryChunkSize,
		HistoryMaxTokens:        cfg.Enrichment.HistoryMaxTokens,
	}
	pipeline := enrichment.New(budget)

	exec := executor.New()
	exec.Projects = db.Projects
	exec.Beads = db.Beads
	exec.Workers = db.Workers
	exec.Metrics = db.Metrics
	exec.AssemblyLogs = db.AssemblyLogs
	exec.Outcomes = bank
	exec.Worktrees = worktrees
	exec.Pipeline = pipeline
	exec.Events = bus
	exec.Memory = memory.NewMemoryManager(db.ProjectMemory)
	exec.AgentCommand = agentCommand()
	exec.Stats = reg
	exec.Tracer = tracer
	pipeline.Stats = reg
	pipeline.Tracer = tracer
	exec.HotReloadEnabled = cfg.HotReload.Enabled
	exec.HotReloadCommand = cfg.HotReload.TestCommand
	exec.HotReloadDebounce = cfg.HotReload.DebounceDelay
	exec.HotReloadRecorder = &store.HotReloadRecorder{FileChanges: db.FileChanges, Reloads: db.Reloads}
	exec.NewSpawner = func(command string, args []string, workingDir, prompt string) executor.SessionSpawner {
		return executor.NewSession(command, args, workingDir, prompt)
	}

	projects, err := db.Projects.List()
	if err != nil {
		log.Fatalf("list projects: %v", err)
	}
	if len(projects) == 0 {
		log.Println("no projects configured; ringmasterd is idle")
	}

	var wg sync.WaitGroup
	for _, proj := range projects {
		sched := scheduler.New(cfg.Scheduler.MaxConcurrentTasks, cfg.Scheduler.PollInterval)
		sched.Beads = db.Beads
		sched.Deps = db.Dependencies
		sched.Workers = db.Workers
		sched.Executor = exec
		sched.Rater = bank
		sched.PriorityWeights = routing.DefaultPriorityWeights()
		sched.Stats = reg

		wg.Add(1)
		go func(projectID string) {
			defer wg.Done()
			sched.Run(ctx, projectID)
		}(proj.ID)

		log.Printf("scheduler running for project %s (%s)", proj.Name, proj.ID)
	}

	<-ctx.Done()
	log.Println("shutting down")
	wg.Wait()
}

func agentCommand() string {
	if cmd := os.Getenv("RINGMASTER_AGENT_COMMAND"); cmd != "" {
		return cmd
	}
	return "claude"
}
