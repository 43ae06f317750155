// Package config loads Ringmaster's YAML configuration, grounded on the
// teacher's pkg/config nested-struct-per-subsystem layout.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object, one section per subsystem.
type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Enrichment    EnrichmentConfig    `yaml:"enrichment"`
	Git           GitConfig           `yaml:"git"`
	EventBus      EventBusConfig      `yaml:"event_bus"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Tracing       TracingConfig       `yaml:"tracing"`
	HotReload     HotReloadConfig     `yaml:"hot_reload"`
	ReasoningBank ReasoningBankConfig `yaml:"reasoning_bank"`
}

// StoreConfig configures the PostgreSQL-backed Store.
type StoreConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SchedulerConfig configures the poll loop in internal/scheduler.
type SchedulerConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
	HealthCheckGrace   time.Duration `yaml:"health_check_grace"`
	DefaultMaxAttempts int           `yaml:"default_max_attempts"`
	BackoffBaseSeconds int           `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds  int           `yaml:"backoff_max_seconds"`
}

// EnrichmentConfig configures per-stage token budgets for internal/enrichment.
type EnrichmentConfig struct {
	TotalMaxTokens          int `yaml:"total_max_tokens"`
	CodeContextMaxTokens    int `yaml:"code_context_max_tokens"`
	CodeContextMaxFiles     int `yaml:"code_context_max_files"`
	CodeContextMaxFileLines int `yaml:"code_context_max_file_lines"`
	DeploymentMaxTokens     int `yaml:"deployment_max_tokens"`
	DeploymentMaxFiles      int `yaml:"deployment_max_files"`
	HistoryRecentVerbatim   int `yaml:"history_recent_verbatim"`
	HistorySummaryThreshold int `yaml:"history_summary_threshold"`
	HistoryChunkSize        int `yaml:"history_chunk_size"`
	HistoryMaxTokens        int `yaml:"history_max_tokens"`
}

// GitConfig configures the worktree manager in internal/gitops.
type GitConfig struct {
	BaseBranch   string `yaml:"base_branch"`
	BranchPrefix string `yaml:"branch_prefix"`
	UseWorktrees bool   `yaml:"use_worktrees"`
}

// EventBusConfig configures internal/eventbus.
type EventBusConfig struct {
	BufferSize       int    `yaml:"buffer_size"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
	NATSURL          string `yaml:"nats_url"`
	NATSStreamName   string `yaml:"nats_stream_name"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// HotReloadConfig configures the optional fsnotify-based watcher.
type HotReloadConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DebounceDelay time.Duration `yaml:"debounce_delay"`
	TestCommand   string        `yaml:"test_command"`
}

// ReasoningBankConfig configures internal/reasoningbank's success-rate
// rollup cache. Backend "memory" attaches no cache, so rates are read
// from the store each time; "redis" caches
// rollups in a shared Redis instance so multiple ringmasterd replicas
// don't each recompute them from task_outcomes on every routing decision.
type ReasoningBankConfig struct {
	CacheBackend string        `yaml:"cache_backend"` // "memory" or "redis"
	RedisURL     string        `yaml:"redis_url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// Default returns a Config populated with the defaults named throughout
// spec.md (enrichment budgets, backoff base/max, RLM thresholds).
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			PollInterval:       2 * time.Second,
			MaxConcurrentTasks: 4,
			HealthCheckGrace:   30 * time.Second,
			DefaultMaxAttempts: 3,
			BackoffBaseSeconds: 30,
			BackoffMaxSeconds:  3600,
		},
		Enrichment: EnrichmentConfig{
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
		},
		Git: GitConfig{
			BaseBranch:   "main",
			BranchPrefix: "ringmaster",
			UseWorktrees: true,
		},
		EventBus: EventBusConfig{
			BufferSize:       1000,
			SubscriberBuffer: 100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		HotReload: HotReloadConfig{
			Enabled:       false,
			DebounceDelay: 500 * time.Millisecond,
		},
		ReasoningBank: ReasoningBankConfig{
			CacheBackend: "memory",
			RedisURL:     "redis://localhost:6379/0",
			CacheTTL:     10 * time.Minute,
		},
	}
}

// Load reads a YAML file at path and merges it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
