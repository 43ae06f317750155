// Package store is the PostgreSQL-backed persistence layer (C1 in the
// component design): one connection pool, one repository type per entity,
// migrations run as ordered Go functions at Open time. Grounded on the
// teacher's internal/database package connection and migration style.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// Store owns the connection pool and exposes one repository per entity.
type Store struct {
	db *sql.DB

	Projects     *ProjectRepository
	Beads        *BeadRepository
	Dependencies *DependencyRepository
	Workers      *WorkerRepository
	Chat         *ChatRepository
	Actions      *ActionRepository
	Outcomes     *ReasoningBankRepository
	Metrics      *MetricsRepository
	AssemblyLogs *AssemblyLogRepository
	FileChanges  *FileChangeRepository
	Reloads      *ReloadRecordRepository
	ProjectMemory *ProjectMemoryRepository
}

// Open connects to PostgreSQL using dsn, or environment variables
// (RINGMASTER_PG_HOST/PORT/USER/PASSWORD/DB/SSLMODE) when dsn is empty,
// then runs migrations.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = dsnFromEnv()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	closeOnErr := true
	defer func() {
		if closeOnErr {
			db.Close()
		}
	}()

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	s.Projects = &ProjectRepository{db: db}
	s.Beads = &BeadRepository{db: db}
	s.Dependencies = &DependencyRepository{db: db}
	s.Workers = &WorkerRepository{db: db}
	s.Chat = &ChatRepository{db: db}
	s.Actions = &ActionRepository{db: db}
	s.Outcomes = &ReasoningBankRepository{db: db}
	s.Metrics = &MetricsRepository{db: db}
	s.AssemblyLogs = &AssemblyLogRepository{db: db}
	s.FileChanges = &FileChangeRepository{db: db}
	s.Reloads = &ReloadRecordRepository{db: db}
	s.ProjectMemory = &ProjectMemoryRepository{db: db}

	closeOnErr = false
	return s, nil
}

func dsnFromEnv() string {
	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	host := getenv("RINGMASTER_PG_HOST", "localhost")
	port := getenv("RINGMASTER_PG_PORT", "5432")
	user := getenv("RINGMASTER_PG_USER", "ringmaster")
	password := getenv("RINGMASTER_PG_PASSWORD", "ringmaster")
	dbname := getenv("RINGMASTER_PG_DB", "ringmaster")
	sslmode := getenv("RINGMASTER_PG_SSLMODE", "disable")
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw pool for packages that need transactions spanning
// multiple repositories (the Scheduler's assignment step, for instance).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	steps := []func(*sql.DB) error{
		migrateProjects,
		migrateBeads,
		migrateDependencies,
		migrateWorkers,
		migrateChatMessages,
		migrateSummaries,
		migrateActions,
		migrateTaskOutcomes,
		migrateSessionMetrics,
		migrateContextAssemblyLogs,
		migrateFileChanges,
		migrateReloadRecords,
		migrateProjectMemories,
	}
	for _, step := range steps {
		if err := step(s.db); err != nil {
			return err
		}
	}
	return nil
}

func migrateProjects(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	repo_url TEXT NOT NULL,
	default_branch TEXT NOT NULL DEFAULT 'main',
	use_worktrees BOOLEAN NOT NULL DEFAULT true,
	settings JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

func migrateBeads(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS beads (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	parent_id TEXT,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	priority INTEGER NOT NULL DEFAULT 2,
	assigned_worker_id TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	last_failure_reason TEXT,
	blocked_reason TEXT,
	retry_after TIMESTAMPTZ,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	required_capabilities TEXT[] NOT NULL DEFAULT '{}',
	tags TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS beads_project_status_idx ON beads(project_id, status);
CREATE INDEX IF NOT EXISTS beads_retry_after_idx ON beads(retry_after) WHERE retry_after IS NOT NULL;
`)
	return err
}

func migrateDependencies(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS dependencies (
	id TEXT PRIMARY KEY,
	bead_id TEXT NOT NULL REFERENCES beads(id),
	depends_on_id TEXT NOT NULL REFERENCES beads(id),
	UNIQUE(bead_id, depends_on_id)
)`)
	return err
}

func migrateWorkers(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS workers (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'idle',
	capabilities TEXT[] NOT NULL DEFAULT '{}',
	current_task_id TEXT,
	tasks_completed INTEGER NOT NULL DEFAULT 0,
	tasks_failed INTEGER NOT NULL DEFAULT 0,
	last_active_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	working_dir TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

func migrateChatMessages(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS chat_messages (
	id BIGSERIAL PRIMARY KEY,
	project_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_messages_task_idx ON chat_messages(task_id, id);
`)
	return err
}

func migrateSummaries(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS summaries (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL,
	start_msg_id BIGINT NOT NULL,
	end_msg_id BIGINT NOT NULL,
	text TEXT NOT NULL,
	decisions TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS summaries_task_idx ON summaries(task_id, end_msg_id);
`)
	return err
}

func migrateActions(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS actions (
	id BIGSERIAL PRIMARY KEY,
	project_id TEXT NOT NULL,
	type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	before JSONB,
	after JSONB,
	reversed BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS actions_project_idx ON actions(project_id, id DESC);
`)
	return err
}

func migrateTaskOutcomes(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS task_outcomes (
	id BIGSERIAL PRIMARY KEY,
	project_id TEXT NOT NULL,
	bead_id TEXT NOT NULL,
	bead_type TEXT NOT NULL,
	keywords TEXT[] NOT NULL DEFAULT '{}',
	file_count INTEGER NOT NULL DEFAULT 0,
	has_deps BOOLEAN NOT NULL DEFAULT false,
	success BOOLEAN NOT NULL,
	reflection TEXT NOT NULL DEFAULT '',
	model_used TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS task_outcomes_project_type_idx ON task_outcomes(project_id, bead_type);
`)
	return err
}

func migrateSessionMetrics(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS session_metrics (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL,
	worker_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_millis BIGINT NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL,
	outcome TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

func migrateContextAssemblyLogs(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS context_assembly_logs (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL,
	context_hash TEXT NOT NULL,
	stages_run TEXT[] NOT NULL DEFAULT '{}',
	total_tokens INTEGER NOT NULL DEFAULT 0,
	budget_tokens INTEGER NOT NULL DEFAULT 0,
	duration_millis BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

func migrateProjectMemories(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS project_memories (
	project_id TEXT NOT NULL,
	category TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	source_bead TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (project_id, category, key)
)`)
	return err
}

func migrateFileChanges(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS file_changes (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL,
	worker_id TEXT NOT NULL,
	path TEXT NOT NULL,
	kind TEXT NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

func migrateReloadRecords(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS reload_records (
	id BIGSERIAL PRIMARY KEY,
	task_id TEXT NOT NULL,
	trigger_paths TEXT[] NOT NULL DEFAULT '{}',
	command TEXT NOT NULL,
	exit_code INTEGER NOT NULL DEFAULT 0,
	duration_millis BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}
