// Package models defines the domain entities shared across Ringmaster's
// store, scheduler, executor, and enrichment packages.
package models

import "time"

// BeadStatus mirrors the lifecycle states a Bead moves through.
type BeadStatus string

const (
	BeadStatusOpen          BeadStatus = "open"
	BeadStatusReady         BeadStatus = "ready"
	BeadStatusInProgress    BeadStatus = "in_progress"
	BeadStatusBlocked       BeadStatus = "blocked"
	BeadStatusNeedsDecision BeadStatus = "needs_decision"
	BeadStatusReview        BeadStatus = "review"
	BeadStatusDone          BeadStatus = "done"
	BeadStatusFailed        BeadStatus = "failed"
)

// BeadPriority is P0 (highest) through P4 (lowest).
type BeadPriority int

const (
	PriorityP0 BeadPriority = iota
	PriorityP1
	PriorityP2
	PriorityP3
	PriorityP4
)

// BeadType distinguishes epics from ordinary tasks and subtasks.
type BeadType string

const (
	BeadTypeEpic    BeadType = "epic"
	BeadTypeTask    BeadType = "task"
	BeadTypeSubtask BeadType = "subtask"
)

// Project is a tracked git repository under Ringmaster management.
type Project struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	RepoURL       string            `json:"repo_url"`
	DefaultBranch string            `json:"default_branch"`
	UseWorktrees  bool              `json:"use_worktrees"`
	Settings      map[string]string `json:"settings"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Bead is a unit of work: an epic, task, or subtask.
type Bead struct {
	ID                   string       `json:"id"`
	ProjectID            string       `json:"project_id"`
	ParentID             string       `json:"parent_id,omitempty"`
	Type                 BeadType     `json:"type"`
	Title                string       `json:"title"`
	Description          string       `json:"description"`
	Status               BeadStatus   `json:"status"`
	Priority             BeadPriority `json:"priority"`
	AssignedWorkerID     string       `json:"assigned_worker_id,omitempty"`
	Attempts             int          `json:"attempts"`
	MaxAttempts          int          `json:"max_attempts"`
	LastFailureReason    string       `json:"last_failure_reason,omitempty"`
	BlockedReason        string       `json:"blocked_reason,omitempty"`
	RetryAfter           *time.Time   `json:"retry_after,omitempty"`
	StartedAt            *time.Time   `json:"started_at,omitempty"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	RequiredCapabilities []string     `json:"required_capabilities,omitempty"`
	Tags                 []string     `json:"tags,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// Dependency is a directed edge Bead -> DependsOn, consumed by routing.
type Dependency struct {
	ID          string `json:"id"`
	BeadID      string `json:"bead_id"`
	DependsOnID string `json:"depends_on_id"`
}

// WorkerStatus reflects the supervisor's view of a worker process.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusError   WorkerStatus = "error"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// Worker is a supervised external coding-agent process.
type Worker struct {
	ID             string       `json:"id"`
	ProjectID      string       `json:"project_id"`
	Type           string       `json:"type"`
	Status         WorkerStatus `json:"status"`
	Capabilities   []string     `json:"capabilities,omitempty"`
	CurrentTaskID  string       `json:"current_task_id,omitempty"`
	TasksCompleted int          `json:"tasks_completed"`
	TasksFailed    int          `json:"tasks_failed"`
	LastActiveAt   time.Time    `json:"last_active_at"`
	WorkingDir     string       `json:"working_dir,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ChatMessage is one turn of a bead's conversation history.
type ChatMessage struct {
	ID        int64     `json:"id"`
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id"`
	Role      string    `json:"role"` // "user" | "assistant" | "system"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is an RLM-compressed window of chat messages.
type Summary struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	StartMsgID int64     `json:"start_msg_id"`
	EndMsgID   int64     `json:"end_msg_id"`
	Text       string    `json:"text"`
	Decisions  []string  `json:"decisions,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActionType names the undoable operation recorded by an Action.
type ActionType string

const (
	ActionBeadCreated     ActionType = "bead_created"
	ActionBeadUpdated     ActionType = "bead_updated"
	ActionBeadDeleted     ActionType = "bead_deleted"
	ActionDependencyAdded ActionType = "dependency_added"
	ActionWorkerAssigned  ActionType = "worker_assigned"
)

// Action is one entry in the undo log.
type Action struct {
	ID        int64          `json:"id"`
	ProjectID string         `json:"project_id"`
	Type      ActionType     `json:"type"`
	EntityID  string         `json:"entity_id"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	Reversed  bool           `json:"reversed"`
	CreatedAt time.Time      `json:"created_at"`
}

// TaskOutcome is a reasoning-bank record of how a past bead resolved.
type TaskOutcome struct {
	ID         int64     `json:"id"`
	ProjectID  string    `json:"project_id"`
	BeadID     string    `json:"bead_id"`
	BeadType   BeadType  `json:"bead_type"`
	Keywords   []string  `json:"keywords,omitempty"`
	FileCount  int       `json:"file_count"`
	HasDeps    bool      `json:"has_deps"`
	Success    bool      `json:"success"`
	Reflection string    `json:"reflection"`
	ModelUsed  string    `json:"model_used,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionMetric records one worker-session iteration's cost/outcome.
type SessionMetric struct {
	ID             int64     `json:"id"`
	TaskID         string    `json:"task_id"`
	WorkerID       string    `json:"worker_id"`
	Iteration      int       `json:"iteration"`
	Tokens         int       `json:"tokens"`
	CostUSD        float64   `json:"cost_usd"`
	DurationMillis int64     `json:"duration_millis"`
	Success        bool      `json:"success"`
	Outcome        string    `json:"outcome"`
	Confidence     float64   `json:"confidence"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ContextAssemblyLog records one enrichment pipeline run for audit/debug.
type ContextAssemblyLog struct {
	ID             int64     `json:"id"`
	TaskID         string    `json:"task_id"`
	ContextHash    string    `json:"context_hash"`
	StagesRun      []string  `json:"stages_run"`
	TotalTokens    int       `json:"total_tokens"`
	BudgetTokens   int       `json:"budget_tokens"`
	DurationMillis int64     `json:"duration_millis"`
	CreatedAt      time.Time `json:"created_at"`
}

// OutputLine is one line of streamed worker stdout/stderr.
type OutputLine struct {
	TaskID    string    `json:"task_id"`
	WorkerID  string    `json:"worker_id"`
	Seq       int64     `json:"seq"`
	Stream    string    `json:"stream"` // "stdout" | "stderr"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FileChangeKind enumerates hot-reload watcher change types.
type FileChangeKind string

const (
	FileCreated  FileChangeKind = "created"
	FileModified FileChangeKind = "modified"
	FileDeleted  FileChangeKind = "deleted"
)

// FileChange is one filesystem event observed during a worker session.
type FileChange struct {
	ID         int64          `json:"id"`
	TaskID     string         `json:"task_id"`
	WorkerID   string         `json:"worker_id"`
	Path       string         `json:"path"`
	Kind       FileChangeKind `json:"kind"`
	DetectedAt time.Time      `json:"detected_at"`
}

// ReloadRecord is the result of a hot-reload-triggered test rerun.
type ReloadRecord struct {
	ID             int64     `json:"id"`
	TaskID         string    `json:"task_id"`
	TriggerPaths   []string  `json:"trigger_paths"`
	Command        string    `json:"command"`
	ExitCode       int       `json:"exit_code"`
	DurationMillis int64     `json:"duration_millis"`
	CreatedAt      time.Time `json:"created_at"`
}
