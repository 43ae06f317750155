package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ringmaster-dev/ringmaster/internal/memory"
	"github.com/ringmaster-dev/ringmaster/internal/models"
	"github.com/ringmaster-dev/ringmaster/internal/rmerrors"
)

// ProjectRepository persists models.Project.
type ProjectRepository struct{ db *sql.DB }

func (r *ProjectRepository) Create(p *models.Project) error {
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = r.db.Exec(`
INSERT INTO projects (id, name, repo_url, default_branch, use_worktrees, settings)
VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.RepoURL, p.DefaultBranch, p.UseWorktrees, settings)
	if err != nil {
		return &rmerrors.StoreError{Op: "Projects.Create", Err: err}
	}
	return nil
}

func (r *ProjectRepository) Get(id string) (*models.Project, error) {
	var p models.Project
	var settings []byte
	err := r.db.QueryRow(`
SELECT id, name, repo_url, default_branch, use_worktrees, settings, created_at, updated_at
FROM projects WHERE id = $1`, id).Scan(
		&p.ID, &p.Name, &p.RepoURL, &p.DefaultBranch, &p.UseWorktrees, &settings, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &rmerrors.NotFound{Entity: "project", ID: id}
	}
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Projects.Get", Err: err}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &p.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return &p, nil
}

func (r *ProjectRepository) List() ([]*models.Project, error) {
	rows, err := r.db.Query(`SELECT id, name, repo_url, default_branch, use_worktrees, settings, created_at, updated_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Projects.List", Err: err}
	}
	defer rows.Close()
	var out []*models.Project
	for rows.Next() {
		var p models.Project
		var settings []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.RepoURL, &p.DefaultBranch, &p.UseWorktrees, &settings, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if len(settings) > 0 {
			json.Unmarshal(settings, &p.Settings)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// BeadRepository persists models.Bead and implements the ready-task query
// that backs C9's routing candidate set (spec §4.1/§4.9).
type BeadRepository struct{ db *sql.DB }

func (r *BeadRepository) Create(b *models.Bead) error {
	_, err := r.db.Exec(`
INSERT INTO beads (id, project_id, parent_id, type, title, description, status, priority, max_attempts, required_capabilities, tags)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.ProjectID, b.ParentID, b.Type, b.Title, b.Description, b.Status, b.Priority, b.MaxAttempts,
		pq.Array(b.RequiredCapabilities), pq.Array(b.Tags))
	if err != nil {
		return &rmerrors.StoreError{Op: "Beads.Create", Err: err}
	}
	return nil
}

func (r *BeadRepository) Get(id string) (*models.Bead, error) {
	b, err := scanBead(r.db.QueryRow(beadSelect+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &rmerrors.NotFound{Entity: "bead", ID: id}
	}
	return b, err
}

// Update persists in-place changes to status/attempts/retry fields,
// the fields the Scheduler and Executor mutate each lifecycle step.
func (r *BeadRepository) Update(b *models.Bead) error {
	_, err := r.db.Exec(`
UPDATE beads SET status=$2, priority=$3, assigned_worker_id=$4, attempts=$5,
	last_failure_reason=$6, blocked_reason=$7, retry_after=$8, started_at=$9,
	completed_at=$10, updated_at=now()
WHERE id=$1`,
		b.ID, b.Status, b.Priority, nullable(b.AssignedWorkerID), b.Attempts,
		nullable(b.LastFailureReason), nullable(b.BlockedReason), b.RetryAfter, b.StartedAt, b.CompletedAt)
	if err != nil {
		return &rmerrors.StoreError{Op: "Beads.Update", Err: err}
	}
	return nil
}

// GetReadyTasks returns beads in project with status ready/open whose
// dependencies are all done and whose retry_after (if set) has elapsed,
// ordered for the caller to apply routing priority over.
func (r *BeadRepository) GetReadyTasks(projectID string, limit int) ([]*models.Bead, error) {
	rows, err := r.db.Query(beadSelect+`
WHERE project_id = $1
  AND status IN ('open', 'ready')
  AND (retry_after IS NULL OR retry_after <= now())
  AND NOT EXISTS (
	SELECT 1 FROM dependencies d
	JOIN beads dep ON dep.id = d.depends_on_id
	WHERE d.bead_id = beads.id AND dep.status <> 'done'
  )
ORDER BY priority ASC, created_at ASC
LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Beads.GetReadyTasks", Err: err}
	}
	defer rows.Close()
	var out []*models.Bead
	for rows.Next() {
		b, err := scanBeadRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BeadRepository) ListByProject(projectID string) ([]*models.Bead, error) {
	rows, err := r.db.Query(beadSelect+` WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Beads.ListByProject", Err: err}
	}
	defer rows.Close()
	var out []*models.Bead
	for rows.Next() {
		b, err := scanBeadRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const beadSelect = `
SELECT id, project_id, COALESCE(parent_id,''), type, title, description, status, priority,
	COALESCE(assigned_worker_id,''), attempts, max_attempts, COALESCE(last_failure_reason,''),
	COALESCE(blocked_reason,''), retry_after, started_at, completed_at, required_capabilities, tags, created_at, updated_at
FROM beads`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBead(row rowScanner) (*models.Bead, error) {
	return scanBeadRows(row)
}

func scanBeadRows(row rowScanner) (*models.Bead, error) {
	var b models.Bead
	if err := row.Scan(&b.ID, &b.ProjectID, &b.ParentID, &b.Type, &b.Title, &b.Description,
		&b.Status, &b.Priority, &b.AssignedWorkerID, &b.Attempts, &b.MaxAttempts,
		&b.LastFailureReason, &b.BlockedReason, &b.RetryAfter, &b.StartedAt, &b.CompletedAt,
		pq.Array(&b.RequiredCapabilities), pq.Array(&b.Tags), &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, &rmerrors.StoreError{Op: "Beads.scan", Err: err}
	}
	return &b, nil
}

// DependencyRepository persists models.Dependency edges.
type DependencyRepository struct{ db *sql.DB }

func (r *DependencyRepository) Add(d *models.Dependency) error {
	_, err := r.db.Exec(`INSERT INTO dependencies (id, bead_id, depends_on_id) VALUES ($1,$2,$3)
ON CONFLICT (bead_id, depends_on_id) DO NOTHING`, d.ID, d.BeadID, d.DependsOnID)
	if err != nil {
		return &rmerrors.StoreError{Op: "Dependencies.Add", Err: err}
	}
	return nil
}

func (r *DependencyRepository) ListForProject(projectID string) ([]*models.Dependency, error) {
	rows, err := r.db.Query(`
SELECT d.id, d.bead_id, d.depends_on_id FROM dependencies d
JOIN beads b ON b.id = d.bead_id WHERE b.project_id = $1`, projectID)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Dependencies.ListForProject", Err: err}
	}
	defer rows.Close()
	var out []*models.Dependency
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.ID, &d.BeadID, &d.DependsOnID); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// WorkerRepository persists models.Worker and implements the capability
// query the Scheduler/Queue use to find assignable idle workers.
type WorkerRepository struct{ db *sql.DB }

func (r *WorkerRepository) Upsert(w *models.Worker) error {
	_, err := r.db.Exec(`
INSERT INTO workers (id, project_id, type, status, capabilities, current_task_id,
	tasks_completed, tasks_failed, last_active_at, working_dir)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
	status=EXCLUDED.status, current_task_id=EXCLUDED.current_task_id,
	tasks_completed=EXCLUDED.tasks_completed, tasks_failed=EXCLUDED.tasks_failed,
	last_active_at=EXCLUDED.last_active_at, working_dir=EXCLUDED.working_dir`,
		w.ID, w.ProjectID, w.Type, w.Status, pq.Array(w.Capabilities), w.CurrentTaskID,
		w.TasksCompleted, w.TasksFailed, w.LastActiveAt, w.WorkingDir)
	if err != nil {
		return &rmerrors.StoreError{Op: "Workers.Upsert", Err: err}
	}
	return nil
}

func (r *WorkerRepository) Get(id string) (*models.Worker, error) {
	var w models.Worker
	err := r.db.QueryRow(`
SELECT id, project_id, type, status, capabilities, COALESCE(current_task_id,''),
	tasks_completed, tasks_failed, last_active_at, COALESCE(working_dir,''), created_at
FROM workers WHERE id = $1`, id).Scan(&w.ID, &w.ProjectID, &w.Type, &w.Status, pq.Array(&w.Capabilities),
		&w.CurrentTaskID, &w.TasksCompleted, &w.TasksFailed, &w.LastActiveAt, &w.WorkingDir, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &rmerrors.NotFound{Entity: "worker", ID: id}
	}
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Workers.Get", Err: err}
	}
	return &w, nil
}

// ListIdle returns every idle worker in a project, regardless of capabilities.
func (r *WorkerRepository) ListIdle(projectID string) ([]*models.Worker, error) {
	return r.GetCapableWorkers(projectID, nil)
}

// GetCapableWorkers returns idle workers in project whose capability set
// is a superset of required (empty required matches any worker).
func (r *WorkerRepository) GetCapableWorkers(projectID string, required []string) ([]*models.Worker, error) {
	rows, err := r.db.Query(`
SELECT id, project_id, type, status, capabilities, COALESCE(current_task_id,''),
	tasks_completed, tasks_failed, last_active_at, COALESCE(working_dir,''), created_at
FROM workers
WHERE project_id = $1 AND status = 'idle' AND capabilities @> $2`,
		projectID, pq.Array(required))
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Workers.GetCapableWorkers", Err: err}
	}
	defer rows.Close()
	var out []*models.Worker
	for rows.Next() {
		var w models.Worker
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.Type, &w.Status, pq.Array(&w.Capabilities),
			&w.CurrentTaskID, &w.TasksCompleted, &w.TasksFailed, &w.LastActiveAt, &w.WorkingDir, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// ChatRepository persists models.ChatMessage and models.Summary.
type ChatRepository struct{ db *sql.DB }

func (r *ChatRepository) AddMessage(m *models.ChatMessage) (int64, error) {
	var id int64
	err := r.db.QueryRow(`
INSERT INTO chat_messages (project_id, task_id, role, content) VALUES ($1,$2,$3,$4) RETURNING id`,
		m.ProjectID, m.TaskID, m.Role, m.Content).Scan(&id)
	if err != nil {
		return 0, &rmerrors.StoreError{Op: "Chat.AddMessage", Err: err}
	}
	return id, nil
}

func (r *ChatRepository) RecentMessages(taskID string, limit int) ([]*models.ChatMessage, error) {
	rows, err := r.db.Query(`
SELECT id, project_id, task_id, role, content, created_at FROM chat_messages
WHERE task_id = $1 ORDER BY id DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Chat.RecentMessages", Err: err}
	}
	defer rows.Close()
	var out []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.TaskID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

func (r *ChatRepository) CountMessages(taskID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT count(*) FROM chat_messages WHERE task_id=$1`, taskID).Scan(&n)
	if err != nil {
		return 0, &rmerrors.StoreError{Op: "Chat.CountMessages", Err: err}
	}
	return n, nil
}

func (r *ChatRepository) MessagesInRange(taskID string, startID, endID int64) ([]*models.ChatMessage, error) {
	rows, err := r.db.Query(`
SELECT id, project_id, task_id, role, content, created_at FROM chat_messages
WHERE task_id=$1 AND id BETWEEN $2 AND $3 ORDER BY id ASC`, taskID, startID, endID)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Chat.MessagesInRange", Err: err}
	}
	defer rows.Close()
	var out []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.TaskID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *ChatRepository) AddSummary(s *models.Summary) error {
	_, err := r.db.Exec(`
INSERT INTO summaries (task_id, start_msg_id, end_msg_id, text, decisions) VALUES ($1,$2,$3,$4,$5)`,
		s.TaskID, s.StartMsgID, s.EndMsgID, s.Text, pq.Array(s.Decisions))
	if err != nil {
		return &rmerrors.StoreError{Op: "Chat.AddSummary", Err: err}
	}
	return nil
}

func (r *ChatRepository) SummariesForTask(taskID string) ([]*models.Summary, error) {
	rows, err := r.db.Query(`
SELECT id, task_id, start_msg_id, end_msg_id, text, decisions, created_at FROM summaries
WHERE task_id=$1 ORDER BY end_msg_id ASC`, taskID)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Chat.SummariesForTask", Err: err}
	}
	defer rows.Close()
	var out []*models.Summary
	for rows.Next() {
		var s models.Summary
		if err := rows.Scan(&s.ID, &s.TaskID, &s.StartMsgID, &s.EndMsgID, &s.Text, pq.Array(&s.Decisions), &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ActionRepository persists the undo log (C12).
type ActionRepository struct{ db *sql.DB }

func (r *ActionRepository) Record(a *models.Action) (int64, error) {
	before, _ := json.Marshal(a.Before)
	after, _ := json.Marshal(a.After)
	var id int64
	err := r.db.QueryRow(`
INSERT INTO actions (project_id, type, entity_id, before, after) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		a.ProjectID, a.Type, a.EntityID, before, after).Scan(&id)
	if err != nil {
		return 0, &rmerrors.StoreError{Op: "Actions.Record", Err: err}
	}
	return id, nil
}

func (r *ActionRepository) Get(id int64) (*models.Action, error) {
	var a models.Action
	var before, after []byte
	err := r.db.QueryRow(`SELECT id, project_id, type, entity_id, before, after, reversed, created_at
FROM actions WHERE id=$1`, id).Scan(&a.ID, &a.ProjectID, &a.Type, &a.EntityID, &before, &after, &a.Reversed, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &rmerrors.NotFound{Entity: "action", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Actions.Get", Err: err}
	}
	json.Unmarshal(before, &a.Before)
	json.Unmarshal(after, &a.After)
	return &a, nil
}

func (r *ActionRepository) MarkReversed(id int64, reversed bool) error {
	_, err := r.db.Exec(`UPDATE actions SET reversed=$2 WHERE id=$1`, id, reversed)
	if err != nil {
		return &rmerrors.StoreError{Op: "Actions.MarkReversed", Err: err}
	}
	return nil
}

func (r *ActionRepository) RecentForProject(projectID string, limit int) ([]*models.Action, error) {
	rows, err := r.db.Query(`SELECT id, project_id, type, entity_id, before, after, reversed, created_at
FROM actions WHERE project_id=$1 ORDER BY id DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Actions.RecentForProject", Err: err}
	}
	defer rows.Close()
	var out []*models.Action
	for rows.Next() {
		var a models.Action
		var before, after []byte
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Type, &a.EntityID, &before, &after, &a.Reversed, &a.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal(before, &a.Before)
		json.Unmarshal(after, &a.After)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ReasoningBankRepository persists models.TaskOutcome (C11).
type ReasoningBankRepository struct{ db *sql.DB }

func (r *ReasoningBankRepository) Record(o *models.TaskOutcome) error {
	_, err := r.db.Exec(`
INSERT INTO task_outcomes (project_id, bead_id, bead_type, keywords, file_count, has_deps, success, reflection, model_used)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''))`,
		o.ProjectID, o.BeadID, o.BeadType, pq.Array(o.Keywords), o.FileCount, o.HasDeps, o.Success, o.Reflection, o.ModelUsed)
	if err != nil {
		return &rmerrors.StoreError{Op: "Outcomes.Record", Err: err}
	}
	return nil
}

func (r *ReasoningBankRepository) SimilarOutcomes(projectID string, beadType models.BeadType, limit int) ([]*models.TaskOutcome, error) {
	rows, err := r.db.Query(`
SELECT id, project_id, bead_id, bead_type, keywords, file_count, has_deps, success, reflection, COALESCE(model_used,''), created_at
FROM task_outcomes WHERE project_id=$1 AND bead_type=$2 ORDER BY created_at DESC LIMIT $3`,
		projectID, beadType, limit)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "Outcomes.SimilarOutcomes", Err: err}
	}
	defer rows.Close()
	var out []*models.TaskOutcome
	for rows.Next() {
		var o models.TaskOutcome
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.BeadID, &o.BeadType, pq.Array(&o.Keywords),
			&o.FileCount, &o.HasDeps, &o.Success, &o.Reflection, &o.ModelUsed, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// ModelSuccessRate returns the fraction of successful outcomes recorded
// for modelUsed in projectID, used by C9's model-tier heuristic.
func (r *ReasoningBankRepository) ModelSuccessRate(projectID, modelUsed string) (float64, int, error) {
	var total, succeeded int
	err := r.db.QueryRow(`
SELECT count(*), count(*) FILTER (WHERE success) FROM task_outcomes
WHERE project_id=$1 AND model_used=$2`, projectID, modelUsed).Scan(&total, &succeeded)
	if err != nil {
		return 0, 0, &rmerrors.StoreError{Op: "Outcomes.ModelSuccessRate", Err: err}
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(succeeded) / float64(total), total, nil
}

// MetricsRepository persists models.SessionMetric.
type MetricsRepository struct{ db *sql.DB }

func (r *MetricsRepository) Record(m *models.SessionMetric) error {
	_, err := r.db.Exec(`
INSERT INTO session_metrics (task_id, worker_id, iteration, tokens, cost_usd, duration_millis, success, outcome, confidence, error)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''))`,
		m.TaskID, m.WorkerID, m.Iteration, m.Tokens, m.CostUSD, m.DurationMillis, m.Success, m.Outcome, m.Confidence, m.Error)
	if err != nil {
		return &rmerrors.StoreError{Op: "Metrics.Record", Err: err}
	}
	return nil
}

// AssemblyLogRepository persists models.ContextAssemblyLog.
type AssemblyLogRepository struct{ db *sql.DB }

func (r *AssemblyLogRepository) Record(l *models.ContextAssemblyLog) error {
	_, err := r.db.Exec(`
INSERT INTO context_assembly_logs (task_id, context_hash, stages_run, total_tokens, budget_tokens, duration_millis)
VALUES ($1,$2,$3,$4,$5,$6)`,
		l.TaskID, l.ContextHash, pq.Array(l.StagesRun), l.TotalTokens, l.BudgetTokens, l.DurationMillis)
	if err != nil {
		return &rmerrors.StoreError{Op: "AssemblyLogs.Record", Err: err}
	}
	return nil
}

// FileChangeRepository persists hot-reload watcher observations
// (models.FileChange), backing internal/hotreload.Recorder.
type FileChangeRepository struct{ db *sql.DB }

func (r *FileChangeRepository) Record(c *models.FileChange) error {
	_, err := r.db.Exec(`
INSERT INTO file_changes (task_id, worker_id, path, kind, detected_at)
VALUES ($1,$2,$3,$4,$5)`,
		c.TaskID, c.WorkerID, c.Path, string(c.Kind), c.DetectedAt)
	if err != nil {
		return &rmerrors.StoreError{Op: "FileChanges.Record", Err: err}
	}
	return nil
}

func (r *FileChangeRepository) RecentForTask(taskID string, limit int) ([]*models.FileChange, error) {
	rows, err := r.db.Query(`SELECT id, task_id, worker_id, path, kind, detected_at
FROM file_changes WHERE task_id=$1 ORDER BY id DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "FileChanges.RecentForTask", Err: err}
	}
	defer rows.Close()
	var out []*models.FileChange
	for rows.Next() {
		var c models.FileChange
		var kind string
		if err := rows.Scan(&c.ID, &c.TaskID, &c.WorkerID, &c.Path, &kind, &c.DetectedAt); err != nil {
			return nil, err
		}
		c.Kind = models.FileChangeKind(kind)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ReloadRecordRepository persists hot-reload test reruns (models.ReloadRecord).
type ReloadRecordRepository struct{ db *sql.DB }

func (r *ReloadRecordRepository) Record(rec *models.ReloadRecord) error {
	_, err := r.db.Exec(`
INSERT INTO reload_records (task_id, trigger_paths, command, exit_code, duration_millis, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.TaskID, pq.Array(rec.TriggerPaths), rec.Command, rec.ExitCode, rec.DurationMillis, rec.CreatedAt)
	if err != nil {
		return &rmerrors.StoreError{Op: "ReloadRecords.Record", Err: err}
	}
	return nil
}

func (r *ReloadRecordRepository) RecentForTask(taskID string, limit int) ([]*models.ReloadRecord, error) {
	rows, err := r.db.Query(`SELECT id, task_id, trigger_paths, command, exit_code, duration_millis, created_at
FROM reload_records WHERE task_id=$1 ORDER BY id DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "ReloadRecords.RecentForTask", Err: err}
	}
	defer rows.Close()
	var out []*models.ReloadRecord
	for rows.Next() {
		var rec models.ReloadRecord
		if err := rows.Scan(&rec.ID, &rec.TaskID, pq.Array(&rec.TriggerPaths), &rec.Command, &rec.ExitCode, &rec.DurationMillis, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// HotReloadRecorder adapts FileChangeRepository and ReloadRecordRepository
// to internal/hotreload.Recorder.
type HotReloadRecorder struct {
	FileChanges *FileChangeRepository
	Reloads     *ReloadRecordRepository
}

func (h *HotReloadRecorder) RecordFileChange(c *models.FileChange) error {
	return h.FileChanges.Record(c)
}

func (h *HotReloadRecorder) RecordReload(r *models.ReloadRecord) error {
	return h.Reloads.Record(r)
}

// ProjectMemoryRepository persists memory.ProjectMemory entries, satisfying
// memory.MemoryStore.
type ProjectMemoryRepository struct{ db *sql.DB }

func (r *ProjectMemoryRepository) UpsertMemory(ctx context.Context, m *memory.ProjectMemory) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO project_memories (project_id, category, key, value, confidence, source_bead, updated_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7)
ON CONFLICT (project_id, category, key) DO UPDATE
SET value=$4, confidence=$5, source_bead=NULLIF($6,''), updated_at=$7`,
		m.ProjectID, string(m.Category), m.Key, m.Value, m.Confidence, m.SourceBead, m.UpdatedAt)
	if err != nil {
		return &rmerrors.StoreError{Op: "ProjectMemory.Upsert", Err: err}
	}
	return nil
}

func (r *ProjectMemoryRepository) GetMemory(ctx context.Context, projectID string, category memory.MemoryCategory, key string) (*memory.ProjectMemory, error) {
	var m memory.ProjectMemory
	var cat, sourceBead sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT project_id, category, key, value, confidence, source_bead, updated_at
FROM project_memories WHERE project_id=$1 AND category=$2 AND key=$3`, projectID, string(category), key).
		Scan(&m.ProjectID, &cat, &m.Key, &m.Value, &m.Confidence, &sourceBead, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "ProjectMemory.Get", Err: err}
	}
	m.Category = memory.MemoryCategory(cat.String)
	m.SourceBead = sourceBead.String
	return &m, nil
}

func (r *ProjectMemoryRepository) ListMemory(ctx context.Context, projectID string) ([]*memory.ProjectMemory, error) {
	return r.query(ctx, `SELECT project_id, category, key, value, confidence, source_bead, updated_at
FROM project_memories WHERE project_id=$1 ORDER BY category, key`, projectID)
}

func (r *ProjectMemoryRepository) ListMemoryByCategory(ctx context.Context, projectID string, category memory.MemoryCategory) ([]*memory.ProjectMemory, error) {
	return r.query(ctx, `SELECT project_id, category, key, value, confidence, source_bead, updated_at
FROM project_memories WHERE project_id=$1 AND category=$2 ORDER BY key`, projectID, string(category))
}

func (r *ProjectMemoryRepository) query(ctx context.Context, q string, args ...any) ([]*memory.ProjectMemory, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &rmerrors.StoreError{Op: "ProjectMemory.List", Err: err}
	}
	defer rows.Close()
	var out []*memory.ProjectMemory
	for rows.Next() {
		var m memory.ProjectMemory
		var cat, sourceBead sql.NullString
		if err := rows.Scan(&m.ProjectID, &cat, &m.Key, &m.Value, &m.Confidence, &sourceBead, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Category = memory.MemoryCategory(cat.String)
		m.SourceBead = sourceBead.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *ProjectMemoryRepository) DeleteMemory(ctx context.Context, projectID string, category memory.MemoryCategory, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM project_memories WHERE project_id=$1 AND category=$2 AND key=$3`,
		projectID, string(category), key)
	if err != nil {
		return &rmerrors.StoreError{Op: "ProjectMemory.Delete", Err: err}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
