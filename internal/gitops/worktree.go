// Package gitops manages per-worker git worktrees (C4): one worktree per
// supervised worker process, isolating concurrent bead execution on the
// same repository. Grounded on the teacher's exec.Command/CombinedOutput
// style in internal/gitops and the worktree algorithm of the original
// Python ringmaster's git/worktrees.py.
package gitops

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ringmaster-dev/ringmaster/internal/logging"
	"github.com/ringmaster-dev/ringmaster/internal/rmerrors"
)

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitize(s string) string {
	return sanitizeRe.ReplaceAllString(s, "_")
}

// Worktree describes one entry from `git worktree list --porcelain`.
type Worktree struct {
	Path       string
	Branch     string
	CommitHash string
	Bare       bool
	Detached   bool
	Locked     bool
	Prunable   bool
}

// Config names the worker/task a worktree is being created for.
type Config struct {
	WorkerID     string
	TaskID       string
	BranchPrefix string // defaults to "ringmaster"
}

// Manager creates, inspects, and tears down per-worker worktrees rooted
// alongside a repository at <repo>.worktrees/worker-<sanitized-id>/.
type Manager struct {
	log *logging.Logger
}

// NewManager returns a Manager. There is no persistent state: every
// method shells out to git against the repoPath it is given.
func NewManager() *Manager {
	return &Manager{log: logging.For("gitops")}
}

func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// WorktreeDir returns <repoPath's parent>/<repo-name>.worktrees.
func WorktreeDir(repoPath string) string {
	repoPath = strings.TrimSuffix(repoPath, string(filepath.Separator))
	return filepath.Join(filepath.Dir(repoPath), filepath.Base(repoPath)+".worktrees")
}

// WorkerWorktreePath returns the deterministic path for a worker's worktree.
func WorkerWorktreePath(repoPath, workerID string) string {
	return filepath.Join(WorktreeDir(repoPath), "worker-"+sanitize(workerID))
}

// ListWorktrees parses `git worktree list --porcelain`.
func (m *Manager) ListWorktrees(repoPath string) ([]Worktree, error) {
	out, err := run(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, &rmerrors.GitError{Op: "worktree list", Output: out, Err: err}
	}
	var result []Worktree
	var cur *Worktree
	flush := func() {
		if cur != nil {
			result = append(result, *cur)
			cur = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case cur == nil:
			continue
		case strings.HasPrefix(line, "HEAD "):
			cur.CommitHash = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			cur.Bare = true
		case line == "detached":
			cur.Detached = true
		case strings.HasPrefix(line, "locked"):
			cur.Locked = true
		case strings.HasPrefix(line, "prunable"):
			cur.Prunable = true
		}
	}
	flush()
	return result, nil
}

func (m *Manager) findWorktree(repoPath, path string) (*Worktree, error) {
	trees, err := m.ListWorktrees(repoPath)
	if err != nil {
		return nil, err
	}
	abs, _ := filepath.Abs(path)
	for i := range trees {
		if a, _ := filepath.Abs(trees[i].Path); a == abs {
			return &trees[i], nil
		}
	}
	return nil, nil
}

func generateBranchName(cfg Config) string {
	prefix := cfg.BranchPrefix
	if prefix == "" {
		prefix = "ringmaster"
	}
	if cfg.TaskID != "" {
		return fmt.Sprintf("%s/%s", prefix, sanitize(cfg.TaskID))
	}
	return fmt.Sprintf("%s/worker-%s", prefix, sanitize(cfg.WorkerID))
}

// getBaseRef prefers origin/<baseBranch> (fetching it first) and falls
// back to the local branch name if the remote is unreachable.
func (m *Manager) getBaseRef(repoPath, baseBranch string) string {
	if _, err := run(repoPath, "fetch", "origin", baseBranch); err == nil {
		if _, err := run(repoPath, "rev-parse", "--verify", "origin/"+baseBranch); err == nil {
			return "origin/" + baseBranch
		}
	}
	return baseBranch
}

// GetOrCreateWorktree returns the worktree path for cfg.WorkerID, creating
// it (and its branch) against baseBranch if it doesn't already exist. If
// the worktree exists and cfg.TaskID names a new task, the worktree is
// hard-reset and rebranched so a previous task's changes never leak.
func (m *Manager) GetOrCreateWorktree(repoPath string, cfg Config, baseBranch string) (string, error) {
	if baseBranch == "" {
		baseBranch = "main"
	}
	path := WorkerWorktreePath(repoPath, cfg.WorkerID)

	existing, err := m.findWorktree(repoPath, path)
	if err != nil {
		return "", err
	}

	branch := generateBranchName(cfg)

	if existing != nil {
		if cfg.TaskID != "" && existing.Branch != branch {
			if out, err := run(path, "reset", "--hard"); err != nil {
				return "", &rmerrors.GitError{Op: "reset --hard", Output: out, Err: err}
			}
			run(path, "clean", "-fd")
			baseRef := m.getBaseRef(repoPath, baseBranch)
			if out, err := run(path, "checkout", "-B", branch, baseRef); err != nil {
				return "", &rmerrors.GitError{Op: "checkout -B", Output: out, Err: err}
			}
		}
		return path, nil
	}

	if err := os.MkdirAll(WorktreeDir(repoPath), 0o755); err != nil {
		return "", fmt.Errorf("gitops: mkdir worktree dir: %w", err)
	}

	baseRef := m.getBaseRef(repoPath, baseBranch)
	out, err := run(repoPath, "worktree", "add", "-b", branch, path, baseRef)
	if err != nil && strings.Contains(out, "already exists") {
		out, err = run(repoPath, "worktree", "add", path, branch)
	}
	if err != nil {
		return "", &rmerrors.GitError{Op: "worktree add", Output: out, Err: err}
	}
	return path, nil
}

// RemoveWorktree removes a worker's worktree. Returns false if it never existed.
func (m *Manager) RemoveWorktree(repoPath, workerID string, force bool) (bool, error) {
	path := WorkerWorktreePath(repoPath, workerID)
	existing, err := m.findWorktree(repoPath, path)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if out, err := run(repoPath, args...); err != nil {
		return false, &rmerrors.GitError{Op: "worktree remove", Output: out, Err: err}
	}
	return true, nil
}

// CleanStaleWorktrees prunes worktrees whose directories were deleted
// out-of-band, returning the number of entries removed.
func (m *Manager) CleanStaleWorktrees(repoPath string) (int, error) {
	out, err := run(repoPath, "worktree", "prune", "-v")
	if err != nil {
		return 0, &rmerrors.GitError{Op: "worktree prune", Output: out, Err: err}
	}
	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Removing") {
			count++
		}
	}
	return count, nil
}

// Status summarizes a worker worktree's divergence from the target branch.
type Status struct {
	Exists               bool
	Path                 string
	Branch               string
	HasUncommittedChanges bool
	ChangedFiles         int
	CommitsAhead         int
}

// GetWorktreeStatus reports whether a worker's worktree has uncommitted
// changes and how far ahead of the target branch it has diverged.
func (m *Manager) GetWorktreeStatus(repoPath, workerID, targetBranch string) (Status, error) {
	path := WorkerWorktreePath(repoPath, workerID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Status{Exists: false}, nil
	}
	if targetBranch == "" {
		targetBranch = "main"
	}

	branchOut, err := run(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return Status{}, &rmerrors.GitError{Op: "rev-parse HEAD", Output: branchOut, Err: err}
	}
	branch := strings.TrimSpace(branchOut)

	statusOut, err := run(path, "status", "--porcelain")
	if err != nil {
		return Status{}, &rmerrors.GitError{Op: "status --porcelain", Output: statusOut, Err: err}
	}
	changed := 0
	for _, line := range strings.Split(strings.TrimRight(statusOut, "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			changed++
		}
	}

	aheadOut, err := run(path, "rev-list", "--count", targetBranch+".."+branch)
	ahead := 0
	if err == nil {
		ahead, _ = strconv.Atoi(strings.TrimSpace(aheadOut))
	}

	return Status{
		Exists:                true,
		Path:                  path,
		Branch:                branch,
		HasUncommittedChanges: changed > 0,
		ChangedFiles:          changed,
		CommitsAhead:          ahead,
	}, nil
}

// CommitChanges stages and commits all pending changes in a worker's
// worktree, returning the new commit hash, or "" if the tree was clean.
func (m *Manager) CommitChanges(repoPath, workerID, message string) (string, error) {
	path := WorkerWorktreePath(repoPath, workerID)
	if out, err := run(path, "add", "-A"); err != nil {
		return "", &rmerrors.GitError{Op: "add -A", Output: out, Err: err}
	}
	statusOut, err := run(path, "status", "--porcelain")
	if err != nil {
		return "", &rmerrors.GitError{Op: "status --porcelain", Output: statusOut, Err: err}
	}
	if strings.TrimSpace(statusOut) == "" {
		return "", nil
	}
	if out, err := run(path, "commit", "-m", message); err != nil {
		return "", &rmerrors.GitError{Op: "commit", Output: out, Err: err}
	}
	hashOut, err := run(path, "rev-parse", "HEAD")
	if err != nil {
		return "", &rmerrors.GitError{Op: "rev-parse HEAD", Output: hashOut, Err: err}
	}
	return strings.TrimSpace(hashOut), nil
}

// MergeToTarget merges a worker's branch into targetBranch in the main
// checkout. A merge conflict is reported as (false, message, nil) rather
// than an error — the caller decides whether to retry or escalate.
func (m *Manager) MergeToTarget(repoPath, workerID, targetBranch, message string) (bool, string, error) {
	path := WorkerWorktreePath(repoPath, workerID)
	if targetBranch == "" {
		targetBranch = "main"
	}

	branchOut, err := run(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return false, "", &rmerrors.GitError{Op: "rev-parse HEAD", Output: branchOut, Err: err}
	}
	source := strings.TrimSpace(branchOut)

	countOut, err := run(repoPath, "rev-list", "--count", targetBranch+".."+source)
	if err == nil {
		if n, _ := strconv.Atoi(strings.TrimSpace(countOut)); n == 0 {
			return true, "no commits to merge", nil
		}
	}

	if out, err := run(repoPath, "fetch", ".", source+":"+source); err != nil {
		return false, "", &rmerrors.GitError{Op: "fetch local branch", Output: out, Err: err}
	}
	if out, err := run(repoPath, "checkout", targetBranch); err != nil {
		return false, "", &rmerrors.GitError{Op: "checkout target", Output: out, Err: err}
	}
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", source, targetBranch)
	}
	out, err := run(repoPath, "merge", "--no-ff", "-m", message, source)
	if err != nil {
		if strings.Contains(out, "CONFLICT") {
			return false, fmt.Sprintf("merge conflict: %s", out), nil
		}
		return false, "", &rmerrors.GitError{Op: "merge", Output: out, Err: err}
	}
	return true, "", nil
}
