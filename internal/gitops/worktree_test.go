package gitops

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	require.NoError(t, os.MkdirAll(repo, 0o755))
	runGit(t, repo, "init", "-b", "main")
	runGit(t, repo, "config", "user.email", "test@example.com")
	runGit(t, repo, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hi"), 0o644))
	runGit(t, repo, "add", ".")
	runGit(t, repo, "commit", "-m", "init")
	return repo
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func TestWorkerWorktreePath_Sanitizes(t *testing.T) {
	path := WorkerWorktreePath("/srv/myrepo", "worker/1:weird")
	require.Equal(t, filepath.Join("/srv", "myrepo.worktrees", "worker-worker_1_weird"), path)
}

func TestGetOrCreateWorktree_CreatesThenReuses(t *testing.T) {
	repo := initRepo(t)
	m := NewManager()

	path, err := m.GetOrCreateWorktree(repo, Config{WorkerID: "w1", TaskID: "task-1"}, "main")
	require.NoError(t, err)
	require.DirExists(t, path)

	trees, err := m.ListWorktrees(repo)
	require.NoError(t, err)
	require.Len(t, trees, 2) // main checkout + the new worktree

	again, err := m.GetOrCreateWorktree(repo, Config{WorkerID: "w1", TaskID: "task-1"}, "main")
	require.NoError(t, err)
	require.Equal(t, path, again)
}

func TestGetOrCreateWorktree_RebranchesOnNewTask(t *testing.T) {
	repo := initRepo(t)
	m := NewManager()

	path1, err := m.GetOrCreateWorktree(repo, Config{WorkerID: "w1", TaskID: "task-1"}, "main")
	require.NoError(t, err)

	status, err := m.GetWorktreeStatus(repo, "w1", "main")
	require.NoError(t, err)
	require.Equal(t, "ringmaster/task-1", status.Branch)

	path2, err := m.GetOrCreateWorktree(repo, Config{WorkerID: "w1", TaskID: "task-2"}, "main")
	require.NoError(t, err)
	require.Equal(t, path1, path2)

	status, err = m.GetWorktreeStatus(repo, "w1", "main")
	require.NoError(t, err)
	require.Equal(t, "ringmaster/task-2", status.Branch)
}

func TestRemoveWorktree_AbsentReturnsFalse(t *testing.T) {
	repo := initRepo(t)
	m := NewManager()
	removed, err := m.RemoveWorktree(repo, "never-created", false)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestCommitChanges_NoChangesReturnsEmptyHash(t *testing.T) {
	repo := initRepo(t)
	m := NewManager()
	_, err := m.GetOrCreateWorktree(repo, Config{WorkerID: "w1"}, "main")
	require.NoError(t, err)

	hash, err := m.CommitChanges(repo, "w1", "no-op")
	require.NoError(t, err)
	require.Empty(t, hash)
}
