// Package executor implements the Worker Executor (C8): the per-bead
// lifecycle that resolves a worktree, assembles an enriched prompt,
// spawns the external coding-agent process, streams its output through
// the monitor, classifies the result, and persists the outcome.
// Grounded on internal/taskexecutor.Executor's workerLoop/executeBead
// and on original_source/executor/task_executor.py's run_task.
package executor

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"time"

	"github.com/ringmaster-dev/ringmaster/internal/logging"
	"github.com/ringmaster-dev/ringmaster/internal/models"
	"github.com/ringmaster-dev/ringmaster/internal/outputbuf"
)

// SessionResult is what a finished worker process produced.
type SessionResult struct {
	ExitCode      int
	ExitCodeKnown bool
	Output        string
	DurationMillis int64
	Err           error
}

// Session runs one external coding-agent invocation and streams its
// combined stdout/stderr line by line into an outputbuf.Buffer while the
// caller's monitor polls for degradation.
type Session struct {
	Command    string
	Args       []string
	WorkingDir string
	Prompt     string
	log        *logging.Logger
}

// NewSession prepares (but does not start) an agent invocation.
func NewSession(command string, args []string, workingDir, prompt string) *Session {
	return &Session{Command: command, Args: args, WorkingDir: workingDir, Prompt: prompt, log: logging.For("executor.session")}
}

// Run starts the process, writes the prompt to its stdin, and streams
// output into buf under workerID until the process exits or ctx is
// canceled. It returns once the process has fully exited.
func (s *Session) Run(ctx context.Context, workerID string, buf *outputbuf.Buffer) SessionResult {
	start := time.Now()
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Dir = s.WorkingDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return SessionResult{Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return SessionResult{Err: err}
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return SessionResult{Err: err}
	}

	go func() {
		defer stdin.Close()
		io.WriteString(stdin, s.Prompt)
	}()

	var full []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		full = append(full, line...)
		full = append(full, '\n')
		buf.Append(workerID, models.OutputLine{
			WorkerID:  workerID,
			Stream:    "stdout",
			Text:      line,
			Timestamp: time.Now(),
		})
	}

	waitErr := cmd.Wait()
	result := SessionResult{
		Output:         string(full),
		DurationMillis: time.Since(start).Milliseconds(),
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		result.ExitCodeKnown = true
	} else if waitErr == nil {
		result.ExitCode = 0
		result.ExitCodeKnown = true
	} else {
		result.Err = waitErr
	}
	return result
}
