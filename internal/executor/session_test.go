package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ringmaster-dev/ringmaster/internal/outputbuf"
)

func TestSession_Run_CapturesStdoutAndExitCode(t *testing.T) {
	s := NewSession("sh", []string{"-c", "cat; echo done"}, ".", "hello from the prompt")
	buf := outputbuf.New(0)

	result := s.Run(context.Background(), "worker-1", buf)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if !result.ExitCodeKnown || result.ExitCode != 0 {
		t.Fatalf("expected known zero exit, got known=%v code=%d", result.ExitCodeKnown, result.ExitCode)
	}
	if !strings.Contains(result.Output, "hello from the prompt") {
		t.Fatalf("expected stdin echoed back through cat, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "done") {
		t.Fatalf("expected trailing echo output, got %q", result.Output)
	}

	lines := buf.Snapshot("worker-1")
	if len(lines) == 0 {
		t.Fatal("expected output lines buffered for worker-1")
	}
}

func TestSession_Run_NonZeroExit(t *testing.T) {
	s := NewSession("sh", []string{"-c", "exit 3"}, ".", "")
	buf := outputbuf.New(0)

	result := s.Run(context.Background(), "worker-2", buf)

	if !result.ExitCodeKnown || result.ExitCode != 3 {
		t.Fatalf("expected known exit 3, got known=%v code=%d", result.ExitCodeKnown, result.ExitCode)
	}
}

func TestSession_Run_CanceledContext(t *testing.T) {
	s := NewSession("sh", []string{"-c", "sleep 5"}, ".", "")
	buf := outputbuf.New(0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := s.Run(ctx, "worker-3", buf)

	if result.ExitCodeKnown && result.ExitCode == 0 {
		t.Fatal("expected the canceled process not to report a clean zero exit")
	}
}
