package monitor

import (
	"testing"
	"time"
)

func TestRecommendRecovery_None(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.RecordOutput("compiling module a")
	tr.RecordOutput("compiling module b")
	rec := tr.RecommendRecovery()
	if rec.Action != ActionNone {
		t.Fatalf("expected none, got %+v", rec)
	}
}

func TestRecommendRecovery_Repetition(t *testing.T) {
	tr := NewTracker(time.Minute)
	for i := 0; i < 4; i++ {
		tr.RecordOutput("retrying connection")
	}
	rec := tr.RecommendRecovery()
	if rec.Action != ActionLogWarning {
		t.Fatalf("expected log_warning, got %+v", rec)
	}
}

func TestRecommendRecovery_HeavyRepetitionInterrupts(t *testing.T) {
	tr := NewTracker(time.Minute)
	for i := 0; i < 8; i++ {
		tr.RecordOutput("retrying connection")
	}
	rec := tr.RecommendRecovery()
	if rec.Action != ActionInterrupt {
		t.Fatalf("expected interrupt, got %+v", rec)
	}
}

func TestRecommendRecovery_ErrorBurst(t *testing.T) {
	tr := NewTracker(time.Minute)
	for i := 0; i < 5; i++ {
		tr.RecordOutput("Error: something failed")
	}
	rec := tr.RecommendRecovery()
	if rec.Action != ActionEscalate {
		t.Fatalf("expected escalate, got %+v", rec)
	}
}

func TestRecommendRecovery_LivenessTimeout(t *testing.T) {
	tr := NewTracker(10 * time.Millisecond)
	tr.RecordOutput("started")
	time.Sleep(20 * time.Millisecond)
	rec := tr.RecommendRecovery()
	if rec.Action != ActionCheckpointRestart {
		t.Fatalf("expected checkpoint_restart, got %+v", rec)
	}
}
