package outcome

import "testing"

func TestDetect_CompletionPromiseWins(t *testing.T) {
	out := "some logs\n<promise>COMPLETE</promise>\n"
	r := Detect(out, 1, true)
	if r.Disposition != DispositionSuccess || r.Confidence != 1.0 {
		t.Fatalf("got %+v", r)
	}
}

func TestDetect_DecisionMarker(t *testing.T) {
	out := "I need a decision on which library to use before proceeding."
	r := Detect(out, 0, true)
	if r.Disposition != DispositionNeedsDecision {
		t.Fatalf("got %+v", r)
	}
}

func TestDetect_CleanExitZero(t *testing.T) {
	r := Detect("build succeeded", 0, true)
	if r.Disposition != DispositionSuccess || r.Confidence != 0.7 {
		t.Fatalf("got %+v", r)
	}
}

func TestDetect_NonZeroExit(t *testing.T) {
	r := Detect("something went wrong", 1, true)
	if r.Disposition != DispositionFailure {
		t.Fatalf("got %+v", r)
	}
}

func TestDetect_TracebackOverridesExitZero(t *testing.T) {
	out := "Traceback (most recent call last):\n  File x\n"
	r := Detect(out, 0, true)
	if r.Disposition != DispositionFailure {
		t.Fatalf("got %+v", r)
	}
}

func TestDetect_NoSignalLowConfidenceFailure(t *testing.T) {
	r := Detect("", 0, false)
	if r.Disposition != DispositionFailure || r.Confidence >= 0.5 {
		t.Fatalf("got %+v", r)
	}
}

func TestTrimForDetection(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	out := TrimForDetection(string(long), 10)
	if len(out) != 10 {
		t.Fatalf("expected trimmed length 10, got %d", len(out))
	}
}
