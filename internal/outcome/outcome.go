// Package outcome implements the Outcome Detector (C6): a pure function
// over a worker session's aggregated output and exit code that classifies
// the session into a bead disposition. Grounded on
// original_source/executor/outcome_detector.py's priority ladder and on
// this repo's own dispatch.LoopDetector for the failure-pattern style.
package outcome

import (
	"regexp"
	"strings"

	"github.com/ringmaster-dev/ringmaster/internal/audit"
)

// Disposition is the classification an Outcome Detector assigns to a
// finished worker session.
type Disposition string

const (
	DispositionSuccess       Disposition = "success"
	DispositionNeedsDecision Disposition = "needs_decision"
	DispositionFailure       Disposition = "failure"
)

// Result is the detector's verdict plus the reasoning behind it.
type Result struct {
	Disposition Disposition
	Confidence  float64
	Reason      string

	// Findings is populated only by DetectWithFindings: structured
	// build/test/lint diagnostics extracted from the same output the
	// disposition was classified from.
	Findings []audit.Finding
}

var (
	completePromiseRe = regexp.MustCompile(`<promise>\s*COMPLETE\s*</promise>`)
	decisionPromiseRe = regexp.MustCompile(`<promise>\s*NEEDS_DECISION\s*</promise>`)
	decisionMarkerRe  = regexp.MustCompile(`(?i)\b(need(s)? (a |your )?decision|please (confirm|advise|decide)|waiting (for|on) (input|approval|decision))\b`)
	failurePatternRe  = regexp.MustCompile(`(?m)^(Traceback \(most recent call last\)|Error:|Aborting|panic:|FATAL)`)
)

// Detect classifies a session by exit code and aggregated output, in the
// exact priority order: an explicit completion promise wins outright,
// then an explicit or implied decision request, then exit-code/pattern
// based success or failure.
func Detect(output string, exitCode int, exitCodeKnown bool) Result {
	if completePromiseRe.MatchString(output) {
		return Result{Disposition: DispositionSuccess, Confidence: 1.0, Reason: "completion promise found"}
	}

	if decisionPromiseRe.MatchString(output) || decisionMarkerRe.MatchString(output) {
		return Result{Disposition: DispositionNeedsDecision, Confidence: 0.9, Reason: "decision request marker found"}
	}

	hasFailurePattern := failurePatternRe.MatchString(output)

	if exitCodeKnown && exitCode == 0 && !hasFailurePattern {
		return Result{Disposition: DispositionSuccess, Confidence: 0.7, Reason: "exit 0, no failure pattern"}
	}

	if (exitCodeKnown && exitCode != 0) || hasFailurePattern {
		reason := "non-zero exit"
		if hasFailurePattern {
			reason = "failure pattern in output"
		}
		return Result{Disposition: DispositionFailure, Confidence: 0.8, Reason: reason}
	}

	return Result{Disposition: DispositionFailure, Confidence: 0.4, Reason: "no completion signal"}
}

// auditSources is the fixed command-to-parser mapping DetectWithFindings
// feeds through audit.Parser.Parse: Ringmaster's worker sessions run these
// three checks (when the project defines them) before signaling completion.
var auditSources = []string{"go build", "go test", "golangci-lint"}

// DetectWithFindings runs Detect and additionally extracts structured
// build/test/lint diagnostics from output via audit.Parser, so a failure
// disposition carries actionable findings instead of just a free-text
// reason. A DispositionFailure backed by zero findings still means
// something broke; it just wasn't one of the three known check outputs.
func DetectWithFindings(output string, exitCode int, exitCodeKnown bool) Result {
	r := Detect(output, exitCode, exitCodeKnown)
	if r.Disposition != DispositionFailure {
		return r
	}

	parser := audit.NewParser()
	var findings []audit.Finding
	for _, source := range auditSources {
		findings = append(findings, parser.Parse(source, output)...)
	}
	r.Findings = findings
	return r
}

// TrimForDetection keeps detection cheap on very large output buffers by
// only looking at the tail, where completion signals and tracebacks live.
func TrimForDetection(output string, maxChars int) string {
	if len(output) <= maxChars {
		return output
	}
	return output[len(output)-maxChars:]
}

// summarizeReason is a small helper for logging a one-line disposition
// summary without leaking the full output buffer.
func summarizeReason(r Result) string {
	return strings.TrimSpace(string(r.Disposition) + ": " + r.Reason)
}
