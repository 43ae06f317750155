// Package logging provides component-prefixed loggers in the style used
// throughout the teacher codebase: the standard library log package with
// a bracketed component tag, no structured-logging dependency.
package logging

import (
	"log"
	"os"
)

// Logger writes lines prefixed with a component tag.
type Logger struct {
	*log.Logger
	component string
}

// For returns a Logger prefixed with "[component] ".
func For(component string) *Logger {
	return &Logger{
		Logger:    log.New(os.Stderr, "["+component+"] ", log.LstdFlags),
		component: component,
	}
}

// Warn logs a message with a "Warning: " prefix, matching the convention
// used at every downgrade point (worktree fallback, dropped event, etc).
func (l *Logger) Warn(format string, args ...any) {
	l.Printf("Warning: "+format, args...)
}

// Component returns the tag this logger was created with.
func (l *Logger) Component() string { return l.component }
