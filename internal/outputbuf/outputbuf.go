// Package outputbuf is the streaming output buffer (C3): a bounded ring
// of models.OutputLine per worker, keyed by worker id with per-key
// locking so concurrent workers never contend on a shared mutex.
package outputbuf

import (
	"sync"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

const defaultDepth = 10000

// ring is a fixed-capacity circular buffer of OutputLine.
type ring struct {
	mu    sync.RWMutex
	lines []models.OutputLine
	start int
	size  int
	seq   int64
}

func newRing(depth int) *ring {
	return &ring{lines: make([]models.OutputLine, depth)}
}

func (r *ring) push(line models.OutputLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line.Seq = r.seq
	r.seq++
	depth := len(r.lines)
	idx := (r.start + r.size) % depth
	if r.size < depth {
		r.size++
	} else {
		r.start = (r.start + 1) % depth
	}
	r.lines[idx] = line
}

func (r *ring) snapshot() []models.OutputLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.OutputLine, r.size)
	depth := len(r.lines)
	for i := 0; i < r.size; i++ {
		out[i] = r.lines[(r.start+i)%depth]
	}
	return out
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start, r.size = 0, 0
}

// Buffer holds one ring per worker id.
type Buffer struct {
	mu    sync.RWMutex
	rings map[string]*ring
	depth int
}

// New creates a Buffer with the given per-worker ring depth (0 = default 10000).
func New(depth int) *Buffer {
	if depth <= 0 {
		depth = defaultDepth
	}
	return &Buffer{rings: make(map[string]*ring), depth: depth}
}

func (b *Buffer) ringFor(workerID string) *ring {
	b.mu.RLock()
	r, ok := b.rings[workerID]
	b.mu.RUnlock()
	if ok {
		return r
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rings[workerID]; ok {
		return r
	}
	r = newRing(b.depth)
	b.rings[workerID] = r
	return r
}

// Append records one output line for a worker.
func (b *Buffer) Append(workerID string, line models.OutputLine) {
	b.ringFor(workerID).push(line)
}

// Snapshot returns the currently buffered lines for a worker, oldest first.
func (b *Buffer) Snapshot(workerID string) []models.OutputLine {
	return b.ringFor(workerID).snapshot()
}

// Clear empties a worker's buffer, called at the start of each new
// session so stale output from a prior attempt never leaks into the
// outcome detector for the current one.
func (b *Buffer) Clear(workerID string) {
	b.ringFor(workerID).clear()
}

// Drop removes a worker's ring entirely once it is no longer supervised.
func (b *Buffer) Drop(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rings, workerID)
}
