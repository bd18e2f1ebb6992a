// Package undo keeps a bounded undo/redo history of graph snapshots for a
// single flow.
//
// Mutations arrive at two very different rates, so a History coalesces
// them two ways:
//
//   - Debounced pushes (typing, dragging) keep the first snapshot of a
//     burst and commit it once the burst has been quiet for the debounce
//     period.
//   - Immediate pushes (discrete actions) commit at once, but a second
//     immediate push inside the batch window is dropped. Deleting a node
//     also deletes its edges; both mutations count as one undo step.
//
// An immediate push, Undo, Redo and Flush all commit a pending debounced
// snapshot first.
package undo

import (
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
)

// Defaults for a new History.
const (
	DefaultMaxDepth    = 50
	DefaultDebounce    = 500 * time.Millisecond
	DefaultBatchWindow = 50 * time.Millisecond
)

// Snapshot is a structural copy of a flow's graph.
type Snapshot struct {
	Nodes []promptgraph.Node `json:"nodes"`
	Edges []promptgraph.Edge `json:"edges"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Nodes: promptgraph.CloneNodes(s.Nodes),
		Edges: promptgraph.CloneEdges(s.Edges),
	}
}

// Option configures a History.
type Option func(*History)

// WithMaxDepth bounds the undo stack. Oldest entries are evicted first.
func WithMaxDepth(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.maxDepth = n
		}
	}
}

// WithDebounce sets the quiet period before a debounced burst commits.
func WithDebounce(d time.Duration) Option {
	return func(h *History) {
		if d > 0 {
			h.debounce = d
		}
	}
}

// WithBatchWindow sets the window in which repeated immediate pushes are dropped.
func WithBatchWindow(d time.Duration) Option {
	return func(h *History) {
		if d >= 0 {
			h.batchWindow = d
		}
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(h *History) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(h *History) {
		if l != nil {
			h.logger = l
		}
	}
}

// History is the undo/redo history of one flow. It is safe for
// concurrent use. Create one per flow and Dispose it when the flow is
// closed.
type History struct {
	mu sync.Mutex

	maxDepth    int
	debounce    time.Duration
	batchWindow time.Duration
	clock       Clock
	logger      *slog.Logger

	past   []Snapshot
	future []Snapshot

	pending    *Snapshot
	timer      Timer
	generation uint64

	lastImmediate time.Time
	disposed      bool
}

// New creates an empty History.
func New(opts ...Option) *History {
	h := &History{
		maxDepth:    DefaultMaxDepth,
		debounce:    DefaultDebounce,
		batchWindow: DefaultBatchWindow,
		clock:       realClock{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Seed records the flow's initial state so the first Undo is a no-op
// restore rather than nothing. It only has an effect on an empty undo stack.
func (h *History) Seed(initial Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed || len(h.past) > 0 {
		return
	}
	h.past = append(h.past, initial.Clone())
}

// Push records before, the state prior to a mutation.
func (h *History) Push(before Snapshot, debounce bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}

	if debounce {
		if h.pending == nil {
			snap := before.Clone()
			h.pending = &snap
		}
		h.armTimerLocked()
		return
	}

	now := h.clock.Now()
	if !h.lastImmediate.IsZero() && now.Sub(h.lastImmediate) < h.batchWindow {
		h.logger.Debug("undo push batched", slog.Duration("since_last", now.Sub(h.lastImmediate)))
		return
	}

	h.flushLocked()
	h.commitLocked(before.Clone())
	h.lastImmediate = now
}

// Flush commits a pending debounced snapshot immediately.
func (h *History) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
}

// Undo returns the state to restore and pushes current onto the redo
// stack. ok is false when there is nothing to undo.
func (h *History) Undo(current Snapshot) (restored Snapshot, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return Snapshot{}, false
	}

	h.flushLocked()
	if len(h.past) == 0 {
		return Snapshot{}, false
	}
	restored = h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, current.Clone())
	return restored.Clone(), true
}

// Redo returns the state to restore and pushes current onto the undo
// stack. ok is false when there is nothing to redo.
//
// A pending debounced snapshot is committed first, and committing clears
// the redo stack: an edit made after Undo always discards the redo history.
func (h *History) Redo(current Snapshot) (restored Snapshot, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return Snapshot{}, false
	}

	h.flushLocked()
	if len(h.future) == 0 {
		return Snapshot{}, false
	}
	restored = h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, current.Clone())
	h.trimLocked()
	return restored.Clone(), true
}

// CanUndo reports whether Undo would restore a snapshot.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0 || h.pending != nil
}

// CanRedo reports whether Redo would restore a snapshot.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0 && h.pending == nil
}

// Depth returns the sizes of the undo and redo stacks, not counting a
// pending debounced snapshot.
func (h *History) Depth() (past, future int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past), len(h.future)
}

// Pending reports whether a debounced snapshot is waiting to commit.
func (h *History) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending != nil
}

// Dispose stops the debounce timer and drops all history. A disposed
// History ignores further pushes.
func (h *History) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTimerLocked()
	h.pending = nil
	h.past = nil
	h.future = nil
	h.disposed = true
}

func (h *History) armTimerLocked() {
	h.stopTimerLocked()
	gen := h.generation
	h.timer = h.clock.AfterFunc(h.debounce, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		// A newer push or a flush already replaced this timer.
		if h.generation != gen || h.disposed {
			return
		}
		h.timer = nil
		h.commitPendingLocked()
	})
}

func (h *History) stopTimerLocked() {
	h.generation++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *History) flushLocked() {
	h.stopTimerLocked()
	h.commitPendingLocked()
}

func (h *History) commitPendingLocked() {
	if h.pending == nil {
		return
	}
	snap := *h.pending
	h.pending = nil
	h.commitLocked(snap)
}

func (h *History) commitLocked(snap Snapshot) {
	h.past = append(h.past, snap)
	h.trimLocked()
	h.future = nil
}

func (h *History) trimLocked() {
	if over := len(h.past) - h.maxDepth; over > 0 {
		h.logger.Debug("undo history evicted", slog.Int("count", over))
		h.past = append([]Snapshot(nil), h.past[over:]...)
	}
}
