// Package editor holds the server-side state of the visual template editor:
// a linear snapshot history with undo/redo, the editing store built on it,
// and a debounced auto-saver.
package editor

import (
	"sync"

	"github.com/makemykankotri/kankotri/pkg/models"
)

// DefaultHistoryLimit bounds the number of retained snapshots
const DefaultHistoryLimit = 100

// History is a flat list of immutable template snapshots with a cursor.
// Undo and Redo move the cursor; Push truncates everything after it.
type History struct {
	mu        sync.Mutex
	snapshots []*models.Template
	cursor    int
	limit     int
}

// NewHistory creates a history whose first snapshot is initial
func NewHistory(initial *models.Template, limit int) *History {
	if limit <= 1 {
		limit = DefaultHistoryLimit
	}
	h := &History{limit: limit}
	h.Reset(initial)
	return h
}

// Reset discards all snapshots and starts over from snapshot
func (h *History) Reset(snapshot *models.Template) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshots = []*models.Template{snapshot.Clone()}
	h.cursor = 0
}

// Push records a new snapshot after the cursor, dropping any redo entries
func (h *History) Push(snapshot *models.Template) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshots = append(h.snapshots[:h.cursor+1], snapshot.Clone())

	if excess := len(h.snapshots) - h.limit; excess > 0 {
		for i := 0; i < excess; i++ {
			h.snapshots[i] = nil
		}
		h.snapshots = h.snapshots[excess:]
	}
	h.cursor = len(h.snapshots) - 1
}

// Undo moves the cursor back and returns that snapshot
func (h *History) Undo() (*models.Template, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor == 0 {
		return nil, ErrNothingToUndo
	}
	h.cursor--
	return h.snapshots[h.cursor].Clone(), nil
}

// Redo moves the cursor forward and returns that snapshot
func (h *History) Redo() (*models.Template, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor >= len(h.snapshots)-1 {
		return nil, ErrNothingToRedo
	}
	h.cursor++
	return h.snapshots[h.cursor].Clone(), nil
}

// Current returns the snapshot at the cursor
func (h *History) Current() *models.Template {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshots[h.cursor].Clone()
}

// CanUndo reports whether Undo would succeed
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0
}

// CanRedo reports whether Redo would succeed
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.snapshots)-1
}

// Len returns the number of retained snapshots
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots)
}

// Cursor returns the index of the current snapshot
func (h *History) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}
