package testutil

import (
	"sync"

	"github.com/roach88/dust/internal/entity"
)

// RecordingNotifier collects change notifications for assertions.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingNotifier struct {
	mu      sync.Mutex
	changes []entity.Change
}

// NewRecordingNotifier creates an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Notify records c.
func (n *RecordingNotifier) Notify(c entity.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
}

// Changes returns a copy of everything recorded so far.
func (n *RecordingNotifier) Changes() []entity.Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]entity.Change, len(n.changes))
	copy(out, n.changes)
	return out
}

// Len returns the number of recorded changes.
func (n *RecordingNotifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.changes)
}

// Reset forgets everything recorded.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = nil
}
