// Package correlation matches replies to in-flight requests by correlation id.
package correlation

import (
	"errors"
	"sync"
)

var (
	ErrDuplicateID = errors.New("correlation: id is already pending")
	ErrClosed      = errors.New("correlation: table is closed")
)

// Table holds one buffered channel per pending request. Entries are removed
// either by Resolve or by the release function returned from Register, so a
// timed out request never leaks its slot.
type Table[T any] struct {
	mu      sync.Mutex
	pending map[string]chan T
	closed  bool
}

// NewTable returns an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{pending: make(map[string]chan T)}
}

// Register reserves id and returns the channel its reply will arrive on.
// The release function is idempotent and must be called once the caller
// stops waiting.
func (t *Table[T]) Register(id string) (<-chan T, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, nil, ErrClosed
	}
	if _, ok := t.pending[id]; ok {
		return nil, nil, ErrDuplicateID
	}

	ch := make(chan T, 1)
	t.pending[id] = ch
	release := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if current, ok := t.pending[id]; ok && current == ch {
			delete(t.pending, id)
		}
	}
	return ch, release, nil
}

// Resolve delivers v to the request waiting on id. It reports false when no
// such request is pending, for example because it already timed out.
func (t *Table[T]) Resolve(id string, v T) bool {
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	ch <- v
	return true
}

// Len returns the number of pending requests.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close releases every pending request by closing its channel and rejects
// further registrations.
func (t *Table[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}
