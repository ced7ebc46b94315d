// Package dedup decides whether a candidate container has already been
// processed, using two independent keys: the surrogate node key stamped on
// first sight and the logical id carried by the container.
package dedup

import "sync"

// Tracker records seen surrogate keys and logical ids.
//
// The check-and-record in ShouldProcess is one critical section: no other
// caller can interleave between the decision and the registration.
type Tracker struct {
	mu   sync.Mutex
	keys map[string]struct{}
	ids  map[string]struct{}
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		keys: make(map[string]struct{}),
		ids:  make(map[string]struct{}),
	}
}

// ShouldProcess reports whether the container identified by key (surrogate
// node key) and logicalID (may be empty) is new. Key identity is checked
// first, then the logical id. Accepting registers both atomically, so the
// same node, or a different node carrying the same logical id, is accepted
// exactly once.
func (t *Tracker) ShouldProcess(key, logicalID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, seen := t.keys[key]; seen {
		return false
	}
	if logicalID != "" {
		if _, seen := t.ids[logicalID]; seen {
			return false
		}
	}

	t.keys[key] = struct{}{}
	if logicalID != "" {
		t.ids[logicalID] = struct{}{}
	}
	return true
}

// MarkSeen registers a logical id without an accept decision. Used to seed
// the tracker from persisted state.
func (t *Tracker) MarkSeen(logicalID string) {
	if logicalID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids[logicalID] = struct{}{}
}

// Len returns the number of seen surrogate keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

// ResetKeys forgets node identities but keeps logical ids. Called when a
// watcher session ends: node keys are only meaningful within one lifetime of
// the page, while logical ids survive re-renders.
func (t *Tracker) ResetKeys() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys = make(map[string]struct{})
}

// Reset forgets everything.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys = make(map[string]struct{})
	t.ids = make(map[string]struct{})
}
