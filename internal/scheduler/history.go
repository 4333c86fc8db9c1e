package scheduler

import (
	"sync"

	"github.com/communitysignals/scout/internal/store"
)

// historyRing keeps the most recent run entries in memory. It is a
// write-through cache over the durable run_history table: every entry is
// appended here and persisted; reads prefer the durable store and fall back
// to the ring when the store is unreachable.
type historyRing struct {
	mu      sync.Mutex
	entries []store.RunHistoryEntry
	cap     int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity <= 0 {
		capacity = 50
	}
	return &historyRing{cap: capacity}
}

func (r *historyRing) Append(e store.RunHistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

// Snapshot returns up to limit entries, newest first.
func (r *historyRing) Snapshot(limit int) []store.RunHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]store.RunHistoryEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out
}

func (r *historyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
