package acl

import "sync"

// DefaultRecentCapacity bounds the duplicate-suppression window.
const DefaultRecentCapacity = 64

// RecentFilter remembers the dedup keys of recently seen envelopes in a
// bounded FIFO set. When the capacity is exceeded the oldest remembered key
// is forgotten, so a key can legitimately reappear after enough distinct
// traffic has passed.
type RecentFilter struct {
	mu    sync.Mutex
	cap   int
	seen  map[string]struct{}
	order []string
}

// NewRecentFilter builds a filter with the given capacity; non-positive
// capacities fall back to DefaultRecentCapacity.
func NewRecentFilter(capacity int) *RecentFilter {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentFilter{
		cap:  capacity,
		seen: make(map[string]struct{}, capacity),
	}
}

// IsDuplicate reports whether the envelope's dedup key is currently
// remembered.
func (f *RecentFilter) IsDuplicate(e *Envelope) bool {
	key := e.DedupKey()
	f.mu.Lock()
	defer f.mu.Unlock()
	_, dup := f.seen[key]
	return dup
}

// Remember records the envelope's dedup key, evicting the oldest key when
// the window is full. Remembering an already-known key is a no-op.
func (f *RecentFilter) Remember(e *Envelope) {
	key := e.DedupKey()
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[key]; ok {
		return
	}
	if len(f.order) >= f.cap {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.seen, oldest)
	}
	f.seen[key] = struct{}{}
	f.order = append(f.order, key)
}

// Len reports how many keys are currently remembered.
func (f *RecentFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}
