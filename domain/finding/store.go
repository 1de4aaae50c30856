package finding

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Store errors.
var (
	// ErrEmptyID is returned when a finding arrives without a caller id.
	ErrEmptyID = errors.New("finding id is required")

	// ErrNoLens is returned when a finding arrives without a lens id.
	ErrNoLens = errors.New("finding lens id is required")
)

// Store is the append-only finding log. Appends are idempotent on the
// caller-supplied finding id and safe for concurrent analyzer feeds; reads
// take a point-in-time snapshot.
type Store struct {
	mu      sync.RWMutex
	seq     uint64
	byID    map[string]int
	entries []Finding
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]int)}
}

// Append adds a finding and assigns its sequence number. Re-submitting an id
// already in the log is a no-op returning the stored copy.
func (s *Store) Append(f Finding) (Finding, error) {
	if f.ID == "" {
		return Finding{}, ErrEmptyID
	}
	if f.LensID == "" {
		return Finding{}, ErrNoLens
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byID[f.ID]; ok {
		return s.entries[idx], nil
	}

	s.seq++
	f.Sequence = s.seq
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now()
	}
	s.byID[f.ID] = len(s.entries)
	s.entries = append(s.entries, f)
	return f, nil
}

// Get returns the finding with the given id.
func (s *Store) Get(id string) (Finding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Finding{}, false
	}
	return s.entries[idx], true
}

// Snapshot returns all findings in append order. The slice is a copy; a
// finding arriving mid-tick is simply picked up by the next snapshot.
func (s *Store) Snapshot() []Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Finding, len(s.entries))
	copy(out, s.entries)
	return out
}

// Sequence returns the highest assigned sequence number.
func (s *Store) Sequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Len returns the number of distinct findings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Restore replaces the log contents from a checkpoint snapshot. Entries are
// re-indexed in sequence order; the sequence counter resumes past the highest
// restored value.
func (s *Store) Restore(entries []Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]Finding, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	s.entries = sorted
	s.byID = make(map[string]int, len(sorted))
	s.seq = 0
	for i, f := range sorted {
		s.byID[f.ID] = i
		if f.Sequence > s.seq {
			s.seq = f.Sequence
		}
	}
}
