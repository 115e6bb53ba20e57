package aggregate

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Store publishes one owner's snapshots. Readers call Current and never see
// a half-applied mutation; writers go through Update so that results are
// applied one at a time in arrival order.
type Store struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	hooks   []func(*Snapshot)
	// wb orders write-backs to the record store
	wb sync.Mutex
}

func NewStore(initial *Snapshot, hooks ...func(*Snapshot)) *Store {
	initial.normalize()
	s := &Store{hooks: hooks}
	s.current.Store(initial)
	return s
}

func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace swaps in next wholesale.
func (s *Store) Replace(next *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(next)
}

// Update runs fn against the current snapshot and publishes its result. If
// fn fails the current snapshot stays in place.
func (s *Store) Update(fn func(prev *Snapshot) (*Snapshot, error)) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next, err := fn(prev)
	if err != nil {
		return prev, err
	}
	if next == prev {
		return prev, nil
	}
	if next.OwnerID != prev.OwnerID {
		return prev, fmt.Errorf("snapshot owner mismatch: %q != %q", next.OwnerID, prev.OwnerID)
	}
	next.Version = prev.Version + 1
	s.replaceLocked(next)
	return next, nil
}

func (s *Store) replaceLocked(next *Snapshot) {
	next.normalize()
	s.current.Store(next)
	for _, h := range s.hooks {
		h(next)
	}
}

// WriteBack runs fn against the latest published snapshot, one call at a
// time. A write-back that starts after another finished therefore never
// sees older state than the one already written.
func (s *Store) WriteBack(fn func(latest *Snapshot) error) error {
	s.wb.Lock()
	defer s.wb.Unlock()
	return fn(s.current.Load())
}
