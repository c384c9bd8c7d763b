package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry is a cached value with the time it was written.
type Entry struct {
	Value       any
	UpdatedAt   time.Time
	Invalidated bool
}

// Snapshot captures one key exactly, including absence.
type Snapshot struct {
	Key     Key
	Entry   Entry
	Present bool
}

// Observer is called after every write, restore or invalidation of a key.
type Observer func(key Key, entry Entry, present bool)

type observer struct {
	id int
	fn Observer
}

// Store is a mutex guarded map of entries. Every key also carries a
// generation counter; a fetch whose generation moved while it ran must not
// write its result.
type Store struct {
	mu          sync.Mutex
	entries     map[string]Entry
	generations map[string]uint64
	observers   map[string][]observer
	nextID      int
	now         func() time.Time
}

type StoreOption func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:     make(map[string]Entry),
		generations: make(map[string]uint64),
		observers:   make(map[string][]observer),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.String()]
	return e, ok
}

// Set writes value stamped with the current time.
func (s *Store) Set(key Key, value any) {
	s.SetAt(key, value, s.now())
}

// SetAt writes value with an explicit timestamp, so a merge can keep the
// freshness of the entry it extends.
func (s *Store) SetAt(key Key, value any, updatedAt time.Time) {
	s.SetEntry(key, Entry{Value: value, UpdatedAt: updatedAt})
}

// SetEntry writes e as is, flags included.
func (s *Store) SetEntry(key Key, e Entry) {
	s.mu.Lock()
	s.entries[key.String()] = e
	obs := s.observersLocked(key)
	s.mu.Unlock()
	notify(obs, key, e, true)
}

// SetIfGeneration writes value only while the key is still at generation gen.
func (s *Store) SetIfGeneration(key Key, value any, gen uint64) bool {
	e := Entry{Value: value, UpdatedAt: s.now()}
	s.mu.Lock()
	k := key.String()
	if s.generations[k] != gen {
		s.mu.Unlock()
		return false
	}
	s.entries[k] = e
	obs := s.observersLocked(key)
	s.mu.Unlock()
	notify(obs, key, e, true)
	return true
}

func (s *Store) Snapshot(key Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.String()]
	return Snapshot{Key: key, Entry: e, Present: ok}
}

// Restore puts a key back into exactly the state the snapshot recorded.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	k := snap.Key.String()
	if snap.Present {
		s.entries[k] = snap.Entry
	} else {
		delete(s.entries, k)
	}
	obs := s.observersLocked(snap.Key)
	s.mu.Unlock()
	notify(obs, snap.Key, snap.Entry, snap.Present)
}

// Invalidate marks an entry as needing a refetch. It reports whether the key
// has observers.
func (s *Store) Invalidate(key Key) bool {
	s.mu.Lock()
	k := key.String()
	e, ok := s.entries[k]
	if ok {
		e.Invalidated = true
		s.entries[k] = e
	}
	obs := s.observersLocked(key)
	s.mu.Unlock()
	if ok {
		notify(obs, key, e, true)
	}
	return len(obs) > 0
}

func (s *Store) Remove(key Key) {
	s.mu.Lock()
	delete(s.entries, key.String())
	obs := s.observersLocked(key)
	s.mu.Unlock()
	notify(obs, key, Entry{}, false)
}

func (s *Store) Generation(key Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key.String()]
}

// Cancel bumps the generation so results of fetches already running for key
// are discarded.
func (s *Store) Cancel(key Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	s.generations[k]++
	return s.generations[k]
}

// Keys returns the keys with an entry, sorted by their string form.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	names := make([]string, 0, len(s.entries))
	for k := range s.entries {
		names = append(names, k)
	}
	s.mu.Unlock()

	sort.Strings(names)
	keys := make([]Key, 0, len(names))
	for _, n := range names {
		if key, err := ParseKey(n); err == nil {
			keys = append(keys, key)
		}
	}
	return keys
}

// Subscribe registers fn for key and returns a function that removes it.
func (s *Store) Subscribe(key Key, fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	k := key.String()
	s.observers[k] = append(s.observers[k], observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.observers[k]
		for i, o := range list {
			if o.id == id {
				s.observers[k] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(s.observers[k]) == 0 {
			delete(s.observers, k)
		}
	}
}

func (s *Store) Observed(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers[key.String()]) > 0
}

func (s *Store) observersLocked(key Key) []observer {
	list := s.observers[key.String()]
	if len(list) == 0 {
		return nil
	}
	out := make([]observer, len(list))
	copy(out, list)
	return out
}

func notify(obs []observer, key Key, e Entry, present bool) {
	for _, o := range obs {
		o.fn(key, e, present)
	}
}
