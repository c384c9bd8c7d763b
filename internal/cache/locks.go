package cache

import (
	"sort"
	"sync"
)

// KeyLocker hands out one mutex per key. LockAll acquires in sorted order so
// two callers locking overlapping key sets cannot deadlock.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *KeyLocker) lockFor(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

// LockAll locks every distinct key and returns the matching unlock function.
func (l *KeyLocker) LockAll(keys []Key) (unlock func()) {
	names := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		n := k.String()
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)

	held := make([]*sync.Mutex, 0, len(names))
	for _, n := range names {
		m := l.lockFor(n)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
