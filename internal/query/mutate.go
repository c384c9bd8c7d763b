package query

import (
	"context"

	"github.com/johanforsgren/prdeck/internal/cache"
)

// Update rewrites one cached entry optimistically. Apply receives the current
// value and returns the next one, or false to leave the entry alone.
type Update struct {
	Key   cache.Key
	Apply func(current any, present bool) (next any, ok bool)
}

// UpdateOf adapts a typed function to Update. An entry of another type is
// treated as absent.
func UpdateOf[T any](key cache.Key, fn func(current T, present bool) (T, bool)) Update {
	return Update{
		Key: key,
		Apply: func(current any, present bool) (any, bool) {
			v, ok := current.(T)
			return fn(v, present && ok)
		},
	}
}

type Mutation struct {
	Name    string
	Updates []Update
	Remote  func(ctx context.Context) error
	// Invalidate lists keys that are refreshed afterwards without an
	// optimistic update.
	Invalidate []cache.Key
}

func (m Mutation) keys() []cache.Key {
	keys := make([]cache.Key, 0, len(m.Updates)+len(m.Invalidate))
	for _, u := range m.Updates {
		keys = append(keys, u.Key)
	}
	return append(keys, m.Invalidate...)
}

// Mutate applies m. Running fetches of the affected keys are cancelled, the
// updates are written, and the remote effect runs. If it fails every key is
// restored to its snapshot. Either way the keys are invalidated afterwards.
// Mutations sharing a key run one at a time.
func (e *Engine) Mutate(ctx context.Context, m Mutation) error {
	keys := m.keys()
	unlock := e.locks.LockAll(keys)
	defer unlock()

	snapshots := make([]cache.Snapshot, 0, len(keys))
	for _, k := range keys {
		e.Cancel(k)
		snapshots = append(snapshots, e.store.Snapshot(k))
	}

	for _, u := range m.Updates {
		current, present := e.store.Get(u.Key)
		if next, ok := u.Apply(current.Value, present); ok {
			e.store.Set(u.Key, next)
		}
	}

	err := m.Remote(ctx)
	e.metrics.mutated(m.Name, err)
	if err != nil {
		e.log.WarnContext(ctx, "mutation failed, rolling back", "mutation", m.Name, "keys", len(snapshots), "error", err)
		for _, snap := range snapshots {
			e.Cancel(snap.Key)
			e.store.Restore(snap)
		}
	} else {
		e.log.DebugContext(ctx, "mutation committed", "mutation", m.Name)
	}

	for _, k := range keys {
		e.Invalidate(k)
	}
	return err
}
