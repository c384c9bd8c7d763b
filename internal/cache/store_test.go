package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var prsKey = Key{Kind: KindPullRequests, Owner: "octo", Repo: "app", Params: "limit=30&state=open"}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "pull-requests|octo|app||limit=30&state=open", prsKey.String())
	assert.Equal(t, "viewer||||", Key{Kind: KindViewer}.String())

	parsed, err := ParseKey(prsKey.String())
	require.NoError(t, err)
	assert.Equal(t, prsKey, parsed)

	_, err = ParseKey("pull-requests|octo")
	assert.Error(t, err)
}

func TestKindIsList(t *testing.T) {
	assert.True(t, KindPullRequests.IsList())
	assert.True(t, KindInvolvedPullRequests.IsList())
	assert.False(t, KindPullRequest.IsList())
	assert.False(t, KindViewer.IsList())
}

func TestStoreSetGet(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(fixedClock(now)))

	_, ok := s.Get(prsKey)
	assert.False(t, ok)

	s.Set(prsKey, []int{1, 2})
	e, ok := s.Get(prsKey)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, e.Value)
	assert.Equal(t, now, e.UpdatedAt)
	assert.False(t, e.Invalidated)
}

func TestSnapshotRestore(t *testing.T) {
	s := NewStore()

	t.Run("present entry is restored exactly", func(t *testing.T) {
		s.SetAt(prsKey, "before", time.Unix(100, 0))
		snap := s.Snapshot(prsKey)

		s.Set(prsKey, "after")
		s.Invalidate(prsKey)
		s.Restore(snap)

		e, ok := s.Get(prsKey)
		require.True(t, ok)
		assert.Equal(t, snap.Entry, e)
	})

	t.Run("absent entry is removed again", func(t *testing.T) {
		key := Key{Kind: KindComments, Owner: "octo", Repo: "app", ID: "7"}
		snap := s.Snapshot(key)
		require.False(t, snap.Present)

		s.Set(key, "optimistic")
		s.Restore(snap)

		_, ok := s.Get(key)
		assert.False(t, ok)
	})
}

func TestInvalidate(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Invalidate(prsKey), "missing key has no observers")

	s.Set(prsKey, "v")
	unsubscribe := s.Subscribe(prsKey, func(Key, Entry, bool) {})
	assert.True(t, s.Invalidate(prsKey))

	e, _ := s.Get(prsKey)
	assert.True(t, e.Invalidated)
	assert.Equal(t, "v", e.Value)

	unsubscribe()
	assert.False(t, s.Observed(prsKey))
}

func TestGenerations(t *testing.T) {
	s := NewStore()
	gen := s.Generation(prsKey)

	assert.True(t, s.SetIfGeneration(prsKey, "first", gen))

	s.Cancel(prsKey)
	assert.False(t, s.SetIfGeneration(prsKey, "stale", gen))

	e, _ := s.Get(prsKey)
	assert.Equal(t, "first", e.Value)
	assert.Equal(t, gen+1, s.Generation(prsKey))
}

func TestSubscribe(t *testing.T) {
	s := NewStore()
	var got []any
	unsubscribe := s.Subscribe(prsKey, func(_ Key, e Entry, present bool) {
		if present {
			got = append(got, e.Value)
		} else {
			got = append(got, nil)
		}
	})

	s.Set(prsKey, 1)
	s.Set(Key{Kind: KindViewer}, "other key")
	s.Remove(prsKey)
	unsubscribe()
	s.Set(prsKey, 2)

	assert.Equal(t, []any{1, nil}, got)
}

func TestKeysSorted(t *testing.T) {
	s := NewStore()
	b := Key{Kind: KindReviews, Owner: "b", Repo: "r", ID: "1"}
	a := Key{Kind: KindComments, Owner: "a", Repo: "r", ID: "1"}
	s.Set(b, 1)
	s.Set(a, 1)

	assert.Equal(t, []Key{a, b}, s.Keys())
}

func TestLockAllSerializesOverlappingSets(t *testing.T) {
	l := NewKeyLocker()
	k1 := Key{Kind: KindComments, ID: "1"}
	k2 := Key{Kind: KindReviews, ID: "1"}

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []Key{k1, k2}
			if i%2 == 1 {
				keys = []Key{k2, k1, k2}
			}
			unlock := l.LockAll(keys)
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
}
