package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, p domain.Provider, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	clock := newTestClock()
	base := []Option{
		WithStore(cache.NewStore(cache.WithClock(clock.Now))),
		WithRetryDelay(func(int, error) time.Duration { return 0 }),
	}
	e := New(p, append(base, opts...)...)
	t.Cleanup(e.Close)
	return e, clock
}

func TestListKey(t *testing.T) {
	key := ListKey("octo", "app", domain.ListOptions{Limit: 30})
	assert.Equal(t, cache.KindPullRequests, key.Kind)
	assert.Equal(t, "limit=30&state=open", key.Params)

	key = ListKey("octo", "app", domain.ListOptions{State: domain.StateFilterClosed, Role: domain.RoleAuthor})
	assert.Equal(t, cache.KindMyPullRequests, key.Kind)
	assert.Equal(t, "limit=0&state=closed", key.Params)

	assert.Equal(t, cache.KindReviewRequests, ListKey("o", "r", domain.ListOptions{Role: domain.RoleReviewer}).Kind)
	assert.Equal(t, cache.KindInvolvedPullRequests, ListKey("o", "r", domain.ListOptions{Role: domain.RoleInvolved}).Kind)
	assert.Equal(t, "7", ItemKey(cache.KindDiff, "o", "r", 7).ID)
}

func TestFetchServesFreshEntries(t *testing.T) {
	p := newFakeProvider()
	e, clock := newTestEngine(t, p)
	ctx := context.Background()

	_, err := e.Checks(ctx, "o", "r", 1)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	_, err = e.Checks(ctx, "o", "r", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("checks"))

	clock.Advance(6 * time.Second)
	_, err = e.Checks(ctx, "o", "r", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.count("checks"), "entry older than its stale time is refetched")
}

func TestFetchStaleTimeOverride(t *testing.T) {
	p := newFakeProvider()
	e, clock := newTestEngine(t, p, WithStaleTimes(map[cache.Kind]time.Duration{cache.KindChecks: time.Minute}))
	ctx := context.Background()

	_, err := e.Checks(ctx, "o", "r", 1)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = e.Checks(ctx, "o", "r", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("checks"))
}

func TestFetchAfterInvalidate(t *testing.T) {
	p := newFakeProvider()
	e, _ := newTestEngine(t, p)
	ctx := context.Background()

	_, err := e.Files(ctx, "o", "r", 3)
	require.NoError(t, err)
	e.Invalidate(ItemKey(cache.KindFiles, "o", "r", 3))
	_, err = e.Files(ctx, "o", "r", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, p.count("files"))
}

func TestFetchDedupesConcurrentReaders(t *testing.T) {
	e, _ := newTestEngine(t, newFakeProvider())
	key := ItemKey(cache.KindDiff, "o", "r", 1)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := func(context.Context) (string, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return "diff --git a/x b/x", nil
	}

	const readers = 5
	results := make([]string, readers)
	errs := make([]error, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Fetch(context.Background(), e, key, fetcher)
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "diff --git a/x b/x", results[i])
	}
}

func TestFetchRetries(t *testing.T) {
	serverErr := &domain.ProviderError{Provider: "github", StatusCode: 503, Message: "unavailable"}
	tests := []struct {
		name       string
		errs       []error
		wantCalls  int
		wantErr    bool
		wantDelays []int
	}{
		{
			name:       "server errors retried three times",
			errs:       []error{serverErr, serverErr, serverErr, serverErr},
			wantCalls:  4,
			wantErr:    true,
			wantDelays: []int{0, 1, 2},
		},
		{
			name:      "not found is final",
			errs:      []error{&domain.ProviderError{Provider: "github", StatusCode: 404, Message: "Not Found"}},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "schema error is final",
			errs:      []error{&domain.SchemaValidationError{Provider: "github", Endpoint: "pulls", Err: errors.New("missing id")}},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:       "network error recovers",
			errs:       []error{&domain.NetworkError{Provider: "gitlab", Op: "GET", Err: errors.New("reset")}},
			wantCalls:  2,
			wantDelays: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var delays []int
			e, _ := newTestEngine(t, newFakeProvider(), WithRetryDelay(func(attempt int, _ error) time.Duration {
				mu.Lock()
				delays = append(delays, attempt)
				mu.Unlock()
				return 0
			}))

			calls := 0
			got, err := Fetch(context.Background(), e, ItemKey(cache.KindDiff, "o", "r", 1), func(context.Context) (string, error) {
				n := calls
				calls++
				if n < len(tt.errs) {
					return "", tt.errs[n]
				}
				return "ok", nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			mu.Lock()
			assert.Equal(t, tt.wantDelays, delays)
			mu.Unlock()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.errs[len(tt.errs)-1])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", got)
		})
	}
}

func TestFetchCancelledResultIsDiscarded(t *testing.T) {
	e, _ := newTestEngine(t, newFakeProvider())
	key := ItemKey(cache.KindComments, "o", "r", 1)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Fetch(context.Background(), e, key, func(context.Context) ([]domain.Comment, error) {
			close(started)
			<-release
			return []domain.Comment{{ID: "stale"}}, nil
		})
		done <- err
	}()

	<-started
	e.Cancel(key)
	close(release)

	assert.ErrorIs(t, <-done, ErrCancelled)
	_, ok := e.Store().Get(key)
	assert.False(t, ok)

	got, err := Fetch(context.Background(), e, key, func(context.Context) ([]domain.Comment, error) {
		return []domain.Comment{{ID: "fresh"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got[0].ID)
}

func TestObservedKeyRefetchedAfterInvalidate(t *testing.T) {
	p := newFakeProvider()
	p.setComments([]domain.Comment{{ID: "c1"}})
	e, _ := newTestEngine(t, p)
	ctx := context.Background()
	key := ItemKey(cache.KindComments, "o", "r", 1)

	_, err := e.Comments(ctx, "o", "r", 1)
	require.NoError(t, err)

	updates := make(chan []domain.Comment, 4)
	unsubscribe := e.Subscribe(key, func(_ cache.Key, entry cache.Entry, present bool) {
		if !present || entry.Invalidated {
			return
		}
		if v, ok := entry.Value.([]domain.Comment); ok {
			updates <- v
		}
	})
	defer unsubscribe()

	p.setComments([]domain.Comment{{ID: "c1"}, {ID: "c2"}})
	e.Invalidate(key)

	select {
	case got := <-updates:
		assert.Len(t, got, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("observed key was not refetched")
	}
	assert.Equal(t, 2, p.count("comments"))
}

func TestMutateRollsBackOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, clock := newTestEngine(t, newFakeProvider(), WithMetrics(NewMetrics(reg)))
	key := ItemKey(cache.KindComments, "o", "r", 7)
	absent := ItemKey(cache.KindIssueComments, "o", "r", 7)

	e.Store().Set(key, []domain.Comment{{ID: "c1", Body: "first"}})
	before, _ := e.Store().Get(key)
	clock.Advance(time.Second)

	err := e.Mutate(context.Background(), Mutation{
		Name: "comment",
		Updates: []Update{
			UpdateOf(key, appendIfPresent(domain.Comment{ID: "pending-1", Body: "second"})),
			UpdateOf(absent, func(_ []domain.IssueComment, _ bool) ([]domain.IssueComment, bool) {
				return []domain.IssueComment{{ID: "pending-2"}}, true
			}),
		},
		Remote: func(context.Context) error {
			during, _ := e.Store().Get(key)
			assert.Len(t, during.Value, 2, "optimistic value is visible while the write runs")
			_, ok := e.Store().Get(absent)
			assert.True(t, ok)
			return &domain.ProviderError{Provider: "github", StatusCode: 500, Message: "boom"}
		},
	})
	require.Error(t, err)

	after, ok := e.Store().Get(key)
	require.True(t, ok)
	assert.Equal(t, before.Value, after.Value)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	_, ok = e.Store().Get(absent)
	assert.False(t, ok, "key absent before the mutation is absent again")

	assert.Equal(t, 1.0, counterValue(t, reg, "prdeck_query_mutations_total", map[string]string{"mutation": "comment", "outcome": "rolled_back"}))
}

func TestMutateKeepsOptimisticValueOnSuccess(t *testing.T) {
	e, _ := newTestEngine(t, newFakeProvider())
	key := ItemKey(cache.KindReviews, "o", "r", 2)
	e.Store().Set(key, []domain.Review{})

	err := e.Mutate(context.Background(), Mutation{
		Name:    "review",
		Updates: []Update{UpdateOf(key, appendIfPresent(domain.Review{ID: "pending-1", State: domain.ReviewStateApproved}))},
		Remote:  func(context.Context) error { return nil },
	})
	require.NoError(t, err)

	entry, ok := e.Store().Get(key)
	require.True(t, ok)
	assert.Len(t, entry.Value, 1)
	assert.True(t, entry.Invalidated)
}

func TestMutationsOnSameKeyRunOneAtATime(t *testing.T) {
	e, _ := newTestEngine(t, newFakeProvider())
	key := ItemKey(cache.KindComments, "o", "r", 1)

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Mutate(context.Background(), Mutation{
				Name:       "comment",
				Invalidate: []cache.Key{key},
				Remote: func(context.Context) error {
					mu.Lock()
					inside++
					if inside > maxInside {
						maxInside = inside
					}
					mu.Unlock()
					time.Sleep(2 * time.Millisecond)
					mu.Lock()
					inside--
					mu.Unlock()
					return nil
				},
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(ErrCancelled))
	assert.True(t, IsRetryable(&domain.ProviderError{StatusCode: 503}))
	assert.True(t, IsRetryable(&domain.NetworkError{Err: errors.New("reset")}))
	assert.False(t, IsRetryable(&domain.ProviderError{StatusCode: 404}))
	assert.False(t, IsRetryable(&domain.SchemaValidationError{Err: errors.New("bad")}))
}

func TestLookupMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, _ := newTestEngine(t, newFakeProvider(), WithMetrics(NewMetrics(reg)))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.Commits(ctx, "o", "r", 1)
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, counterValue(t, reg, "prdeck_query_cache_lookups_total", map[string]string{"kind": "commits", "result": "miss"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "prdeck_query_cache_lookups_total", map[string]string{"kind": "commits", "result": "hit"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "prdeck_query_fetches_total", map[string]string{"kind": "commits", "outcome": "success"}))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
