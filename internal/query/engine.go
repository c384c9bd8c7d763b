// Package query is the read/write engine over a single provider: cached
// reads with staleness, dedupe and retry, and optimistic mutations that roll
// back when the remote write fails.
package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/johanforsgren/prdeck/internal/backoff"
	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
	"golang.org/x/sync/singleflight"
)

type Engine struct {
	provider domain.Provider
	store    *cache.Store
	locks    *cache.KeyLocker
	flight   singleflight.Group
	log      *slog.Logger
	metrics  *Metrics
	stale    map[cache.Kind]time.Duration
	delay    func(attempt int, err error) time.Duration

	mu         sync.Mutex
	refetchers map[string]func(ctx context.Context) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithStaleTimes overrides the stale time of the given kinds.
func WithStaleTimes(overrides map[cache.Kind]time.Duration) Option {
	return func(e *Engine) {
		for k, d := range overrides {
			e.stale[k] = d
		}
	}
}

// WithRetryDelay replaces backoff.Delay.
func WithRetryDelay(fn func(attempt int, err error) time.Duration) Option {
	return func(e *Engine) {
		e.delay = fn
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithStore(s *cache.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

func New(p domain.Provider, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		provider:   p,
		store:      cache.NewStore(),
		locks:      cache.NewKeyLocker(),
		log:        slog.Default(),
		stale:      make(map[cache.Kind]time.Duration, len(DefaultStaleTimes)),
		delay:      backoff.Delay,
		refetchers: make(map[string]func(ctx context.Context) error),
		ctx:        ctx,
		cancel:     cancel,
	}
	for k, d := range DefaultStaleTimes {
		e.stale[k] = d
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

func (e *Engine) Provider() domain.Provider {
	return e.provider
}

func (e *Engine) Store() *cache.Store {
	return e.store
}

// Close stops background refetches and waits for them to return.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// Subscribe calls fn on every change of key. Keys with subscribers are
// refetched in the background when invalidated.
func (e *Engine) Subscribe(key cache.Key, fn cache.Observer) func() {
	return e.store.Subscribe(key, fn)
}

// Cancel discards the result of any fetch of key that is still running.
func (e *Engine) Cancel(key cache.Key) {
	e.store.Cancel(key)
	e.flight.Forget(key.String())
}

// Invalidate marks key stale; an observed key is refetched in the background.
func (e *Engine) Invalidate(key cache.Key) {
	if e.store.Invalidate(key) {
		e.refetch(key)
	}
}

// InvalidateRepo invalidates every cached key of one repository.
func (e *Engine) InvalidateRepo(owner, repo string) {
	for _, k := range e.store.Keys() {
		if k.Owner == owner && k.Repo == repo {
			e.Invalidate(k)
		}
	}
}

func (e *Engine) register(key cache.Key, fn func(ctx context.Context) error) {
	e.mu.Lock()
	e.refetchers[key.String()] = fn
	e.mu.Unlock()
}

func (e *Engine) refetch(key cache.Key) {
	e.mu.Lock()
	fn, ok := e.refetchers[key.String()]
	e.mu.Unlock()
	if !ok || e.ctx.Err() != nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := fn(e.ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrCancelled) {
			e.log.Warn("background refetch failed", "key", key.String(), "error", err)
		}
	}()
}
