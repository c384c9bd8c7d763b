package query

import (
	"context"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/johanforsgren/prdeck/internal/backoff"
	"github.com/johanforsgren/prdeck/internal/cache"
)

// Fetch returns the cached value of key while it is fresh. Otherwise it runs
// fetcher, sharing one call among concurrent readers, retrying per the
// backoff policy, and stores the result unless a mutation cancelled the key
// in the meantime.
func Fetch[T any](ctx context.Context, e *Engine, key cache.Key, fetcher func(context.Context) (T, error)) (T, error) {
	var zero T

	e.register(key, func(ctx context.Context) error {
		_, err := Fetch(ctx, e, key, fetcher)
		return err
	})

	if entry, ok := e.store.Get(key); ok && e.fresh(key, entry) {
		if v, ok := entry.Value.(T); ok {
			e.metrics.lookup(key.Kind, true)
			return v, nil
		}
	}
	e.metrics.lookup(key.Kind, false)

	gen := e.store.Generation(key)
	v, err, _ := e.flight.Do(key.String(), func() (any, error) {
		start := time.Now()
		value, err := e.retrying(ctx, key, func(ctx context.Context) (any, error) {
			return fetcher(ctx)
		})
		if err == nil && !e.store.SetIfGeneration(key, value, gen) {
			err = ErrCancelled
		}
		e.metrics.fetched(key.Kind, time.Since(start), err)
		if err != nil {
			e.log.DebugContext(ctx, "fetch failed", "key", key.String(), "error", err)
			return nil, err
		}
		e.populate(key, value)
		return value, nil
	})
	if err != nil {
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T", key, v)
	}
	return out, nil
}

func (e *Engine) retrying(ctx context.Context, key cache.Key, fn func(context.Context) (any, error)) (any, error) {
	var result any
	var lastErr error
	failures := 0

	err := retry.Do(
		func() error {
			v, err := fn(ctx)
			if err != nil {
				failures++
				lastErr = err
				return err
			}
			result = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(backoff.MaxRetries+1)),
		retry.RetryIf(func(err error) bool {
			return backoff.ShouldRetry(failures-1, err)
		}),
		retry.DelayType(func(_ uint, err error, _ *retry.Config) time.Duration {
			d := e.delay(failures-1, err)
			e.metrics.retried(key.Kind)
			e.log.DebugContext(ctx, "retrying fetch", "key", key.String(), "failures", failures, "delay", d, "error", err)
			return d
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return result, nil
}
