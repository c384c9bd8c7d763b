package query

import (
	"errors"

	"github.com/johanforsgren/prdeck/internal/backoff"
)

// ErrCancelled is returned to readers whose fetch was superseded by a
// mutation or an explicit cancel before its result could be stored.
var ErrCancelled = errors.New("query cancelled")

// IsRetryable tells a consumer whether offering a manual retry makes sense.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) {
		return true
	}
	return backoff.ShouldRetry(0, err)
}
