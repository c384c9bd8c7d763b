package domain

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// HashIdentity projects a string or UUID identity onto a non-negative int64.
// The result is stable but not collision free and must not be used for
// authorization decisions.
func HashIdentity(s string) int64 {
	if s == "" {
		return 0
	}
	return int64(xxhash.Sum64String(s) & math.MaxInt64)
}
