package source

import (
	"errors"
	"fmt"
	"time"
)

// ErrRejected means the upstream refused the request itself (bad key,
// malformed query). Retrying the same request cannot help.
var ErrRejected = errors.New("source rejected request")

// UnavailableError wraps transient upstream failures worth retrying.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("source unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RateLimitedError carries the upstream's retry hint, when it gave one.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("source rate limited, retry after %s", e.RetryAfter)
}
