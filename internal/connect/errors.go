package connect

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	// ErrNoResolvedRoutes means the provider produced no candidates.
	ErrNoResolvedRoutes = errors.New("no resolved routes")

	// ErrAllAttemptsFailed means every ranked route was tried and the
	// classifier allowed moving on each time.
	ErrAllAttemptsFailed = errors.New("all connection attempts failed")
)

// TimeoutError reports that the overall deadline elapsed before any route
// succeeded. Outcome state is left untouched when this is returned.
type TimeoutError struct {
	AttemptDuration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("connection attempt timed out after %v", e.AttemptDuration)
}

// FatalConnectError carries the classifier's break payload. Remaining
// routes were skipped.
type FatalConnectError struct {
	Err error
}

func (e *FatalConnectError) Error() string {
	return fmt.Sprintf("fatal connect error: %v", e.Err)
}

func (e *FatalConnectError) Unwrap() error { return e.Err }
