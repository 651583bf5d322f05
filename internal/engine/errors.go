package engine

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned for operations attempted before Open completed
// startup recovery, or after Close. Transient from the caller's side.
var ErrNotReady = errors.New("engine is not ready")

// ErrEmptyIndex is returned for queries while no vectors are indexed.
// This is an expected state (fresh data dir, after a drain or reset),
// not a defect; callers should treat it differently from validation
// failures.
var ErrEmptyIndex = errors.New("index is empty")

// ValidationError reports malformed caller input: an empty embedding, a
// missing doc id, an out-of-range top_k. The request is rejected with no
// state change.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ConsistencyError reports a vector whose dimension contradicts the
// engine's committed dimension. It signals upstream misconfiguration
// (an embedding provider change, not a malformed request) and clears
// only through a reset or a correctly dimensioned retry.
type ConsistencyError struct {
	Expected int
	Got      int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
