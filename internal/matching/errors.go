package matching

import (
	"fmt"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

// ValidationWarning records a scoring value that had to be corrected.
// Warnings never fail an evaluation.
type ValidationWarning struct {
	Dimension string
	Reason    string
	Raw       any
}

func (w ValidationWarning) Error() string {
	return fmt.Sprintf("dimension %q: %s (got %v)", w.Dimension, w.Reason, w.Raw)
}

// ExternalServiceError is returned when the scoring provider call fails.
// The call is not retried.
type ExternalServiceError struct {
	Key dedup.Key
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("scoring %s: %v", e.Key.Posting, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
