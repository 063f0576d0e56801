package pipeline

import (
	"errors"
	"fmt"
)

// ProcessingError marks a transient infrastructure failure (storage fetch,
// persistence write). The queue layer retries these with backoff; everything
// else, text extraction included, is treated as permanent.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func transient(op string, err error) error {
	return &ProcessingError{Op: op, Err: err}
}

// IsTransient reports whether err is eligible for retry by the orchestration
// layer.
func IsTransient(err error) bool {
	var pe *ProcessingError
	return errors.As(err, &pe)
}
