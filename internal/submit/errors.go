package submit

import "errors"

var (
	ErrTimeout          = errors.New("submission timed out")
	ErrRetriesExhausted = errors.New("submission failed after retries")
	ErrEmptyKey         = errors.New("idempotency key is required")
)
