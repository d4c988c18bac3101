package service

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	// ErrIssueRetriesExhausted means secret generation collided with existing
	// rows too many times in a row. With 128-bit secrets that points at a
	// broken entropy source, not bad luck.
	ErrIssueRetriesExhausted = errors.New("key generation retries exhausted")
)
