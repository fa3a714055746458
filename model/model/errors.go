package model

import "errors"

// Sync error taxonomy. Throttling and fetch failures are retryable
// inside the orchestrator, cursor conflicts abort the later writer.
var (
	ErrThrottled      = errors.New("provider rate limit hit")
	ErrCursorConflict = errors.New("cursor advanced by a concurrent sync")
)
