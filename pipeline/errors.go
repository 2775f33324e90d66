package pipeline

import "errors"

// Sentinel errors mirroring the scheduler-step error codes of
// spec.md §6. OK is not represented: a nil error is OK.
var (
	// ErrRetry corresponds to NOK: a transient condition the caller
	// (or the stage loop itself) should retry after a signal.
	ErrRetry = errors.New("mpp: retry later (NOK)")

	// ErrStream corresponds to ERR_STREAM: an info-change event, not a
	// fatal condition (spec.md §7 kind 2).
	ErrStream = errors.New("mpp: stream info changed")

	// ErrDisplayFull corresponds to ERR_DISPLAY_FULL (spec.md §4.3
	// step 8).
	ErrDisplayFull = errors.New("mpp: display queue full")

	// ErrBufferFull corresponds to ERR_BUFFER_FULL (spec.md §4.3
	// step 9).
	ErrBufferFull = errors.New("mpp: buffer pool exhausted")

	// ErrNullPtr corresponds to ERR_NULL_PTR.
	ErrNullPtr = errors.New("mpp: null argument")

	// ErrMalloc corresponds to ERR_MALLOC.
	ErrMalloc = errors.New("mpp: allocation failure")

	// ErrProtocolViolation marks a fatal condition (spec.md §7 kind 4):
	// reset could not drain, or a put/get task-count mismatch (P6).
	// Callers should treat this as unrecoverable for the decoder
	// instance.
	ErrProtocolViolation = errors.New("mpp: protocol violation")

	// ErrClosed is returned by operations attempted after Deinit.
	ErrClosed = errors.New("mpp: decoder is closed")
)
