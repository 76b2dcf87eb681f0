package tracker

import "errors"

var (
	// ErrNotFound reports an id that is not on the visible list.
	ErrNotFound = errors.New("record not found")
	// ErrNotReady reports a detail request for a record that is not DONE.
	ErrNotReady = errors.New("analysis not ready")
	// ErrUnconfirmed reports a delete of a placeholder whose server id is still unknown.
	ErrUnconfirmed = errors.New("submission not yet confirmed by the backend")
	// ErrBoardClosed reports a mutation sent after the board shut down.
	ErrBoardClosed = errors.New("board closed")
	// ErrInvalidSubmission reports a submit request that failed validation.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrPollInFlight reports a poll skipped because the previous fetch is still running.
	ErrPollInFlight = errors.New("poll already in flight")
)
