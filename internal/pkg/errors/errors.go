package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing objects or keys.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input; never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflictLocked signals that an advisory lock could not be acquired in time.
	ErrConflictLocked = errors.New("conflict: locked")
	// ErrNoCandidates signals that a search produced no usable URLs.
	ErrNoCandidates = errors.New("no candidates")
	// ErrLiveStreamRejected signals that a candidate is an active or upcoming live stream.
	ErrLiveStreamRejected = errors.New("live stream rejected")
)
