package jam

import "errors"

// User-facing errors. The operation is rejected and state is unchanged;
// nothing here is fatal.
var (
	// ErrSubmissionsClosed rejects an enqueue while the submission gate is shut.
	ErrSubmissionsClosed = errors.New("submissions are closed")

	// ErrLimitExceeded rejects an enqueue when the requester already holds
	// the per-user number of pending entries.
	ErrLimitExceeded = errors.New("per-user submission limit reached")

	// ErrSessionEnded rejects any operation against an ended session.
	ErrSessionEnded = errors.New("session has ended")

	// ErrSessionNotFound means no session exists for the given ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrActiveSessionExists means the (guild, channel) pair already has an
	// active session.
	ErrActiveSessionExists = errors.New("channel already has an active session")
)
