package petsync

import "errors"

var (
	// ErrStreamClosed is returned by Stream operations after Close.
	ErrStreamClosed = errors.New("stream is torn down")

	// ErrUnknownMutation is returned by confirm or fail for a local ID
	// that was never issued, indicating a caller bug.
	ErrUnknownMutation = errors.New("unknown optimistic mutation")
)
