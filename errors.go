package satchel

import "errors"

var (
	// ErrClosed reports an operation on an engine after Close.
	ErrClosed = errors.New("satchel: engine is closed")

	// ErrReentrant reports a mutation attempted from a goroutine that
	// already holds the engine's write section. Failing fast beats
	// deadlocking silently.
	ErrReentrant = errors.New("satchel: re-entrant mutation while holding the write section")

	// ErrEmptyKey reports an empty key passed to a mutation.
	ErrEmptyKey = errors.New("satchel: key must not be empty")
)
