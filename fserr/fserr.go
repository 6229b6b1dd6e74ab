// Package fserr defines the sentinel errors shared across the engine.
package fserr

import "errors"

var (
	// ErrInvalidInput covers a null handle or an out-of-range offset
	// passed to Modify/Shrink.
	ErrInvalidInput = errors.New("invalid input")
	// ErrOutOfBlocks covers insufficient pool capacity for a requested
	// operation.
	ErrOutOfBlocks = errors.New("insufficient data blocks available")
	// ErrNotPresent is returned internally by locate when asked to
	// resolve an offset that has no backing block and creation was not
	// requested. It should never escape a well-behaved caller.
	ErrNotPresent = errors.New("offset has no backing block")
)
