package transaction

import "errors"

var (
	// ErrMissingKey means the verification meta tag or its content is absent.
	ErrMissingKey = errors.New("transaction: verification key not found")
	// ErrIndicesNotFound means the on-demand script yielded no key byte indices.
	ErrIndicesNotFound = errors.New("transaction: key byte indices not found")
	// ErrInvalidFrame means the selected animation frame is unusable.
	ErrInvalidFrame = errors.New("transaction: invalid animation frame")
	// ErrIndex means an index into key bytes or frames fell out of range.
	ErrIndex = errors.New("transaction: index out of range")
	// ErrInterpolation means the two vectors cannot be interpolated.
	ErrInterpolation = errors.New("transaction: cannot interpolate")
	// ErrNotInitialized means a prerequisite is missing and no document
	// was supplied to recover it.
	ErrNotInitialized = errors.New("transaction: session not initialized")
)
