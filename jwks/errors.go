package jwks

import "errors"

var (
	// ErrInvalidKeySet is returned when a document is not a JWKS or has no usable keys.
	ErrInvalidKeySet = errors.New("invalid JSON web key set")
	// ErrFetch wraps transport, status, and URL policy failures while fetching a key set.
	ErrFetch = errors.New("jwks fetch failed")
)
