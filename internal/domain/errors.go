package domain

import "errors"

var (
	// ErrNotFound is returned when a short key is absent (or inactive where only active records qualify)
	ErrNotFound = errors.New("short key not found")

	// ErrDuplicateKey is returned by a store when an insert violates short key or secret key uniqueness
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStoreUnavailable wraps timeouts and connection failures talking to the record store
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrInvalidURL is returned when a target URL fails validation
	ErrInvalidURL = errors.New("invalid URL")

	// ErrKeySpaceExhausted is returned when no unique key could be allocated within the attempt cap
	ErrKeySpaceExhausted = errors.New("key space exhausted")
)
