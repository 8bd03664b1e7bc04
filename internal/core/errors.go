package core

import "errors"

var (
	// ErrInvalidOrder indicates locally detected bad input, rejected before any network call.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrNotFound indicates the resource does not exist on the exchange.
	// Spot-only accounts answer position queries this way; callers treat it as an empty result.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates the exchange rejected the request credentials.
	ErrUnauthorized = errors.New("unauthorized")
)
