package review

import "errors"

// Sentinel errors shared across the ingestion pipeline. Callers match
// with errors.Is; wrapping adds the human-readable cause.
var (
	// ErrTransportExhausted means every proxy route failed for one page.
	ErrTransportExhausted = errors.New("transport exhausted")

	// ErrParseDocument means a fetched document could not be parsed at
	// all; that page contributes nothing.
	ErrParseDocument = errors.New("document parse failed")

	// ErrValidation rejects a malformed import payload or a bad slug.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers unknown slugs, both upstream and in the store.
	ErrNotFound = errors.New("not found")

	// ErrRunInFlight rejects a second concurrent refresh for a slug.
	ErrRunInFlight = errors.New("refresh already in flight for slug")
)
