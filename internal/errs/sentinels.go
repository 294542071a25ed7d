// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Failure taxonomy shared by the remote access layer, the offline-first
// wrapper and the sync engine. Callers classify with errors.Is.
var (
	// ErrUnauthorized indicates a rejected or expired credential. It always
	// propagates to the caller and never triggers a cache fallback.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates the server (or a local precondition) rejected
	// the input. The message is surfaced verbatim for display.
	ErrValidation = errors.New("validation failed")

	// ErrNetworkUnavailable indicates the request never reached the server.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrServerFault indicates a 5xx response: retryable, not an offline signal.
	ErrServerFault = errors.New("server fault")

	// ErrStorageFault indicates a local cache failure. There is no further
	// fallback beneath the cache, so it is fatal for the operation.
	ErrStorageFault = errors.New("local storage fault")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrRateLimited indicates too many failed login attempts; retry later.
	ErrRateLimited = errors.New("rate limited")
)
