package dispatch

import "errors"

var (
	// ErrInvalidRequest is returned by Submit for requests that cannot be
	// dispatched: no consumer, no sink, no key or no fetcher.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStopped is returned by Submit after shutdown began, and delivered to
	// requests still pending when the dispatcher stops.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("dispatcher already started")
)
