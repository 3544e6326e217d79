package core

import "errors"

var (
	// ErrInvalidWatch is returned when a watch cannot be built from the given values
	ErrInvalidWatch = errors.New("invalid watch")

	// ErrDuplicateWatch is returned when the owner already watches the asset
	ErrDuplicateWatch = errors.New("watch already exists")

	// ErrWatchLimit is returned when the owner reached the maximum number of watches
	ErrWatchLimit = errors.New("watch limit reached")

	// ErrUpstreamUnavailable marks routine price source failures: timeouts,
	// non-success statuses and rate limiting
	ErrUpstreamUnavailable = errors.New("price source unavailable")

	// ErrNotifier marks a failed alert delivery
	ErrNotifier = errors.New("notification failed")
)
