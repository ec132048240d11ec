package stripesync

import "errors"

var (
	// ErrInvalidConfig is returned when the engine configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAuthFailed is returned when the Stripe authentication probe fails
	ErrAuthFailed = errors.New("stripe authentication failed")

	// ErrStoreUnavailable is returned when the persistent store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSinkUnavailable is returned when the tracking sink cannot be reached
	ErrSinkUnavailable = errors.New("sink unavailable")

	// ErrUpstreamAPI is returned when the Stripe API returns a non-2xx response
	ErrUpstreamAPI = errors.New("stripe API error")
)
