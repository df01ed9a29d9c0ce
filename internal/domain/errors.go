package domain

import "errors"

// Error taxonomy for the pipeline. Callers distinguish cases with
// errors.Is; retry policy lives with the caller, not where the error
// is produced.
var (
	// ErrProviderUnavailable marks a transient upstream failure
	// (network error, 5xx). Retryable with back-off.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRateLimited marks a provider-side throttle (429 or an
	// in-band rate limit note). Distinct from ErrRateLimitExceeded so
	// retry policy can differ.
	ErrProviderRateLimited = errors.New("provider rate limited")

	// ErrInvalidSymbol marks a permanent failure for the given symbol.
	// Not retryable; negatively cached.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrParse marks an unparsable provider response.
	ErrParse = errors.New("provider response parse error")

	// ErrRateLimitExceeded is the local limiter's rejection when the
	// caller's max wait elapses before a permit is available.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrPublish marks a failed event publish after the local retry
	// queue was exhausted or full.
	ErrPublish = errors.New("event publish failed")

	// ErrJobNotFound is returned for operations on unknown job ids.
	ErrJobNotFound = errors.New("polling job not found")

	// ErrNotFound is returned by store reads with no matching rows.
	ErrNotFound = errors.New("not found")
)
