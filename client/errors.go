package client

import "errors"

// Fatal unless noted otherwise. Callers match with errors.Is; the returned
// errors wrap these with context.
var (
	// ErrClockSync means the remote time source was unreachable or its
	// answer could not be parsed. The schedule cannot be trusted.
	ErrClockSync = errors.New("clock sync failed")

	// ErrParse means the configured time of day is malformed.
	ErrParse = errors.New("invalid time of day")

	// ErrLoginTimeout means no login was detected within the login poll budget.
	ErrLoginTimeout = errors.New("login not detected before timeout")

	// ErrElementTimeout means a bounded element wait expired. Only the
	// checkout confirmation wait treats it as recoverable.
	ErrElementTimeout = errors.New("element wait timed out")

	// ErrAttemptsExhausted is the failure outcome of the attempt loop.
	ErrAttemptsExhausted = errors.New("purchase attempts exhausted")

	// ErrSessionNotFound is returned by a SessionStore when no blob exists for a key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSafetyTripped is returned once the SafetyManager has stopped traffic.
	ErrSafetyTripped = errors.New("safety trigger active")

	// ErrPollTimeout is returned by Poll when the condition never held.
	ErrPollTimeout = errors.New("poll timed out")
)
