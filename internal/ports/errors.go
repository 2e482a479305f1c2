package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so callers can branch with errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Venue / market data errors
	ErrVenueUnavailable     = errors.New("execution venue is unavailable")
	ErrAccountNotConnected  = errors.New("trading account is not connected")
	ErrConnectionFailed     = errors.New("failed to connect to the venue")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("venue authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrPositionNotFound     = errors.New("position not found on the venue")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrInsufficientData     = errors.New("not enough market data")

	// Signal lifecycle / entitlement errors
	ErrInvalidTransition = errors.New("signal status transition not allowed")
	ErrNotEntitled       = errors.New("subscriber is not entitled to the signal")
	ErrQuotaExhausted    = errors.New("daily signal quota exhausted")
	ErrDeliveryRejected  = errors.New("message channel rejected the delivery")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrConflict       = errors.New("concurrent update conflict")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
