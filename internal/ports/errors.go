package ports

import "errors"

// Standard application-level errors.
// Adapters and services wrap underlying errors with these sentinels so callers
// can classify failures with errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Signal Processing Errors
	ErrSignalExpired      = errors.New("signal exceeded its maximum acceptable lag")
	ErrInvalidSignature   = errors.New("signal signature verification failed")
	ErrInvalidTransition  = errors.New("invalid position-state transition")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrBotNotActive       = errors.New("bot is not accepting signals")
	ErrDuplicateOrder     = errors.New("order id already recorded for this bot")
	ErrTradeAlreadyClosed = errors.New("trade is already closed")

	// Exchange Errors. ErrExchange marks the whole family; the finer sentinels
	// carry the underlying reason without the core distinguishing them further.
	ErrExchange             = errors.New("exchange request failed")
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// Database Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
	ErrDeleteFailed = errors.New("database delete failed")
)
