// Error codes mapped to HTTP responses via fail(). Codes are lowercase
// snake_case; clients branch on them rather than on messages.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInvalidNumber = "invalid_number"
	ErrCodePairingFailed = "pairing_failed"
	ErrCodeStatsFailed   = "stats_failed"
)
