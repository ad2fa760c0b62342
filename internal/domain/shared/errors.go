package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")

	// ErrQuotaExceeded is returned when the monthly provider call budget is exhausted.
	// Callers must treat it as fatal for the current scan attempt and not retry.
	ErrQuotaExceeded = NewDomainError("QUOTA_EXCEEDED", "Monthly provider call budget exhausted")

	// ErrProviderRateLimited is returned when the flight-search provider reports a
	// rate-limit or quota error. It aborts the remaining windows of a route scan.
	ErrProviderRateLimited = NewDomainError("PROVIDER_RATE_LIMITED", "Flight-search provider rejected the call with a rate-limit error")

	// ErrScorerUnavailable is returned by the remote scorer when it times out or
	// fails; the caller degrades to the deterministic statistical fallback.
	ErrScorerUnavailable = NewDomainError("SCORER_UNAVAILABLE", "ML scoring service unavailable")

	// ErrReallocationUnsafe is returned when a tier reallocation would push the
	// projected monthly call volume past the buffered limit. No changes are applied.
	ErrReallocationUnsafe = NewDomainError("REALLOCATION_UNSAFE", "Projected call volume exceeds the buffered monthly limit")
)
