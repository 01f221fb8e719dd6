package domain

import "errors"

// Domain errors
var (
	// Not-found errors: terminal, no compensation needed
	ErrActivityNotFound = errors.New("activity not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrCodeNotFound     = errors.New("code not found")

	// Invalid-state errors: terminal
	ErrActivityNotPublished    = errors.New("activity is not published")
	ErrSessionNotBookable      = errors.New("session is cancelled or completed")
	ErrBookingAlreadyCancelled = errors.New("booking is already cancelled")
	ErrBookingNotPending       = errors.New("booking is not pending")
	ErrBookingNotConfirmed     = errors.New("booking is not confirmed")
	ErrCodeNotActive           = errors.New("code is not active")
	ErrCodeExpired             = errors.New("code has expired")
	ErrCodeRedeemed            = errors.New("code has been fully redeemed")
	ErrCodeUsageLimitReached   = errors.New("code usage limit reached")

	// Insufficient-resource errors: terminal after compensation
	ErrInsufficientCapacity = errors.New("not enough spots available")
	ErrInsufficientBalance  = errors.New("insufficient code balance")

	// Conflict: a concurrent writer raced us, the whole operation may be retried
	ErrConcurrentUpdate = errors.New("concurrent update detected")

	// External dependency failures: trigger compensation of prior reservations
	ErrPaymentProvider = errors.New("payment provider request failed")

	// Validation errors
	ErrInvalidPeopleCount = errors.New("number of people must be at least one")
	ErrInvalidAmount      = errors.New("amount must not be negative")
	ErrMissingBookingID   = errors.New("booking id is required")
	ErrMissingCode        = errors.New("code is required")
)

// IsNotFoundError reports whether err is a missing-entity error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrCodeNotFound)
}

// IsInvalidStateError reports whether err is a terminal state violation
func IsInvalidStateError(err error) bool {
	return errors.Is(err, ErrActivityNotPublished) ||
		errors.Is(err, ErrSessionNotBookable) ||
		errors.Is(err, ErrBookingAlreadyCancelled) ||
		errors.Is(err, ErrBookingNotPending) ||
		errors.Is(err, ErrBookingNotConfirmed) ||
		errors.Is(err, ErrCodeNotActive) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeRedeemed) ||
		errors.Is(err, ErrCodeUsageLimitReached)
}

// IsInsufficientError reports whether err means a resource ran out
func IsInsufficientError(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsConflictError reports whether err is a detected race; the caller may
// retry the whole operation
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}

// IsValidationError reports whether err is a request validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPeopleCount) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingBookingID) ||
		errors.Is(err, ErrMissingCode)
}
