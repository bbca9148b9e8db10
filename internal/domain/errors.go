package domain

import "errors"

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrMissionNotFound   = errors.New("mission not found")
	ErrFacilityNotFound  = errors.New("facility not found")
	ErrCompanionNotFound = errors.New("companion not found")
	ErrReceiptNotFound   = errors.New("receipt not found")

	ErrVersionConflict      = errors.New("user version conflict")
	ErrIdempotencyConflict  = errors.New("idempotency key already applied")
	ErrDuplicateReceipt     = errors.New("duplicate receipt")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrMFARequired        = errors.New("mfa challenge required")
	ErrMFAInvalid         = errors.New("mfa code invalid")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRevoked        = errors.New("token revoked")

	ErrRateLimited  = errors.New("rate limited")
	ErrInsufficientFunds = errors.New("insufficient coins")
	ErrMaxLevelReached  = errors.New("facility already at max level")
	ErrMissionNotClaimable = errors.New("mission not ready to claim")

	ErrInvalidPolicy = errors.New("invalid reward policy")
	ErrBusy          = errors.New("user busy, retry later")
)

// IsNotFoundError reports whether err is one of the not-found sentinels.
func IsNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrTenantNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrMissionNotFound),
		errors.Is(err, ErrFacilityNotFound),
		errors.Is(err, ErrCompanionNotFound),
		errors.Is(err, ErrReceiptNotFound):
		return true
	default:
		return false
	}
}

// IsConflictError reports whether err is a concurrency/uniqueness conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrIdempotencyConflict) || errors.Is(err, ErrDuplicateReceipt)
}
