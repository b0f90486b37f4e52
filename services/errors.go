package services

import "errors"

// Operation-scoped failures. Nothing here is fatal to the process;
// every error is reported to the caller and leaves no partial state.
var (
	ErrUnknownUser     = errors.New("unknown user")
	ErrUnknownCode     = errors.New("unknown referral code")
	ErrAlreadyReferred = errors.New("user already has a referrer")
	ErrSelfReferral    = errors.New("cannot refer yourself")
	ErrCycleDetected   = errors.New("referral would create a cycle")

	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidInput  = errors.New("invalid input")

	ErrUnknownRequest      = errors.New("unknown withdrawal request")
	ErrAlreadyResolved     = errors.New("withdrawal already resolved")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrReasonRequired      = errors.New("rejection reason is required")
)
