package models

import (
	"errors"
)

var (
	// ErrPurchaseTokenNotFound: the billing platform rejected the token as
	// permanently unknown. Never worth retrying.
	ErrPurchaseTokenNotFound = errors.New("models: purchase token not found on billing platform")

	// ErrInvalidToken: the token failed verification or the purchase is in a
	// terminal/replaced state and cannot be registered.
	ErrInvalidToken = errors.New("models: invalid purchase token")

	// ErrConflict: the purchase is already linked to a different account.
	ErrConflict = errors.New("models: purchase already registered to another user")

	// ErrInternal: store or bookkeeping failure unrelated to token validity.
	// Retryable, and must never be conflated with ErrInvalidToken.
	ErrInternal = errors.New("models: internal error")
)
