package ledger

import "errors"

// Errors returned by ledger operations. They are caller-side precondition
// violations; the ledger never retries and never applies a partial change.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrIncorrectPayment  = errors.New("incorrect payment")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrRoyaltyRequired   = errors.New("royalty payment required")
	ErrItemUnavailable   = errors.New("item unavailable")
	ErrOutOfRange        = errors.New("item id out of range")
	ErrNoItems           = errors.New("no items")
	ErrInsufficientFunds = errors.New("insufficient marketplace funds")
	ErrOverflow          = errors.New("amount overflow")
)
