package ledger

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserBanned         = errors.New("user is banned")
	ErrInvalidEntry       = errors.New("invalid ledger entry")
	ErrInsufficientCID    = errors.New("insufficient CID balance")
	ErrInsufficientUSD    = errors.New("insufficient USD balance")
	ErrDuplicateReference = errors.New("reference already used")
	ErrTransactionNotFound = errors.New("transaction not found")
)
