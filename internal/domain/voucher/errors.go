package voucher

import "errors"

var (
	ErrVoucherNotFound  = errors.New("voucher not found")
	ErrAlreadyUsed      = errors.New("voucher already used")
	ErrVoucherExpired   = errors.New("voucher expired")
	ErrInvalidCode      = errors.New("invalid voucher code")
	ErrCodeTaken        = errors.New("voucher code already exists")
	ErrInvalidAmount    = errors.New("voucher must carry a positive CID or USD value")
	ErrInvalidBulkCount = errors.New("bulk count must be between 1 and 100")
)
