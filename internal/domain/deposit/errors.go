package deposit

import "errors"

var (
	ErrTxNotFound           = errors.New("transaction not found on chain")
	ErrUnconfirmed          = errors.New("transaction not sufficiently confirmed")
	ErrWrongAsset           = errors.New("transaction carries no matching token transfer")
	ErrWrongRecipient       = errors.New("transfer does not pay the deposit wallet")
	ErrBelowMinimum         = errors.New("deposit below minimum amount")
	ErrAlreadyProcessed     = errors.New("transaction already credited")
	ErrVerificationInFlight = errors.New("transaction is already being verified")
)
