package purchase

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

var ErrNoActiveReservation = errors.New("no active reservation")

// InsufficientBalanceError reports the exact shortfall of a purchase
// attempt so the caller can quote a top-up amount.
type InsufficientBalanceError struct {
	Required decimal.Decimal
	Balance  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, have %s, short %s",
		e.Required.StringFixed(2), e.Balance.StringFixed(2), e.Shortfall().StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ledger.ErrInsufficientUSD }

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Balance)
}

// AmountMismatchError reports a payment that does not match the reserved
// amount within tolerance.
type AmountMismatchError struct {
	Required decimal.Decimal
	Paid     decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment amount mismatch: required %s, paid %s",
		e.Required.StringFixed(2), e.Paid.StringFixed(2))
}
