package deposit

import (
	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/purchase"
)

// VerifiedPayment is the outcome of chain verification: what was paid, by
// whom, and how deep the transaction is. Verification never mutates
// balances; crediting is a separate step.
type VerifiedPayment struct {
	TxID          string          `json:"txid"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	FromAddress   string          `json:"from_address"`
	ToAddress     string          `json:"to_address"`
	Confirmations int64           `json:"confirmations"`
	Timestamp     int64           `json:"timestamp"`
}

// ProcessOutcome reports how a verified payment was applied. Reservation is
// set when the payment settled a reserved package instead of topping up the
// balance.
type ProcessOutcome struct {
	Payment     *VerifiedPayment      `json:"payment"`
	Transaction *ledger.Transaction   `json:"transaction"`
	Reservation *purchase.Reservation `json:"reservation,omitempty"`
}

// Transfer is one wallet inflow row for the reconciliation view.
type Transfer struct {
	TxID        string          `json:"txid"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	FromAddress string          `json:"from_address"`
	Timestamp   int64           `json:"timestamp"`
	Confirmed   bool            `json:"confirmed"`
}
