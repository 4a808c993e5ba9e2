package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType enumerates every balance-affecting operation kind.
type TxType string

const (
	TxTypeDeposit         TxType = "deposit"
	TxTypeVoucherRedeem   TxType = "voucher_redeem"
	TxTypePackagePurchase TxType = "package_purchase"
	TxTypeCIDConsumption  TxType = "cid_consumption"
	TxTypeAdminAdjust     TxType = "admin_adjust"
)

func (t TxType) Valid() bool {
	switch t {
	case TxTypeDeposit, TxTypeVoucherRedeem, TxTypePackagePurchase, TxTypeCIDConsumption, TxTypeAdminAdjust:
		return true
	}
	return false
}

// TxStatus is the transaction lifecycle state. Only completed rows
// contribute to balances.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
)

// User is a ledger account keyed by the Telegram user id.
type User struct {
	TelegramID   int64           `db:"telegram_id" json:"telegram_id"`
	Username     *string         `db:"username" json:"username,omitempty"`
	FirstName    *string         `db:"first_name" json:"first_name,omitempty"`
	LastName     *string         `db:"last_name" json:"last_name,omitempty"`
	BalanceCID   int64           `db:"balance_cid" json:"balance_cid"`
	BalanceUSD   decimal.Decimal `db:"balance_usd" json:"balance_usd"`
	IsAdmin      bool            `db:"is_admin" json:"is_admin"`
	IsBanned     bool            `db:"is_banned" json:"is_banned"`
	RegisteredAt time.Time       `db:"registered_at" json:"registered_at"`
	LastActivity time.Time       `db:"last_activity" json:"last_activity"`
}

// Balance is a dual-currency snapshot.
type Balance struct {
	CID int64           `db:"balance_cid" json:"cid"`
	USD decimal.Decimal `db:"balance_usd" json:"usd"`
}

// Transaction is one immutable ledger row.
type Transaction struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	Type           TxType          `db:"type" json:"type"`
	AmountCID      int64           `db:"amount_cid" json:"amount_cid"`
	AmountUSD      decimal.Decimal `db:"amount_usd" json:"amount_usd"`
	Status         TxStatus        `db:"status" json:"status"`
	ReferenceID    *string         `db:"reference_id" json:"reference_id,omitempty"`
	FromAddress    *string         `db:"from_address" json:"from_address,omitempty"`
	ToAddress      *string         `db:"to_address" json:"to_address,omitempty"`
	InstallationID *string         `db:"installation_id" json:"installation_id,omitempty"`
	ConfirmationID *string         `db:"confirmation_id" json:"confirmation_id,omitempty"`
	Description    string          `db:"description" json:"description"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// Entry describes a single posting against a user's balances. ReferenceID,
// when set, must be globally unique across completed transactions; it is how
// real-world correlation ids (chain txids, voucher codes) are replay-guarded.
type Entry struct {
	Type           TxType
	AmountCID      int64
	AmountUSD      decimal.Decimal
	ReferenceID    string
	FromAddress    string
	ToAddress      string
	InstallationID string
	ConfirmationID string
	Description    string

	// AllowNegative permits the posting to drive balances below zero.
	// Only the admin adjustment path sets it.
	AllowNegative bool
}

// Pagination bounds list queries.
type Pagination struct {
	Limit  int
	Offset int
}

// ConsistencyReport compares a user's stored balances against the sum of
// their completed transaction deltas.
type ConsistencyReport struct {
	TelegramID int64           `json:"telegram_id"`
	StoredCID  int64           `json:"stored_cid"`
	StoredUSD  decimal.Decimal `json:"stored_usd"`
	DerivedCID int64           `json:"derived_cid"`
	DerivedUSD decimal.Decimal `json:"derived_usd"`
	Consistent bool            `json:"consistent"`
}

// SearchFilters narrows admin transaction searches.
type SearchFilters struct {
	UserID   *int64
	Type     *TxType
	Status   *TxStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}
