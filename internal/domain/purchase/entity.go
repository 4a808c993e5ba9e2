package purchase

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/catalog"
)

// ReservationStatus is the reservation lifecycle state.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation binds a user to one package with the exact top-up amount
// computed at reserve time. A user holds at most one active reservation.
type Reservation struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	UserID      int64             `db:"user_id" json:"user_id"`
	PackageID   int64             `db:"package_id" json:"package_id"`
	RequiredUSD decimal.Decimal   `db:"required_usd" json:"required_usd"`
	Status      ReservationStatus `db:"status" json:"status"`
	PaymentTxID *string           `db:"payment_txid" json:"payment_txid,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time         `db:"expires_at" json:"expires_at"`
	CompletedAt *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

func (r *Reservation) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Payment carries the verified on-chain payment applied to a reservation.
type Payment struct {
	TxID        string
	AmountUSD   decimal.Decimal
	FromAddress string
}

// ReserveOutcome is what the caller needs to instruct the user: the
// reservation itself, the package it holds and the balance the required
// amount was computed from.
type ReserveOutcome struct {
	Reservation *Reservation     `json:"reservation"`
	Package     *catalog.Package `json:"package"`
	BalanceUSD  decimal.Decimal  `json:"balance_usd"`
}
