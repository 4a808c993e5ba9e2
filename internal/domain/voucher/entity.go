package voucher

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is a single-use prepaid code carrying CID and/or USD value.
type Voucher struct {
	ID        int64           `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	CIDAmount int64           `db:"cid_amount" json:"cid_amount"`
	USDAmount decimal.Decimal `db:"usd_amount" json:"usd_amount"`
	IsUsed    bool            `db:"is_used" json:"is_used"`
	CreatedBy *int64          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
}

// Expired reports whether the voucher has an expiry in the past.
func (v *Voucher) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && v.ExpiresAt.Before(now)
}

// Use is one redemption audit record.
type Use struct {
	ID        int64     `db:"id" json:"id"`
	VoucherID int64     `db:"voucher_id" json:"voucher_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	UsedAt    time.Time `db:"used_at" json:"used_at"`
}

// Stats summarizes the voucher pool for admins. Value totals cover unused
// codes only.
type Stats struct {
	Total          int64           `db:"total" json:"total"`
	Used           int64           `db:"used" json:"used"`
	Active         int64           `db:"active" json:"active"`
	Expired        int64           `db:"expired" json:"expired"`
	UnusedCIDValue int64           `db:"unused_cid_value" json:"unused_cid_value"`
	UnusedUSDValue decimal.Decimal `db:"unused_usd_value" json:"unused_usd_value"`
}

// CreateParams describes one voucher to mint.
type CreateParams struct {
	CIDAmount  int64
	USDAmount  decimal.Decimal
	CustomCode string
	CreatedBy  int64
	ExpiresIn  time.Duration
}

// NormalizeCode canonicalizes user input before any lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
