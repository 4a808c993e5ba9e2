package voucher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

const voucherColumns = `id, code, cid_amount, usd_amount, is_used, created_by, created_at, expires_at`

type Repository struct {
	db     *sqlx.DB
	ledger *ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, ledger: ledgerRepo}
}

func (r *Repository) Create(ctx context.Context, v *Voucher) error {
	err := r.db.GetContext(ctx, &v.ID, `
		INSERT INTO vouchers (code, cid_amount, usd_amount, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, v.Code, v.CIDAmount, v.USDAmount, v.CreatedBy, v.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	var v Voucher
	err := r.db.GetContext(ctx, &v, fmt.Sprintf(`SELECT %s FROM vouchers WHERE code = $1`, voucherColumns), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Redeem marks the voucher used, records the audit row and credits the
// user's balances as one transaction. The voucher row lock serializes
// concurrent redeems of the same code.
func (r *Repository) Redeem(ctx context.Context, code string, userID int64) (*Voucher, *ledger.Transaction, error) {
	var v Voucher
	var posted *ledger.Transaction

	err := r.ledger.RunInTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &v, fmt.Sprintf(`SELECT %s FROM vouchers WHERE code = $1 FOR UPDATE`, voucherColumns), code)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVoucherNotFound
		}
		if err != nil {
			return err
		}
		if v.IsUsed {
			return ErrAlreadyUsed
		}
		if v.Expired(time.Now().UTC()) {
			return ErrVoucherExpired
		}

		if _, err := tx.ExecContext(ctx, `UPDATE vouchers SET is_used = TRUE WHERE id = $1`, v.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO voucher_uses (voucher_id, user_id) VALUES ($1, $2)`, v.ID, userID); err != nil {
			return err
		}

		posted, err = r.ledger.ApplyTx(ctx, tx, userID, ledger.Entry{
			Type:        ledger.TxTypeVoucherRedeem,
			AmountCID:   v.CIDAmount,
			AmountUSD:   v.USDAmount,
			ReferenceID: "voucher:" + v.Code,
			Description: fmt.Sprintf("Voucher %s redeemed", v.Code),
		})
		if errors.Is(err, ledger.ErrDuplicateReference) {
			return ErrAlreadyUsed
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	v.IsUsed = true
	return &v, posted, nil
}

func (r *Repository) ListUses(ctx context.Context, voucherID int64) ([]Use, error) {
	uses := make([]Use, 0)
	err := r.db.SelectContext(ctx, &uses, `
		SELECT id, voucher_id, user_id, used_at
		FROM voucher_uses
		WHERE voucher_id = $1
		ORDER BY used_at ASC
	`, voucherID)
	return uses, err
}

func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.db.GetContext(ctx, &s, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE is_used) AS used,
			COUNT(*) FILTER (WHERE NOT is_used AND (expires_at IS NULL OR expires_at > now())) AS active,
			COUNT(*) FILTER (WHERE NOT is_used AND expires_at <= now()) AS expired,
			COALESCE(SUM(cid_amount) FILTER (WHERE NOT is_used), 0) AS unused_cid_value,
			COALESCE(SUM(usd_amount) FILTER (WHERE NOT is_used), 0) AS unused_usd_value
		FROM vouchers
	`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
