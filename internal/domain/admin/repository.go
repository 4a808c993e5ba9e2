package admin

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

const logColumns = `id, admin_id, action, target_user_id, details, created_at`

type Repository struct {
	db     *sqlx.DB
	ledger *ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, ledger: ledgerRepo}
}

// AdjustBalance posts the signed delta and writes the audit row in one
// transaction. This is the only caller allowed to drive a balance negative,
// and the audit entry always records the before and after values.
func (r *Repository) AdjustBalance(ctx context.Context, p AdjustParams) (*ledger.Transaction, *AuditLog, error) {
	var posted *ledger.Transaction
	var entry *AuditLog
	err := r.ledger.RunInTx(ctx, func(tx *sqlx.Tx) error {
		old, err := r.ledger.LockBalance(ctx, tx, p.TargetUserID)
		if err != nil {
			return err
		}

		posted, err = r.ledger.ApplyTx(ctx, tx, p.TargetUserID, ledger.Entry{
			Type:          ledger.TxTypeAdminAdjust,
			AmountCID:     p.CIDDelta,
			AmountUSD:     p.USDDelta,
			Description:   "Admin balance adjustment: " + p.Reason,
			AllowNegative: true,
		})
		if err != nil {
			return err
		}

		details := fmt.Sprintf("CID: %d -> %d, USD: %s -> %s. Reason: %s",
			old.CID, old.CID+p.CIDDelta,
			old.USD.StringFixed(2), old.USD.Add(p.USDDelta).StringFixed(2),
			p.Reason)
		entry = newAuditLog(p.AdminID, ActionBalanceAdjustment, p.TargetUserID, details)
		return r.insertLogTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, nil, err
	}
	return posted, entry, nil
}

// SetBanned flips the target's ban flag and audits the change.
func (r *Repository) SetBanned(ctx context.Context, adminID, targetUserID int64, banned bool, reason string) (*AuditLog, error) {
	var entry *AuditLog
	err := r.ledger.RunInTx(ctx, func(tx *sqlx.Tx) error {
		old, err := r.ledger.SetBannedTx(ctx, tx, targetUserID, banned)
		if err != nil {
			return err
		}

		action := ActionBanUser
		if !banned {
			action = ActionUnbanUser
		}
		details := fmt.Sprintf("Status changed from %t to %t. Reason: %s", old, banned, reason)
		entry = newAuditLog(adminID, action, targetUserID, details)
		return r.insertLogTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) insertLogTx(ctx context.Context, tx *sqlx.Tx, l *AuditLog) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_logs (id, admin_id, action, target_user_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.ID, l.AdminID, l.Action, l.TargetUserID, l.Details, l.CreatedAt)
	return err
}

// ListLogs returns audit entries newest first.
func (r *Repository) ListLogs(ctx context.Context, p ledger.Pagination) ([]AuditLog, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	logs := make([]AuditLog, 0)
	err := r.db.SelectContext(ctx, &logs, fmt.Sprintf(`
		SELECT %s FROM admin_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, logColumns), limit, p.Offset)
	return logs, err
}
