package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const txColumns = `id, user_id, type, amount_cid, amount_usd, status, reference_id,
	from_address, to_address, installation_id, confirmation_id, description, created_at, completed_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// RunInTx executes fn inside a database transaction. The transaction is
// rolled back unless fn returns nil.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureUser upserts a user record on contact and refreshes the display
// fields and activity timestamp.
func (r *Repository) EnsureUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = COALESCE(NULLIF($2, ''), users.username),
			first_name = COALESCE(NULLIF($3, ''), users.first_name),
			last_name = COALESCE(NULLIF($4, ''), users.last_name),
			last_activity = now()
		RETURNING telegram_id, username, first_name, last_name, balance_cid, balance_usd,
			is_admin, is_banned, registered_at, last_activity
	`, telegramID, username, firstName, lastName)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `
		SELECT telegram_id, username, first_name, last_name, balance_cid, balance_usd,
			is_admin, is_banned, registered_at, last_activity
		FROM users
		WHERE telegram_id = $1
	`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetBalance(ctx context.Context, telegramID int64) (Balance, error) {
	var b Balance
	err := r.db.GetContext(ctx, &b, `SELECT balance_cid, balance_usd FROM users WHERE telegram_id = $1`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return Balance{}, ErrUserNotFound
	}
	return b, err
}

// LockBalance takes a row-level lock on the user's balances for the duration
// of the caller's transaction.
func (r *Repository) LockBalance(ctx context.Context, tx *sqlx.Tx, telegramID int64) (Balance, error) {
	var b Balance
	err := tx.GetContext(ctx, &b, `SELECT balance_cid, balance_usd FROM users WHERE telegram_id = $1 FOR UPDATE`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return Balance{}, ErrUserNotFound
	}
	return b, err
}

// SetBannedTx flips the ban flag and returns the previous value.
func (r *Repository) SetBannedTx(ctx context.Context, tx *sqlx.Tx, telegramID int64, banned bool) (bool, error) {
	var old bool
	err := tx.GetContext(ctx, &old, `SELECT is_banned FROM users WHERE telegram_id = $1 FOR UPDATE`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE users SET is_banned = $2 WHERE telegram_id = $1`, telegramID, banned)
	return old, err
}

// IsReferenceUsed reports whether any transaction already carries the
// given correlation reference.
func (r *Repository) IsReferenceUsed(ctx context.Context, referenceID string) (bool, error) {
	if referenceID == "" {
		return false, nil
	}
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM transactions WHERE reference_id = $1)`, referenceID)
	return exists, err
}

func (r *Repository) referenceUsedTx(ctx context.Context, tx *sqlx.Tx, referenceID string) (bool, error) {
	if referenceID == "" {
		return false, nil
	}
	var exists bool
	err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM transactions WHERE reference_id = $1)`, referenceID)
	return exists, err
}

func (r *Repository) updateBalanceTx(ctx context.Context, tx *sqlx.Tx, telegramID int64, b Balance) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET balance_cid = $2, balance_usd = $3, last_activity = now()
		WHERE telegram_id = $1
	`, telegramID, b.CID, b.USD)
	return err
}

func (r *Repository) insertTransactionTx(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, amount_cid, amount_usd, status, reference_id,
			from_address, to_address, installation_id, confirmation_id, description, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.UserID, t.Type, t.AmountCID, t.AmountUSD, t.Status, t.ReferenceID,
		t.FromAddress, t.ToAddress, t.InstallationID, t.ConfirmationID, t.Description, t.CreatedAt, t.CompletedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func newTransaction(userID int64, e Entry, status TxStatus) *Transaction {
	t := &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        e.Type,
		AmountCID:   e.AmountCID,
		AmountUSD:   e.AmountUSD,
		Status:      status,
		Description: e.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if e.ReferenceID != "" {
		t.ReferenceID = &e.ReferenceID
	}
	if e.FromAddress != "" {
		t.FromAddress = &e.FromAddress
	}
	if e.ToAddress != "" {
		t.ToAddress = &e.ToAddress
	}
	if e.InstallationID != "" {
		t.InstallationID = &e.InstallationID
	}
	if e.ConfirmationID != "" {
		t.ConfirmationID = &e.ConfirmationID
	}
	if status == TxStatusCompleted {
		now := t.CreatedAt
		t.CompletedAt = &now
	}
	return t
}

// ApplyTx is the single code path that mutates balances. It locks the user
// row, guards the correlation reference, checks the resulting balances and
// writes the completed transaction row, all within the caller's transaction.
func (r *Repository) ApplyTx(ctx context.Context, tx *sqlx.Tx, userID int64, e Entry) (*Transaction, error) {
	if !e.Type.Valid() {
		return nil, ErrInvalidEntry
	}

	balance, err := r.LockBalance(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	used, err := r.referenceUsedTx(ctx, tx, e.ReferenceID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrDuplicateReference
	}

	next := Balance{
		CID: balance.CID + e.AmountCID,
		USD: balance.USD.Add(e.AmountUSD),
	}
	if !e.AllowNegative {
		if next.CID < 0 {
			return nil, ErrInsufficientCID
		}
		if next.USD.IsNegative() {
			return nil, ErrInsufficientUSD
		}
	}

	if err := r.updateBalanceTx(ctx, tx, userID, next); err != nil {
		return nil, err
	}

	t := newTransaction(userID, e, TxStatusCompleted)
	if err := r.insertTransactionTx(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Apply posts a completed entry in its own transaction.
func (r *Repository) Apply(ctx context.Context, userID int64, e Entry) (*Transaction, error) {
	var t *Transaction
	err := r.RunInTx(ctx, func(tx *sqlx.Tx) error {
		var applyErr error
		t, applyErr = r.ApplyTx(ctx, tx, userID, e)
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreatePending records a transaction without touching balances. The
// reference is claimed immediately, so a concurrent duplicate submit fails
// on the unique index even before completion.
func (r *Repository) CreatePending(ctx context.Context, userID int64, e Entry) (*Transaction, error) {
	if !e.Type.Valid() {
		return nil, ErrInvalidEntry
	}

	t := newTransaction(userID, e, TxStatusPending)
	err := r.RunInTx(ctx, func(tx *sqlx.Tx) error {
		return r.insertTransactionTx(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Complete applies the pending transaction's deltas to the user balance and
// flips it to completed. Completing an already-completed transaction is a
// no-op.
func (r *Repository) Complete(ctx context.Context, txID uuid.UUID) (*Transaction, error) {
	var result *Transaction
	err := r.RunInTx(ctx, func(tx *sqlx.Tx) error {
		var t Transaction
		err := tx.GetContext(ctx, &t, fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1 FOR UPDATE`, txColumns), txID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		if t.Status == TxStatusCompleted {
			result = &t
			return nil
		}
		if t.Status != TxStatusPending {
			return fmt.Errorf("%w: cannot complete %s transaction", ErrInvalidEntry, t.Status)
		}

		balance, err := r.LockBalance(ctx, tx, t.UserID)
		if err != nil {
			return err
		}
		next := Balance{
			CID: balance.CID + t.AmountCID,
			USD: balance.USD.Add(t.AmountUSD),
		}
		if next.CID < 0 {
			return ErrInsufficientCID
		}
		if next.USD.IsNegative() {
			return ErrInsufficientUSD
		}
		if err := r.updateBalanceTx(ctx, tx, t.UserID, next); err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE transactions SET status = $2, completed_at = $3 WHERE id = $1
		`, t.ID, TxStatusCompleted, now); err != nil {
			return err
		}
		t.Status = TxStatusCompleted
		t.CompletedAt = &now
		result = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Fail marks a pending transaction failed. Balances are untouched; a
// non-empty reason replaces the description.
func (r *Repository) Fail(ctx context.Context, txID uuid.UUID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, completed_at = now(),
		    description = COALESCE(NULLIF($4, ''), description)
		WHERE id = $1 AND status = $3
	`, txID, TxStatusFailed, TxStatusPending, reason)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, txID uuid.UUID) (*Transaction, error) {
	var t Transaction
	err := r.db.GetContext(ctx, &t, fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, txColumns), txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ListByUser(ctx context.Context, telegramID int64, p Pagination) ([]Transaction, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	transactions := make([]Transaction, 0)
	err := r.db.SelectContext(ctx, &transactions, fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, txColumns), telegramID, limit, p.Offset)
	return transactions, err
}

// Search builds a filtered admin query over the transaction log.
func (r *Repository) Search(ctx context.Context, f SearchFilters) ([]Transaction, error) {
	base := fmt.Sprintf(`SELECT %s FROM transactions WHERE 1=1`, txColumns)
	args := make([]interface{}, 0, 6)
	idx := 1

	if f.UserID != nil {
		base += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, *f.UserID)
		idx++
	}
	if f.Type != nil && *f.Type != "" {
		base += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, *f.Type)
		idx++
	}
	if f.Status != nil && *f.Status != "" {
		base += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.DateFrom != nil {
		base += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *f.DateFrom)
		idx++
	}
	if f.DateTo != nil {
		base += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *f.DateTo)
		idx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	base += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	transactions := make([]Transaction, 0)
	err := r.db.SelectContext(ctx, &transactions, base, args...)
	return transactions, err
}

// SumCompletedDeltas recomputes a user's balances from the transaction
// log. Used by the admin consistency check and the ledger tests.
func (r *Repository) SumCompletedDeltas(ctx context.Context, telegramID int64) (Balance, error) {
	var b Balance
	err := r.db.GetContext(ctx, &b, `
		SELECT COALESCE(SUM(amount_cid), 0) AS balance_cid,
			COALESCE(SUM(amount_usd), 0) AS balance_usd
		FROM transactions
		WHERE user_id = $1 AND status = $2
	`, telegramID, TxStatusCompleted)
	return b, err
}
