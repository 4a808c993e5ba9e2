package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/catalog"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

const reservationColumns = `id, user_id, package_id, required_usd, status, payment_txid, created_at, expires_at, completed_at`

type Repository struct {
	db     *sqlx.DB
	ledger *ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, ledger: ledgerRepo}
}

// Purchase swaps USD for CID as one completed ledger posting. The negative
// guard inside the ledger rejects the swap if the balance moved since the
// caller's check.
func (r *Repository) Purchase(ctx context.Context, userID int64, pkg *catalog.Package) (*ledger.Transaction, error) {
	return r.ledger.Apply(ctx, userID, ledger.Entry{
		Type:        ledger.TxTypePackagePurchase,
		AmountCID:   pkg.CIDAmount,
		AmountUSD:   pkg.PriceUSD.Neg(),
		Description: fmt.Sprintf("Purchased %s for %s USD", pkg.Name, pkg.PriceUSD.StringFixed(2)),
	})
}

// CreateReservation cancels any active reservation the user holds and
// inserts the new one in the same transaction, so the one-active-per-user
// rule survives concurrent reserves.
func (r *Repository) CreateReservation(ctx context.Context, res *Reservation) error {
	return r.ledger.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE reservations SET status = $2
			WHERE user_id = $1 AND status = $3
		`, res.UserID, ReservationCancelled, ReservationActive); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reservations (id, user_id, package_id, required_usd, status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, res.ID, res.UserID, res.PackageID, res.RequiredUSD, res.Status, res.CreatedAt, res.ExpiresAt)
		return err
	})
}

func (r *Repository) GetActiveReservation(ctx context.Context, userID int64) (*Reservation, error) {
	var res Reservation
	err := r.db.GetContext(ctx, &res, fmt.Sprintf(`
		SELECT %s FROM reservations
		WHERE user_id = $1 AND status = $2 AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1
	`, reservationColumns), userID, ReservationActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveReservation
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CompleteReservation settles an active reservation against a verified
// payment as one transaction: the payment credit, the package swap and the
// reservation stamp commit together or not at all. The deposit leg carries
// the chain txid as its correlation id, so a settled payment can never be
// credited a second time through the plain deposit path.
func (r *Repository) CompleteReservation(ctx context.Context, userID int64, pkg *catalog.Package, p Payment, tolerance decimal.Decimal) (*ledger.Transaction, *Reservation, error) {
	var res Reservation
	var purchased *ledger.Transaction

	err := r.ledger.RunInTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &res, fmt.Sprintf(`
			SELECT %s FROM reservations
			WHERE user_id = $1 AND status = $2 AND expires_at > now()
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE
		`, reservationColumns), userID, ReservationActive)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoActiveReservation
		}
		if err != nil {
			return err
		}
		if res.PackageID != pkg.ID {
			return ErrNoActiveReservation
		}

		if p.AmountUSD.Sub(res.RequiredUSD).Abs().GreaterThan(tolerance) {
			return &AmountMismatchError{Required: res.RequiredUSD, Paid: p.AmountUSD}
		}

		if res.RequiredUSD.IsPositive() {
			if _, err := r.ledger.ApplyTx(ctx, tx, userID, ledger.Entry{
				Type:        ledger.TxTypeDeposit,
				AmountUSD:   p.AmountUSD,
				ReferenceID: "deposit:" + p.TxID,
				FromAddress: p.FromAddress,
				Description: fmt.Sprintf("USDT deposit for %s reservation", pkg.Name),
			}); err != nil {
				return err
			}
		}

		purchased, err = r.ledger.ApplyTx(ctx, tx, userID, ledger.Entry{
			Type:        ledger.TxTypePackagePurchase,
			AmountCID:   pkg.CIDAmount,
			AmountUSD:   pkg.PriceUSD.Neg(),
			ReferenceID: "reservation:" + res.ID.String(),
			Description: fmt.Sprintf("Purchased %s via reservation", pkg.Name),
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var txid *string
		if p.TxID != "" {
			txid = &p.TxID
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE reservations SET status = $2, payment_txid = $3, completed_at = $4
			WHERE id = $1
		`, res.ID, ReservationCompleted, txid, now); err != nil {
			return err
		}
		res.Status = ReservationCompleted
		res.PaymentTxID = txid
		res.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return purchased, &res, nil
}

// ExpireStale sweeps active reservations past their expiry into the
// expired terminal state and reports how many were swept.
func (r *Repository) ExpireStale(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reservations SET status = $1
		WHERE status = $2 AND expires_at <= now()
	`, ReservationExpired, ReservationActive)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
