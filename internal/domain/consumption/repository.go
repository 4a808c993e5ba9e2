package consumption

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

const requestColumns = `id, user_id, installation_id, confirmation_id, status, cost_cid, error_message, created_at, completed_at`

type Repository struct {
	db     *sqlx.DB
	ledger *ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, ledger: ledgerRepo}
}

// CreateRequest opens a processing record before the issuance call, so
// every attempt leaves a trace even when the external service never
// answers.
func (r *Repository) CreateRequest(ctx context.Context, userID int64, installationID string, costCID int64) (*Request, error) {
	req := &Request{
		ID:             uuid.New(),
		UserID:         userID,
		InstallationID: installationID,
		Status:         StatusProcessing,
		CostCID:        costCID,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cid_requests (id, user_id, installation_id, status, cost_cid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.ID, req.UserID, req.InstallationID, req.Status, req.CostCID, req.CreatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// CompleteRequest debits the CID cost and stamps the confirmation id in one
// transaction. The request id doubles as the ledger correlation id, so the
// debit cannot apply twice for the same request.
func (r *Repository) CompleteRequest(ctx context.Context, req *Request, confirmationID string) (*ledger.Transaction, error) {
	var posted *ledger.Transaction
	err := r.ledger.RunInTx(ctx, func(tx *sqlx.Tx) error {
		t, err := r.ledger.ApplyTx(ctx, tx, req.UserID, ledger.Entry{
			Type:           ledger.TxTypeCIDConsumption,
			AmountCID:      -req.CostCID,
			ReferenceID:    "cid_request:" + req.ID.String(),
			InstallationID: req.InstallationID,
			ConfirmationID: confirmationID,
			Description:    "confirmation id issued",
		})
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE cid_requests
			SET status = $2, confirmation_id = $3, completed_at = now()
			WHERE id = $1 AND status = $4
		`, req.ID, StatusCompleted, confirmationID, StatusProcessing)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrRequestNotFound
		}
		posted = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// MarkFailed closes a processing request without touching balances. A
// confirmation id obtained before the failure is kept on the row for
// manual reconciliation.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, message, confirmationID string) error {
	return r.markTerminal(ctx, id, StatusFailed, message, confirmationID)
}

// MarkInvalid closes a processing request whose installation id was
// rejected, by the format gate or by the issuer.
func (r *Repository) MarkInvalid(ctx context.Context, id uuid.UUID, message string) error {
	return r.markTerminal(ctx, id, StatusInvalidIID, message, "")
}

func (r *Repository) markTerminal(ctx context.Context, id uuid.UUID, status Status, message, confirmationID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cid_requests
		SET status = $2,
			error_message = NULLIF($3, ''),
			confirmation_id = COALESCE(NULLIF($4, ''), confirmation_id),
			completed_at = now()
		WHERE id = $1 AND status = $5
	`, id, status, message, confirmationID, StatusProcessing)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (r *Repository) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	var req Request
	err := r.db.GetContext(ctx, &req, fmt.Sprintf(`SELECT %s FROM cid_requests WHERE id = $1`, requestColumns), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64, p ledger.Pagination) ([]Request, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	requests := make([]Request, 0)
	err := r.db.SelectContext(ctx, &requests, fmt.Sprintf(`
		SELECT %s FROM cid_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, requestColumns), userID, limit, p.Offset)
	return requests, err
}

// UserStats counts request outcomes and the CID ever credited to the user.
func (r *Repository) UserStats(ctx context.Context, userID int64) (*UserStats, error) {
	var s UserStats
	err := r.db.GetContext(ctx, &s, `
		SELECT
			COUNT(*) FILTER (WHERE status = $2) AS completed_requests,
			COUNT(*) FILTER (WHERE status IN ($3, $4)) AS failed_requests,
			(SELECT COALESCE(SUM(amount_cid), 0) FROM transactions
			 WHERE user_id = $1 AND status = $5 AND amount_cid > 0) AS total_purchased
		FROM cid_requests
		WHERE user_id = $1
	`, userID, StatusCompleted, StatusFailed, StatusInvalidIID, ledger.TxStatusCompleted)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
