package admin

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

// Store is the persistence surface of the adjustment engine.
type Store interface {
	AdjustBalance(ctx context.Context, p AdjustParams) (*ledger.Transaction, *AuditLog, error)
	SetBanned(ctx context.Context, adminID, targetUserID int64, banned bool, reason string) (*AuditLog, error)
	ListLogs(ctx context.Context, p ledger.Pagination) ([]AuditLog, error)
}

// Directory resolves acting admins.
type Directory interface {
	GetUser(ctx context.Context, telegramID int64) (*ledger.User, error)
}

// Ledger exposes the read-side admin views over the transaction log.
type Ledger interface {
	Search(ctx context.Context, f ledger.SearchFilters) ([]ledger.Transaction, error)
	CheckConsistency(ctx context.Context, telegramID int64) (*ledger.ConsistencyReport, error)
}

type Service struct {
	store  Store
	users  Directory
	ledger Ledger
}

func NewService(store Store, users Directory, ledgerSvc Ledger) *Service {
	return &Service{store: store, users: users, ledger: ledgerSvc}
}

// RequireAdmin resolves the acting user and checks the admin flag. An
// unknown id is reported the same way as a non-admin one.
func (s *Service) RequireAdmin(ctx context.Context, adminID int64) (*ledger.User, error) {
	u, err := s.users.GetUser(ctx, adminID)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return nil, ErrNotAdmin
	}
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin {
		return nil, ErrNotAdmin
	}
	return u, nil
}

// Adjust applies a signed correction to the target's balances. Unlike the
// consumer paths it may drive balances negative; the audit log records the
// before and after values for every call.
func (s *Service) Adjust(ctx context.Context, p AdjustParams) (*ledger.Transaction, *AuditLog, error) {
	if _, err := s.RequireAdmin(ctx, p.AdminID); err != nil {
		return nil, nil, err
	}
	if p.CIDDelta == 0 && p.USDDelta.IsZero() {
		return nil, nil, ErrEmptyAdjustment
	}

	posted, entry, err := s.store.AdjustBalance(ctx, p)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Int64("admin_id", p.AdminID).
		Int64("telegram_id", p.TargetUserID).
		Int64("cid_delta", p.CIDDelta).
		Str("usd_delta", p.USDDelta.StringFixed(2)).
		Str("reason", p.Reason).
		Msg("admin balance adjustment")
	return posted, entry, nil
}

// SetBanned bans or unbans the target user.
func (s *Service) SetBanned(ctx context.Context, adminID, targetUserID int64, banned bool, reason string) (*AuditLog, error) {
	if _, err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	entry, err := s.store.SetBanned(ctx, adminID, targetUserID, banned, reason)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("admin_id", adminID).
		Int64("telegram_id", targetUserID).
		Bool("banned", banned).
		Str("reason", reason).
		Msg("ban flag changed")
	return entry, nil
}

// Logs lists audit entries newest first.
func (s *Service) Logs(ctx context.Context, adminID int64, p ledger.Pagination) ([]AuditLog, error) {
	if _, err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return s.store.ListLogs(ctx, p)
}

// SearchTransactions runs a filtered query over the transaction log.
func (s *Service) SearchTransactions(ctx context.Context, adminID int64, f ledger.SearchFilters) ([]ledger.Transaction, error) {
	if _, err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return s.ledger.Search(ctx, f)
}

// CheckConsistency recomputes the target's balances from completed
// transaction deltas and compares them with the stored values.
func (s *Service) CheckConsistency(ctx context.Context, adminID, targetUserID int64) (*ledger.ConsistencyReport, error) {
	if _, err := s.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return s.ledger.CheckConsistency(ctx, targetUserID)
}
