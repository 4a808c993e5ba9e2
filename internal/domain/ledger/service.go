package ledger

import (
	"context"

	"github.com/rs/zerolog/log"
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Sync upserts the user on contact so every other engine can assume the
// account row exists.
func (s *Service) Sync(ctx context.Context, telegramID int64, username, firstName, lastName string) (*User, error) {
	u, err := s.repo.EnsureUser(ctx, telegramID, username, firstName, lastName)
	if err != nil {
		return nil, err
	}
	log.Debug().Int64("telegram_id", telegramID).Msg("user synced")
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	return s.repo.GetUser(ctx, telegramID)
}

// RequireActiveUser loads a user and rejects banned accounts. Engines call
// this before any balance-changing operation.
func (s *Service) RequireActiveUser(ctx context.Context, telegramID int64) (*User, error) {
	u, err := s.repo.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if u.IsBanned {
		return nil, ErrUserBanned
	}
	return u, nil
}

func (s *Service) GetBalance(ctx context.Context, telegramID int64) (Balance, error) {
	return s.repo.GetBalance(ctx, telegramID)
}

func (s *Service) History(ctx context.Context, telegramID int64, p Pagination) ([]Transaction, error) {
	if _, err := s.repo.GetUser(ctx, telegramID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, telegramID, p)
}

func (s *Service) Search(ctx context.Context, f SearchFilters) ([]Transaction, error) {
	return s.repo.Search(ctx, f)
}

// CheckConsistency verifies that the stored balances equal the sum of
// completed transaction deltas.
func (s *Service) CheckConsistency(ctx context.Context, telegramID int64) (*ConsistencyReport, error) {
	stored, err := s.repo.GetBalance(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	derived, err := s.repo.SumCompletedDeltas(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	report := &ConsistencyReport{
		TelegramID: telegramID,
		StoredCID:  stored.CID,
		StoredUSD:  stored.USD,
		DerivedCID: derived.CID,
		DerivedUSD: derived.USD,
		Consistent: stored.CID == derived.CID && stored.USD.Equal(derived.USD),
	}
	if !report.Consistent {
		log.Error().
			Int64("telegram_id", telegramID).
			Int64("stored_cid", stored.CID).
			Int64("derived_cid", derived.CID).
			Str("stored_usd", stored.USD.String()).
			Str("derived_usd", derived.USD.String()).
			Msg("ledger balance mismatch")
	}
	return report, nil
}
