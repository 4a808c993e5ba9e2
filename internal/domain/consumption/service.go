package consumption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/pidkey"
)

const (
	inflightKeyPrefix = "cid:inflight:"

	// The issuance call can run for two minutes; the lock must outlive it.
	inflightTTL = 3 * time.Minute
)

// Issuer is the key-issuance surface.
type Issuer interface {
	IssueConfirmationID(ctx context.Context, installationID string) (string, error)
}

// Store is the persistence surface the service depends on.
type Store interface {
	CreateRequest(ctx context.Context, userID int64, installationID string, costCID int64) (*Request, error)
	CompleteRequest(ctx context.Context, req *Request, confirmationID string) (*ledger.Transaction, error)
	MarkFailed(ctx context.Context, id uuid.UUID, message, confirmationID string) error
	MarkInvalid(ctx context.Context, id uuid.UUID, message string) error
	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)
	ListByUser(ctx context.Context, userID int64, p ledger.Pagination) ([]Request, error)
	UserStats(ctx context.Context, userID int64) (*UserStats, error)
}

// UserDirectory gates issuance on account standing and balance.
type UserDirectory interface {
	RequireActiveUser(ctx context.Context, telegramID int64) (*ledger.User, error)
}

// Options carries issuance policy knobs.
type Options struct {
	// CostCID is debited per issued confirmation id. Zero means 1.
	CostCID int64
}

type Service struct {
	store  Store
	issuer Issuer
	users  UserDirectory
	locks  *redis.Client
	cost   int64
}

func NewService(store Store, issuer Issuer, users UserDirectory, locks *redis.Client, opts Options) *Service {
	cost := opts.CostCID
	if cost < 1 {
		cost = 1
	}
	return &Service{store: store, issuer: issuer, users: users, locks: locks, cost: cost}
}

// Request exchanges the request cost in CID units for a confirmation id.
// The balance is checked before the issuance call and debited only after it
// succeeds, so a failed call never costs a unit and a free key is never
// handed out. The one loss mode left is a debit that fails after issuance;
// the key is then kept on the failed request row and flagged for manual
// reconciliation.
func (s *Service) Request(ctx context.Context, userID int64, rawInstallationID string) (*Result, error) {
	user, err := s.users.RequireActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.BalanceCID < s.cost {
		return nil, ledger.ErrInsufficientCID
	}

	release, err := s.acquireInflight(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	installationID, invalidErr := NormalizeInstallationID(rawInstallationID)

	req, err := s.store.CreateRequest(ctx, userID, installationID, s.cost)
	if err != nil {
		return nil, err
	}

	if invalidErr != nil {
		s.closeRequest(req, StatusInvalidIID, invalidErr, "")
		return nil, invalidErr
	}

	confirmationID, err := s.issuer.IssueConfirmationID(ctx, installationID)
	if err != nil {
		status := StatusFailed
		if errors.Is(err, pidkey.ErrInvalidInstallationID) || errors.Is(err, pidkey.ErrExecutionFailed) {
			status = StatusInvalidIID
		}
		s.closeRequest(req, status, err, "")
		return nil, err
	}

	posted, err := s.store.CompleteRequest(ctx, req, confirmationID)
	if err != nil {
		// The key is already issued and cannot be returned.
		log.Error().
			Err(err).
			Int64("telegram_id", userID).
			Str("request_id", req.ID.String()).
			Str("confirmation_id", confirmationID).
			Msg("confirmation id issued but settlement failed, reconcile by hand")
		s.closeRequest(req, StatusFailed, err, confirmationID)
		return nil, err
	}

	now := time.Now().UTC()
	req.Status = StatusCompleted
	req.ConfirmationID = &confirmationID
	req.CompletedAt = &now

	log.Info().
		Int64("telegram_id", userID).
		Str("request_id", req.ID.String()).
		Msg("confirmation id issued")
	return &Result{Request: req, ConfirmationID: confirmationID, Transaction: posted}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.store.GetRequest(ctx, id)
}

func (s *Service) History(ctx context.Context, userID int64, p ledger.Pagination) ([]Request, error) {
	return s.store.ListByUser(ctx, userID, p)
}

// Stats combines the request counters with the live CID balance.
func (s *Service) Stats(ctx context.Context, userID int64) (*UserStats, error) {
	user, err := s.users.RequireActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.UserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.BalanceCID = user.BalanceCID
	return stats, nil
}

// closeRequest records the terminal state with a fresh context, so a
// cancelled caller cannot leave the row stuck in processing.
func (s *Service) closeRequest(req *Request, status Status, cause error, confirmationID string) {
	ctx := context.Background()

	var err error
	if status == StatusInvalidIID {
		err = s.store.MarkInvalid(ctx, req.ID, cause.Error())
	} else {
		err = s.store.MarkFailed(ctx, req.ID, cause.Error(), confirmationID)
	}
	if err != nil {
		log.Warn().Err(err).Str("request_id", req.ID.String()).Msg("failed to close cid request")
	}
}

// acquireInflight limits a user to one issuance call at a time. A second
// concurrent request would pass the balance check against the same unit
// and burn an external issuance it cannot settle.
func (s *Service) acquireInflight(ctx context.Context, userID int64) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("%s%d", inflightKeyPrefix, userID)
	ok, err := s.locks.SetNX(ctx, key, "1", inflightTTL).Result()
	if err != nil {
		log.Warn().Err(err).Msg("cid request lock unavailable, relying on balance guard")
		return func() {}, nil
	}
	if !ok {
		return nil, ErrRequestInFlight
	}
	return func() { s.locks.Del(context.Background(), key) }, nil
}
