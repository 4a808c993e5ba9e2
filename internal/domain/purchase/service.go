package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/catalog"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

const defaultReservationTTL = 30 * time.Minute

// Store is the persistence surface the service depends on.
type Store interface {
	Purchase(ctx context.Context, userID int64, pkg *catalog.Package) (*ledger.Transaction, error)
	CreateReservation(ctx context.Context, res *Reservation) error
	GetActiveReservation(ctx context.Context, userID int64) (*Reservation, error)
	CompleteReservation(ctx context.Context, userID int64, pkg *catalog.Package, p Payment, tolerance decimal.Decimal) (*ledger.Transaction, *Reservation, error)
	ExpireStale(ctx context.Context) (int64, error)
}

// PackageCatalog resolves purchasable packages.
type PackageCatalog interface {
	Get(ctx context.Context, id int64) (*catalog.Package, error)
}

// UserDirectory gates purchases on account standing.
type UserDirectory interface {
	RequireActiveUser(ctx context.Context, telegramID int64) (*ledger.User, error)
}

// Options tune reservation behaviour.
type Options struct {
	ReservationTTL   time.Duration
	PaymentTolerance decimal.Decimal
}

type Service struct {
	store    Store
	packages PackageCatalog
	users    UserDirectory
	opts     Options
}

func NewService(store Store, packages PackageCatalog, users UserDirectory, opts Options) *Service {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = defaultReservationTTL
	}
	if opts.PaymentTolerance.LessThanOrEqual(decimal.Zero) {
		opts.PaymentTolerance = decimal.RequireFromString("0.01")
	}
	return &Service{store: store, packages: packages, users: users, opts: opts}
}

// Purchase buys a package straight from the user's USD balance.
func (s *Service) Purchase(ctx context.Context, userID, packageID int64) (*ledger.Transaction, error) {
	user, err := s.users.RequireActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.Get(ctx, packageID)
	if err != nil {
		return nil, err
	}

	if user.BalanceUSD.LessThan(pkg.PriceUSD) {
		return nil, &InsufficientBalanceError{Required: pkg.PriceUSD, Balance: user.BalanceUSD}
	}

	t, err := s.store.Purchase(ctx, userID, pkg)
	if errors.Is(err, ledger.ErrInsufficientUSD) {
		// Lost a race with another spend between the check and the posting.
		if fresh, ferr := s.users.RequireActiveUser(ctx, userID); ferr == nil {
			return nil, &InsufficientBalanceError{Required: pkg.PriceUSD, Balance: fresh.BalanceUSD}
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("telegram_id", userID).
		Int64("package_id", pkg.ID).
		Int64("cid", pkg.CIDAmount).
		Str("price_usd", pkg.PriceUSD.StringFixed(2)).
		Msg("package purchased")
	return t, nil
}

// Reserve binds the user to a package and quotes the exact top-up needed.
// Any previous active reservation is cancelled.
func (s *Service) Reserve(ctx context.Context, userID, packageID int64) (*ReserveOutcome, error) {
	user, err := s.users.RequireActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.Get(ctx, packageID)
	if err != nil {
		return nil, err
	}

	required := pkg.PriceUSD.Sub(user.BalanceUSD)
	if required.IsNegative() {
		required = decimal.Zero
	}

	now := time.Now().UTC()
	res := &Reservation{
		ID:          uuid.New(),
		UserID:      userID,
		PackageID:   pkg.ID,
		RequiredUSD: required,
		Status:      ReservationActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.ReservationTTL),
	}
	if err := s.store.CreateReservation(ctx, res); err != nil {
		return nil, err
	}

	log.Info().
		Int64("telegram_id", userID).
		Int64("package_id", pkg.ID).
		Str("required_usd", required.StringFixed(2)).
		Time("expires_at", res.ExpiresAt).
		Msg("package reserved")
	return &ReserveOutcome{Reservation: res, Package: pkg, BalanceUSD: user.BalanceUSD}, nil
}

// ActiveReservation returns the user's live reservation, if any.
func (s *Service) ActiveReservation(ctx context.Context, userID int64) (*Reservation, error) {
	if _, err := s.users.RequireActiveUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.GetActiveReservation(ctx, userID)
}

// CompleteReservation settles the user's active reservation with a verified
// payment. The payment must match the reserved amount within tolerance.
func (s *Service) CompleteReservation(ctx context.Context, userID int64, p Payment) (*ledger.Transaction, *Reservation, error) {
	if _, err := s.users.RequireActiveUser(ctx, userID); err != nil {
		return nil, nil, err
	}
	active, err := s.store.GetActiveReservation(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	pkg, err := s.packages.Get(ctx, active.PackageID)
	if err != nil {
		return nil, nil, err
	}

	t, res, err := s.store.CompleteReservation(ctx, userID, pkg, p, s.opts.PaymentTolerance)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Int64("telegram_id", userID).
		Str("reservation_id", res.ID.String()).
		Str("txid", p.TxID).
		Str("paid_usd", p.AmountUSD.StringFixed(2)).
		Msg("reservation completed")
	return t, res, nil
}

// ExpireStale is the periodic housekeeping pass over overdue reservations.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	count, err := s.store.ExpireStale(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Info().Int64("count", count).Msg("reservations expired")
	}
	return count, nil
}
