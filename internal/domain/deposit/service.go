package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/purchase"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/tronscan"
)

const (
	// USDT carries six decimal places on TRON.
	usdtDecimals = 6

	inflightKeyPrefix = "deposit:inflight:"
	inflightTTL       = 2 * time.Minute
)

// Explorer is the chain-explorer surface the verifier consumes.
type Explorer interface {
	GetTransaction(ctx context.Context, txid string) (*tronscan.TransactionInfo, error)
	LatestBlock(ctx context.Context) (int64, error)
	RecentTransfers(ctx context.Context, wallet, contract string, limit int) ([]tronscan.TransferEvent, error)
}

// Ledger is the slice of the ledger store the verifier needs: the replay
// check and the single crediting path.
type Ledger interface {
	IsReferenceUsed(ctx context.Context, referenceID string) (bool, error)
	Apply(ctx context.Context, userID int64, e ledger.Entry) (*ledger.Transaction, error)
}

// Reservations settles reservation-targeted payments.
type Reservations interface {
	ActiveReservation(ctx context.Context, userID int64) (*purchase.Reservation, error)
	CompleteReservation(ctx context.Context, userID int64, p purchase.Payment) (*ledger.Transaction, *purchase.Reservation, error)
}

// UserDirectory gates crediting on account standing.
type UserDirectory interface {
	RequireActiveUser(ctx context.Context, telegramID int64) (*ledger.User, error)
}

// Options hold the wallet, asset and acceptance thresholds.
type Options struct {
	WalletAddress    string
	USDTContract     string
	MinConfirmations int64
	MinDepositUSD    decimal.Decimal
	PaymentTolerance decimal.Decimal
}

type Service struct {
	explorer     Explorer
	ledger       Ledger
	reservations Reservations
	users        UserDirectory
	locks        *redis.Client
	opts         Options
}

func NewService(explorer Explorer, ledgerStore Ledger, reservations Reservations, users UserDirectory, locks *redis.Client, opts Options) *Service {
	if opts.MinConfirmations < 1 {
		opts.MinConfirmations = 1
	}
	if opts.PaymentTolerance.LessThanOrEqual(decimal.Zero) {
		opts.PaymentTolerance = decimal.RequireFromString("0.01")
	}
	return &Service{
		explorer:     explorer,
		ledger:       ledgerStore,
		reservations: reservations,
		users:        users,
		locks:        locks,
		opts:         opts,
	}
}

// Verify checks a chain transaction against the deposit rules and returns
// the payment it carries. It reads but never writes: the caller decides
// whether and how to credit.
func (s *Service) Verify(ctx context.Context, txid string) (*VerifiedPayment, error) {
	txid = strings.TrimSpace(txid)
	if txid == "" {
		return nil, ErrTxNotFound
	}

	// Replay check before any explorer traffic.
	used, err := s.ledger.IsReferenceUsed(ctx, "deposit:"+txid)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrAlreadyProcessed
	}

	info, err := s.explorer.GetTransaction(ctx, txid)
	if errors.Is(err, tronscan.ErrTransactionNotFound) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}
	if !info.Confirmed {
		return nil, fmt.Errorf("%w: awaiting first confirmation", ErrUnconfirmed)
	}

	latest, err := s.explorer.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	var confirmations int64
	if latest > 0 {
		confirmations = latest - info.BlockNumber
	}
	if confirmations < s.opts.MinConfirmations {
		return nil, fmt.Errorf("%w: %d/%d", ErrUnconfirmed, confirmations, s.opts.MinConfirmations)
	}

	transfer, err := s.matchTransfer(info.Transfers)
	if err != nil {
		return nil, err
	}

	amount, err := tokenAmount(transfer.AmountRaw)
	if err != nil {
		return nil, fmt.Errorf("unreadable transfer amount %q: %w", transfer.AmountRaw, err)
	}
	if amount.LessThan(s.opts.MinDepositUSD) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount.StringFixed(2), s.opts.MinDepositUSD.StringFixed(2))
	}

	return &VerifiedPayment{
		TxID:          txid,
		AmountUSD:     amount,
		FromAddress:   transfer.FromAddress,
		ToAddress:     transfer.ToAddress,
		Confirmations: confirmations,
		Timestamp:     info.Timestamp,
	}, nil
}

// Process verifies a payment and credits it. A payment matching the user's
// active reservation settles that reservation; anything else tops up the
// USD balance. The chain txid is the correlation id either way, so a given
// payment credits at most once.
func (s *Service) Process(ctx context.Context, userID int64, txid string) (*ProcessOutcome, error) {
	if _, err := s.users.RequireActiveUser(ctx, userID); err != nil {
		return nil, err
	}

	txid = strings.TrimSpace(txid)
	release, err := s.acquireInflight(ctx, txid)
	if err != nil {
		return nil, err
	}
	defer release()

	payment, err := s.Verify(ctx, txid)
	if err != nil {
		return nil, err
	}

	res, err := s.reservations.ActiveReservation(ctx, userID)
	if err != nil && !errors.Is(err, purchase.ErrNoActiveReservation) {
		return nil, err
	}
	if res != nil && payment.AmountUSD.Sub(res.RequiredUSD).Abs().LessThanOrEqual(s.opts.PaymentTolerance) {
		t, completed, err := s.reservations.CompleteReservation(ctx, userID, purchase.Payment{
			TxID:        payment.TxID,
			AmountUSD:   payment.AmountUSD,
			FromAddress: payment.FromAddress,
		})
		if err != nil {
			return nil, err
		}
		log.Info().
			Int64("telegram_id", userID).
			Str("txid", payment.TxID).
			Str("amount_usd", payment.AmountUSD.StringFixed(2)).
			Str("reservation_id", completed.ID.String()).
			Msg("deposit settled reservation")
		return &ProcessOutcome{Payment: payment, Transaction: t, Reservation: completed}, nil
	}

	t, err := s.ledger.Apply(ctx, userID, ledger.Entry{
		Type:        ledger.TxTypeDeposit,
		AmountUSD:   payment.AmountUSD,
		ReferenceID: "deposit:" + payment.TxID,
		FromAddress: payment.FromAddress,
		ToAddress:   payment.ToAddress,
		Description: fmt.Sprintf("USDT TRC20 deposit: %s USDT", payment.AmountUSD.StringFixed(2)),
	})
	if errors.Is(err, ledger.ErrDuplicateReference) {
		return nil, ErrAlreadyProcessed
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("telegram_id", userID).
		Str("txid", payment.TxID).
		Str("amount_usd", payment.AmountUSD.StringFixed(2)).
		Msg("deposit credited")
	return &ProcessOutcome{Payment: payment, Transaction: t}, nil
}

// RecentTransfers lists wallet inflows from the last hours for the admin
// reconciliation view.
func (s *Service) RecentTransfers(ctx context.Context, hours int) ([]Transfer, error) {
	if hours <= 0 {
		hours = 24
	}
	events, err := s.explorer.RecentTransfers(ctx, s.opts.WalletAddress, s.opts.USDTContract, 50)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour).UnixMilli()
	transfers := make([]Transfer, 0, len(events))
	for _, ev := range events {
		if ev.BlockTs <= cutoff {
			continue
		}
		amount, err := tokenAmount(ev.AmountRaw)
		if err != nil {
			log.Warn().Str("txid", ev.TransactionID).Str("quant", ev.AmountRaw).Msg("skipping transfer with unreadable amount")
			continue
		}
		transfers = append(transfers, Transfer{
			TxID:        ev.TransactionID,
			AmountUSD:   amount,
			FromAddress: ev.FromAddress,
			Timestamp:   ev.BlockTs,
			Confirmed:   ev.Confirmed,
		})
	}
	return transfers, nil
}

// DepositAddress returns the receiving wallet shown to users.
func (s *Service) DepositAddress() string {
	return s.opts.WalletAddress
}

func (s *Service) matchTransfer(transfers []tronscan.TokenTransfer) (*tronscan.TokenTransfer, error) {
	if len(transfers) == 0 {
		return nil, ErrWrongAsset
	}
	assetSeen := false
	for i := range transfers {
		t := &transfers[i]
		if t.ContractAddress != s.opts.USDTContract {
			continue
		}
		assetSeen = true
		if t.ToAddress == s.opts.WalletAddress {
			return t, nil
		}
	}
	if assetSeen {
		return nil, ErrWrongRecipient
	}
	return nil, ErrWrongAsset
}

// acquireInflight takes a short advisory lock on the txid so concurrent
// submits of the same payment do not both reach the explorer. Without
// redis the unique reference index still keeps crediting single-shot.
func (s *Service) acquireInflight(ctx context.Context, txid string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	key := inflightKeyPrefix + txid
	ok, err := s.locks.SetNX(ctx, key, "1", inflightTTL).Result()
	if err != nil {
		log.Warn().Err(err).Msg("deposit lock unavailable, relying on reference index")
		return func() {}, nil
	}
	if !ok {
		return nil, ErrVerificationInFlight
	}
	return func() { s.locks.Del(context.Background(), key) }, nil
}

func tokenAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-usdtDecimals), nil
}
