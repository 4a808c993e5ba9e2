package deposit

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/purchase"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/tronscan"
)

const (
	testWallet   = "TDepositWallet11111111111111111111"
	testContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	testTxID     = "c3a1f96e6a59f2f1f4a06a1a19a1ce7a9b3c3d1e2f1a2b3c4d5e6f70819aabb0"
)

type explorerStub struct {
	tx         *tronscan.TransactionInfo
	txErr      error
	latest     int64
	getCalls   int
	blockCalls int
}

func (e *explorerStub) GetTransaction(context.Context, string) (*tronscan.TransactionInfo, error) {
	e.getCalls++
	if e.txErr != nil {
		return nil, e.txErr
	}
	return e.tx, nil
}

func (e *explorerStub) LatestBlock(context.Context) (int64, error) {
	e.blockCalls++
	return e.latest, nil
}

func (e *explorerStub) RecentTransfers(context.Context, string, string, int) ([]tronscan.TransferEvent, error) {
	return nil, nil
}

type ledgerStub struct {
	used    map[string]bool
	applied []ledger.Entry
}

func (l *ledgerStub) IsReferenceUsed(_ context.Context, ref string) (bool, error) {
	return l.used[ref], nil
}

func (l *ledgerStub) Apply(_ context.Context, _ int64, e ledger.Entry) (*ledger.Transaction, error) {
	if l.used[e.ReferenceID] {
		return nil, ledger.ErrDuplicateReference
	}
	if l.used == nil {
		l.used = map[string]bool{}
	}
	l.used[e.ReferenceID] = true
	l.applied = append(l.applied, e)
	return &ledger.Transaction{Type: e.Type, AmountUSD: e.AmountUSD}, nil
}

type reservationsStub struct {
	active      *purchase.Reservation
	completed   []purchase.Payment
	completeErr error
}

func (r *reservationsStub) ActiveReservation(context.Context, int64) (*purchase.Reservation, error) {
	if r.active == nil {
		return nil, purchase.ErrNoActiveReservation
	}
	return r.active, nil
}

func (r *reservationsStub) CompleteReservation(_ context.Context, _ int64, p purchase.Payment) (*ledger.Transaction, *purchase.Reservation, error) {
	if r.completeErr != nil {
		return nil, nil, r.completeErr
	}
	r.completed = append(r.completed, p)
	done := *r.active
	done.Status = purchase.ReservationCompleted
	return &ledger.Transaction{Type: ledger.TxTypePackagePurchase}, &done, nil
}

type usersStub struct {
	banned bool
}

func (u *usersStub) RequireActiveUser(context.Context, int64) (*ledger.User, error) {
	if u.banned {
		return nil, ledger.ErrUserBanned
	}
	return &ledger.User{TelegramID: 10}, nil
}

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func confirmedTx(quant string) *tronscan.TransactionInfo {
	return &tronscan.TransactionInfo{
		Hash:        testTxID,
		Confirmed:   true,
		BlockNumber: 100,
		Timestamp:   1716400000000,
		Transfers: []tronscan.TokenTransfer{{
			ContractAddress: testContract,
			FromAddress:     "TSenderAddr",
			ToAddress:       testWallet,
			AmountRaw:       quant,
		}},
	}
}

func defaultOpts() Options {
	return Options{
		WalletAddress:    testWallet,
		USDTContract:     testContract,
		MinConfirmations: 19,
		MinDepositUSD:    usd("5.00"),
	}
}

func TestVerifyValidPaymentMutatesNothing(t *testing.T) {
	explorer := &explorerStub{tx: confirmedTx("25000000"), latest: 120}
	store := &ledgerStub{}
	svc := NewService(explorer, store, &reservationsStub{}, &usersStub{}, nil, defaultOpts())

	payment, err := svc.Verify(context.Background(), testTxID)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !payment.AmountUSD.Equal(usd("25")) {
		t.Errorf("expected 25 USD, got %s", payment.AmountUSD)
	}
	if payment.Confirmations != 20 {
		t.Errorf("expected 20 confirmations, got %d", payment.Confirmations)
	}
	if payment.FromAddress != "TSenderAddr" {
		t.Errorf("unexpected from address: %s", payment.FromAddress)
	}
	if len(store.applied) != 0 {
		t.Error("verify must not post ledger entries")
	}
}

func TestVerifyReplayShortCircuitsExplorer(t *testing.T) {
	explorer := &explorerStub{tx: confirmedTx("25000000"), latest: 120}
	store := &ledgerStub{used: map[string]bool{"deposit:" + testTxID: true}}
	svc := NewService(explorer, store, &reservationsStub{}, &usersStub{}, nil, defaultOpts())

	_, err := svc.Verify(context.Background(), testTxID)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if explorer.getCalls != 0 {
		t.Errorf("replayed txid must not reach the explorer, got %d calls", explorer.getCalls)
	}
}

func TestVerifyConfirmationRules(t *testing.T) {
	unconfirmed := confirmedTx("25000000")
	unconfirmed.Confirmed = false
	svc := NewService(&explorerStub{tx: unconfirmed, latest: 120}, &ledgerStub{}, &reservationsStub{}, &usersStub{}, nil, defaultOpts())
	if _, err := svc.Verify(context.Background(), testTxID); !errors.Is(err, ErrUnconfirmed) {
		t.Fatalf("expected ErrUnconfirmed for unconfirmed tx, got %v", err)
	}

	// Confirmed but too shallow: 5 blocks against a threshold of 19.
	shallow := confirmedTx("25000000")
	shallow.BlockNumber = 115
	svc = NewService(&explorerStub{tx: shallow, latest: 120}, &ledgerStub{}, &reservationsStub{}, &usersStub{}, nil, defaultOpts())
	if _, err := svc.Verify(context.Background(), testTxID); !errors.Is(err, ErrUnconfirmed) {
		t.Fatalf("expected ErrUnconfirmed for shallow tx, got %v", err)
	}
}

func TestVerifyTransferMatching(t *testing.T) {
	otherAsset := confirmedTx("25000000")
	otherAsset.Transfers[0].ContractAddress = "TSomeOtherToken1111111111111111111"
	svc := NewService(&explorerStub{tx: otherAsset, latest: 120}, &ledgerStub{}, &reservationsStub{}, &usersStub{}, nil, defaultOpts())
	if _, err := svc.Verify(context.Background(), testTxID); !errors.Is(err, ErrWrongAsset) {
		t.Fatalf("expected ErrWrongAsset, got %v", err)
	}

	wrongWallet := confirmedTx("25000000")
	wrongWallet.Transfers[0].ToAddress = "TSomeoneElsesWallet111111111111111"
	svc = NewService(&explorerStub{tx: wrongWallet, latest: 120}, &ledgerStub{}, &reservationsStub{}, &usersStub{}, nil, defaultOpts())
	if _, err := svc.Verify(context.Background(), testTxID); !errors.Is(err, ErrWrongRecipient) {
		t.Fatalf("expected ErrWrongRecipient, got %v", err)
	}

	missing := &tronscan.TransactionInfo{Hash: testTxID, Confirmed: true, BlockNumber: 100}
	svc = NewService(&explorerStub{tx: missing, latest: 120}, &ledgerStub{}, &reservationsStub{}, &usersStub{}, nil, defaultOpts())
	if _, err := svc.Verify(context.Background(), testTxID); !errors.Is(err, ErrWrongAsset) {
		t.Fatalf("expected ErrWrongAsset for empty transfer list, got %v", err)
	}
}

func TestVerifyBelowMinimum(t *testing.T) {
	svc := NewService(&explorerStub{tx: confirmedTx("1000000"), latest: 120}, &ledgerStub{}, &reservationsStub{}, &usersStub{}, nil, defaultOpts())
	if _, err := svc.Verify(context.Background(), testTxID); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum for 1.00, got %v", err)
	}

	// Exactly the minimum passes.
	svc = NewService(&explorerStub{tx: confirmedTx("5000000"), latest: 120}, &ledgerStub{}, &reservationsStub{}, &usersStub{}, nil, defaultOpts())
	if _, err := svc.Verify(context.Background(), testTxID); err != nil {
		t.Fatalf("expected 5.00 deposit to pass, got %v", err)
	}
}

func TestVerifyNotFound(t *testing.T) {
	svc := NewService(&explorerStub{txErr: tronscan.ErrTransactionNotFound}, &ledgerStub{}, &reservationsStub{}, &usersStub{}, nil, defaultOpts())
	if _, err := svc.Verify(context.Background(), testTxID); !errors.Is(err, ErrTxNotFound) {
		t.Fatalf("expected ErrTxNotFound, got %v", err)
	}
}

func TestProcessCreditsExactlyOnce(t *testing.T) {
	explorer := &explorerStub{tx: confirmedTx("25000000"), latest: 120}
	store := &ledgerStub{}
	svc := NewService(explorer, store, &reservationsStub{}, &usersStub{}, nil, defaultOpts())

	outcome, err := svc.Process(context.Background(), 10, testTxID)
	if err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	if outcome.Reservation != nil {
		t.Error("plain deposit must not settle a reservation")
	}
	if len(store.applied) != 1 {
		t.Fatalf("expected one posting, got %d", len(store.applied))
	}
	if store.applied[0].ReferenceID != "deposit:"+testTxID {
		t.Errorf("unexpected reference id: %s", store.applied[0].ReferenceID)
	}

	_, err = svc.Process(context.Background(), 10, testTxID)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on resubmit, got %v", err)
	}
	if len(store.applied) != 1 {
		t.Fatalf("resubmit must not credit again, got %d postings", len(store.applied))
	}
	if explorer.getCalls != 1 {
		t.Errorf("resubmit must not reach the explorer, got %d calls", explorer.getCalls)
	}
}

func TestProcessSettlesMatchingReservation(t *testing.T) {
	reservations := &reservationsStub{active: &purchase.Reservation{UserID: 10, PackageID: 1, RequiredUSD: usd("25.00"), Status: purchase.ReservationActive}}
	store := &ledgerStub{}
	svc := NewService(&explorerStub{tx: confirmedTx("25000000"), latest: 120}, store, reservations, &usersStub{}, nil, defaultOpts())

	outcome, err := svc.Process(context.Background(), 10, testTxID)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome.Reservation == nil || outcome.Reservation.Status != purchase.ReservationCompleted {
		t.Fatalf("expected settled reservation, got %+v", outcome.Reservation)
	}
	if len(reservations.completed) != 1 || reservations.completed[0].TxID != testTxID {
		t.Fatalf("expected reservation completion with txid, got %+v", reservations.completed)
	}
	if len(store.applied) != 0 {
		t.Error("reservation settlement must not also post a plain deposit")
	}
}

func TestProcessToleranceBoundary(t *testing.T) {
	// Required 25.01, paid 25.00: inside the one-cent tolerance.
	reservations := &reservationsStub{active: &purchase.Reservation{UserID: 10, PackageID: 1, RequiredUSD: usd("25.01"), Status: purchase.ReservationActive}}
	svc := NewService(&explorerStub{tx: confirmedTx("25000000"), latest: 120}, &ledgerStub{}, reservations, &usersStub{}, nil, defaultOpts())

	outcome, err := svc.Process(context.Background(), 10, testTxID)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome.Reservation == nil {
		t.Fatal("expected payment within tolerance to settle the reservation")
	}
}

func TestProcessMismatchFallsBackToPlainDeposit(t *testing.T) {
	reservations := &reservationsStub{active: &purchase.Reservation{UserID: 10, PackageID: 1, RequiredUSD: usd("30.00"), Status: purchase.ReservationActive}}
	store := &ledgerStub{}
	svc := NewService(&explorerStub{tx: confirmedTx("25000000"), latest: 120}, store, reservations, &usersStub{}, nil, defaultOpts())

	outcome, err := svc.Process(context.Background(), 10, testTxID)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if outcome.Reservation != nil {
		t.Error("mismatched payment must not settle the reservation")
	}
	if len(reservations.completed) != 0 {
		t.Error("mismatched payment must not call reservation completion")
	}
	if len(store.applied) != 1 {
		t.Fatalf("expected plain deposit posting, got %d", len(store.applied))
	}
}

func TestProcessRejectsBannedUserBeforeExplorer(t *testing.T) {
	explorer := &explorerStub{tx: confirmedTx("25000000"), latest: 120}
	svc := NewService(explorer, &ledgerStub{}, &reservationsStub{}, &usersStub{banned: true}, nil, defaultOpts())

	if _, err := svc.Process(context.Background(), 10, testTxID); !errors.Is(err, ledger.ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
	if explorer.getCalls != 0 {
		t.Errorf("banned user must not trigger explorer calls, got %d", explorer.getCalls)
	}
}
