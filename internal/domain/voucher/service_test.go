package voucher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

type storeStub struct {
	created      []*Voucher
	failuresLeft int
	redeemedCode string
	voucher      *Voucher
}

func (s *storeStub) Create(_ context.Context, v *Voucher) error {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return ErrCodeTaken
	}
	s.created = append(s.created, v)
	return nil
}

func (s *storeStub) GetByCode(context.Context, string) (*Voucher, error) {
	if s.voucher == nil {
		return nil, ErrVoucherNotFound
	}
	return s.voucher, nil
}

func (s *storeStub) Redeem(_ context.Context, code string, _ int64) (*Voucher, *ledger.Transaction, error) {
	s.redeemedCode = code
	if s.voucher == nil {
		return nil, nil, ErrVoucherNotFound
	}
	return s.voucher, &ledger.Transaction{}, nil
}

func (s *storeStub) ListUses(context.Context, int64) ([]Use, error) { return nil, nil }
func (s *storeStub) Stats(context.Context) (*Stats, error)          { return &Stats{}, nil }

type usersStub struct {
	banned bool
}

func (u *usersStub) RequireActiveUser(context.Context, int64) (*ledger.User, error) {
	if u.banned {
		return nil, ledger.ErrUserBanned
	}
	return &ledger.User{TelegramID: 1}, nil
}

func TestCreateValidatesAmounts(t *testing.T) {
	svc := NewService(&storeStub{}, &usersStub{})

	cases := []CreateParams{
		{CIDAmount: -1},
		{USDAmount: decimal.RequireFromString("-0.01")},
		{},
	}
	for i, p := range cases {
		if _, err := svc.Create(context.Background(), p); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("case %d: expected ErrInvalidAmount, got %v", i, err)
		}
	}
}

func TestCreateCustomCodeRules(t *testing.T) {
	store := &storeStub{}
	svc := NewService(store, &usersStub{})

	for _, bad := range []string{"ABC", "lower!case", "WAY-TOO-LONG-FOR-A-VOUCHER-CODE", "HAS SPACE"} {
		_, err := svc.Create(context.Background(), CreateParams{CIDAmount: 10, CustomCode: bad})
		if !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("code %q: expected ErrInvalidCode, got %v", bad, err)
		}
	}

	v, err := svc.Create(context.Background(), CreateParams{CIDAmount: 10, CustomCode: "  promo2024  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Code != "PROMO2024" {
		t.Fatalf("expected normalized code PROMO2024, got %q", v.Code)
	}
}

func TestCreateGeneratedCodeShape(t *testing.T) {
	store := &storeStub{}
	svc := NewService(store, &usersStub{})

	v, err := svc.Create(context.Background(), CreateParams{CIDAmount: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.Code) != 12 || !strings.HasPrefix(v.Code, "CID") {
		t.Fatalf("expected 12-char CID-prefixed code, got %q", v.Code)
	}
	for _, c := range v.Code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			t.Fatalf("code %q contains character outside charset", v.Code)
		}
	}
}

func TestCreateRetriesCollisions(t *testing.T) {
	store := &storeStub{failuresLeft: 2}
	svc := NewService(store, &usersStub{})

	if _, err := svc.Create(context.Background(), CreateParams{CIDAmount: 5}); err != nil {
		t.Fatalf("expected collision retries to succeed, got %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected exactly one stored voucher, got %d", len(store.created))
	}
}

func TestCreateBulkBounds(t *testing.T) {
	svc := NewService(&storeStub{}, &usersStub{})

	for _, count := range []int{0, -3, 101} {
		if _, err := svc.CreateBulk(context.Background(), count, CreateParams{CIDAmount: 1}, ""); !errors.Is(err, ErrInvalidBulkCount) {
			t.Fatalf("count %d: expected ErrInvalidBulkCount, got %v", count, err)
		}
	}

	store := &storeStub{}
	svc = NewService(store, &usersStub{})
	codes, err := svc.CreateBulk(context.Background(), 3, CreateParams{CIDAmount: 1}, "promo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(codes) != 3 {
		t.Fatalf("expected 3 codes, got %d", len(codes))
	}
	for _, code := range codes {
		if !strings.HasPrefix(code, "PROMO") {
			t.Fatalf("expected PROMO prefix, got %q", code)
		}
	}
}

func TestRedeemNormalizesCode(t *testing.T) {
	store := &storeStub{voucher: &Voucher{Code: "CIDABC123XYZ", CIDAmount: 10}}
	svc := NewService(store, &usersStub{})

	if _, _, err := svc.Redeem(context.Background(), "  cidabc123xyz  ", 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.redeemedCode != "CIDABC123XYZ" {
		t.Fatalf("expected normalized code, store saw %q", store.redeemedCode)
	}
}

func TestRedeemRejectsShortCode(t *testing.T) {
	svc := NewService(&storeStub{}, &usersStub{})
	if _, _, err := svc.Redeem(context.Background(), "abc", 42); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestRedeemRejectsBannedUser(t *testing.T) {
	store := &storeStub{voucher: &Voucher{Code: "CIDABC123XYZ"}}
	svc := NewService(store, &usersStub{banned: true})

	_, _, err := svc.Redeem(context.Background(), "CIDABC123XYZ", 42)
	if !errors.Is(err, ledger.ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
	if store.redeemedCode != "" {
		t.Fatal("banned user must not reach the store")
	}
}
