package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

type storeStub struct {
	adjusted  []AdjustParams
	banCalls  []bool
	banTarget int64
	logs      []AuditLog
}

func (s *storeStub) AdjustBalance(_ context.Context, p AdjustParams) (*ledger.Transaction, *AuditLog, error) {
	s.adjusted = append(s.adjusted, p)
	posted := &ledger.Transaction{Type: ledger.TxTypeAdminAdjust, AmountCID: p.CIDDelta, AmountUSD: p.USDDelta}
	return posted, newAuditLog(p.AdminID, ActionBalanceAdjustment, p.TargetUserID, "details"), nil
}

func (s *storeStub) SetBanned(_ context.Context, adminID, targetUserID int64, banned bool, reason string) (*AuditLog, error) {
	s.banCalls = append(s.banCalls, banned)
	s.banTarget = targetUserID
	action := ActionBanUser
	if !banned {
		action = ActionUnbanUser
	}
	return newAuditLog(adminID, action, targetUserID, reason), nil
}

func (s *storeStub) ListLogs(context.Context, ledger.Pagination) ([]AuditLog, error) {
	return s.logs, nil
}

type directoryStub struct {
	users map[int64]*ledger.User
}

func (d *directoryStub) GetUser(_ context.Context, id int64) (*ledger.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return u, nil
}

type ledgerStub struct {
	searched []ledger.SearchFilters
}

func (l *ledgerStub) Search(_ context.Context, f ledger.SearchFilters) ([]ledger.Transaction, error) {
	l.searched = append(l.searched, f)
	return nil, nil
}

func (l *ledgerStub) CheckConsistency(_ context.Context, telegramID int64) (*ledger.ConsistencyReport, error) {
	return &ledger.ConsistencyReport{TelegramID: telegramID, Consistent: true}, nil
}

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testDirectory() *directoryStub {
	return &directoryStub{users: map[int64]*ledger.User{
		1: {TelegramID: 1},
		2: {TelegramID: 2, IsAdmin: true},
	}}
}

func TestAdjustRequiresAdminFlag(t *testing.T) {
	store := &storeStub{}
	svc := NewService(store, testDirectory(), &ledgerStub{})

	_, _, err := svc.Adjust(context.Background(), AdjustParams{AdminID: 1, TargetUserID: 5, CIDDelta: 1, Reason: "r"})
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin for plain user, got %v", err)
	}

	_, _, err = svc.Adjust(context.Background(), AdjustParams{AdminID: 99, TargetUserID: 5, CIDDelta: 1, Reason: "r"})
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin for unknown admin, got %v", err)
	}

	if len(store.adjusted) != 0 {
		t.Errorf("rejected calls must not reach the store, got %d", len(store.adjusted))
	}
}

func TestAdjustRejectsEmptyDelta(t *testing.T) {
	store := &storeStub{}
	svc := NewService(store, testDirectory(), &ledgerStub{})

	_, _, err := svc.Adjust(context.Background(), AdjustParams{AdminID: 2, TargetUserID: 5, Reason: "noop"})
	if !errors.Is(err, ErrEmptyAdjustment) {
		t.Fatalf("expected ErrEmptyAdjustment, got %v", err)
	}
	if len(store.adjusted) != 0 {
		t.Error("empty adjustment must not reach the store")
	}
}

func TestAdjustForwardsSignedDeltas(t *testing.T) {
	store := &storeStub{}
	svc := NewService(store, testDirectory(), &ledgerStub{})

	params := AdjustParams{AdminID: 2, TargetUserID: 5, CIDDelta: -3, USDDelta: usd("1.50"), Reason: "refund correction"}
	posted, entry, err := svc.Adjust(context.Background(), params)
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if len(store.adjusted) != 1 || store.adjusted[0].CIDDelta != -3 || !store.adjusted[0].USDDelta.Equal(usd("1.50")) {
		t.Fatalf("unexpected stored params: %+v", store.adjusted)
	}
	if posted.AmountCID != -3 {
		t.Errorf("expected -3 cid posting, got %d", posted.AmountCID)
	}
	if entry.Action != ActionBalanceAdjustment {
		t.Errorf("unexpected audit action: %s", entry.Action)
	}
}

func TestSetBannedAuditsBothDirections(t *testing.T) {
	store := &storeStub{}
	svc := NewService(store, testDirectory(), &ledgerStub{})

	entry, err := svc.SetBanned(context.Background(), 2, 5, true, "abuse")
	if err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	if entry.Action != ActionBanUser {
		t.Errorf("expected ban_user action, got %s", entry.Action)
	}

	entry, err = svc.SetBanned(context.Background(), 2, 5, false, "appeal accepted")
	if err != nil {
		t.Fatalf("unban failed: %v", err)
	}
	if entry.Action != ActionUnbanUser {
		t.Errorf("expected unban_user action, got %s", entry.Action)
	}

	if len(store.banCalls) != 2 || store.banCalls[0] != true || store.banCalls[1] != false {
		t.Errorf("unexpected ban sequence: %v", store.banCalls)
	}
	if store.banTarget != 5 {
		t.Errorf("unexpected target: %d", store.banTarget)
	}
}

func TestReadViewsRequireAdmin(t *testing.T) {
	l := &ledgerStub{}
	svc := NewService(&storeStub{}, testDirectory(), l)

	if _, err := svc.Logs(context.Background(), 1, ledger.Pagination{}); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin on logs, got %v", err)
	}
	if _, err := svc.SearchTransactions(context.Background(), 1, ledger.SearchFilters{}); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin on search, got %v", err)
	}
	if len(l.searched) != 0 {
		t.Error("rejected search must not reach the ledger")
	}

	userID := int64(5)
	if _, err := svc.SearchTransactions(context.Background(), 2, ledger.SearchFilters{UserID: &userID}); err != nil {
		t.Fatalf("admin search failed: %v", err)
	}
	if len(l.searched) != 1 || l.searched[0].UserID == nil || *l.searched[0].UserID != 5 {
		t.Fatalf("filters not forwarded: %+v", l.searched)
	}

	report, err := svc.CheckConsistency(context.Background(), 2, 5)
	if err != nil {
		t.Fatalf("consistency check failed: %v", err)
	}
	if report.TelegramID != 5 {
		t.Errorf("unexpected report target: %d", report.TelegramID)
	}
}
