package consumption

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/pidkey"
)

var validIID = strings.Repeat("123456789", 7)

type storeStub struct {
	created     []*Request
	request     *Request
	completed   map[uuid.UUID]string
	completeErr error
	failed      map[uuid.UUID]string
	kept        map[uuid.UUID]string
	invalid     map[uuid.UUID]string
}

func (s *storeStub) CreateRequest(_ context.Context, userID int64, installationID string, costCID int64) (*Request, error) {
	req := &Request{
		ID:             uuid.New(),
		UserID:         userID,
		InstallationID: installationID,
		Status:         StatusProcessing,
		CostCID:        costCID,
		CreatedAt:      time.Now().UTC(),
	}
	s.created = append(s.created, req)
	return req, nil
}

func (s *storeStub) CompleteRequest(_ context.Context, req *Request, confirmationID string) (*ledger.Transaction, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	if s.completed == nil {
		s.completed = map[uuid.UUID]string{}
	}
	s.completed[req.ID] = confirmationID
	return &ledger.Transaction{Type: ledger.TxTypeCIDConsumption, AmountCID: -req.CostCID, Status: ledger.TxStatusCompleted}, nil
}

func (s *storeStub) MarkFailed(_ context.Context, id uuid.UUID, message, confirmationID string) error {
	if s.failed == nil {
		s.failed = map[uuid.UUID]string{}
	}
	s.failed[id] = message
	if confirmationID != "" {
		if s.kept == nil {
			s.kept = map[uuid.UUID]string{}
		}
		s.kept[id] = confirmationID
	}
	return nil
}

func (s *storeStub) MarkInvalid(_ context.Context, id uuid.UUID, message string) error {
	if s.invalid == nil {
		s.invalid = map[uuid.UUID]string{}
	}
	s.invalid[id] = message
	return nil
}

func (s *storeStub) GetRequest(context.Context, uuid.UUID) (*Request, error) {
	if s.request == nil {
		return nil, ErrRequestNotFound
	}
	return s.request, nil
}

func (s *storeStub) ListByUser(context.Context, int64, ledger.Pagination) ([]Request, error) {
	return nil, nil
}

func (s *storeStub) UserStats(context.Context, int64) (*UserStats, error) {
	return &UserStats{}, nil
}

type issuerStub struct {
	calls int
	got   string
	id    string
	err   error
}

func (i *issuerStub) IssueConfirmationID(_ context.Context, installationID string) (string, error) {
	i.calls++
	i.got = installationID
	if i.err != nil {
		return "", i.err
	}
	return i.id, nil
}

type usersStub struct {
	banned bool
	cid    int64
}

func (u *usersStub) RequireActiveUser(context.Context, int64) (*ledger.User, error) {
	if u.banned {
		return nil, ledger.ErrUserBanned
	}
	return &ledger.User{TelegramID: 10, BalanceCID: u.cid}, nil
}

func TestRequestZeroBalanceSkipsIssuer(t *testing.T) {
	store := &storeStub{}
	issuer := &issuerStub{id: "CONF-1"}
	svc := NewService(store, issuer, &usersStub{cid: 0}, nil, Options{})

	_, err := svc.Request(context.Background(), 10, validIID)
	if !errors.Is(err, ledger.ErrInsufficientCID) {
		t.Fatalf("expected ErrInsufficientCID, got %v", err)
	}
	if issuer.calls != 0 {
		t.Errorf("zero balance must not reach the issuer, got %d calls", issuer.calls)
	}
	if len(store.created) != 0 {
		t.Errorf("zero balance must not open a request, got %d", len(store.created))
	}
}

func TestRequestHonorsConfiguredCost(t *testing.T) {
	store := &storeStub{}
	issuer := &issuerStub{id: "CONF-5"}
	svc := NewService(store, issuer, &usersStub{cid: 3}, nil, Options{CostCID: 5})

	_, err := svc.Request(context.Background(), 10, validIID)
	if !errors.Is(err, ledger.ErrInsufficientCID) {
		t.Fatalf("balance below the configured cost must be rejected, got %v", err)
	}
	if issuer.calls != 0 {
		t.Errorf("expected zero issuer calls, got %d", issuer.calls)
	}

	svc = NewService(store, issuer, &usersStub{cid: 5}, nil, Options{CostCID: 5})
	result, err := svc.Request(context.Background(), 10, validIID)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if result.Request.CostCID != 5 {
		t.Errorf("expected cost 5 on the request row, got %d", result.Request.CostCID)
	}
}

func TestRequestRejectsBannedUser(t *testing.T) {
	issuer := &issuerStub{id: "CONF-1"}
	svc := NewService(&storeStub{}, issuer, &usersStub{banned: true, cid: 5}, nil, Options{})

	if _, err := svc.Request(context.Background(), 10, validIID); !errors.Is(err, ledger.ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
	if issuer.calls != 0 {
		t.Errorf("banned user must not reach the issuer, got %d calls", issuer.calls)
	}
}

func TestRequestMalformedIDSkipsIssuer(t *testing.T) {
	store := &storeStub{}
	issuer := &issuerStub{id: "CONF-1"}
	svc := NewService(store, issuer, &usersStub{cid: 5}, nil, Options{})

	_, err := svc.Request(context.Background(), 10, "12345")
	if !errors.Is(err, ErrInvalidInstallationID) {
		t.Fatalf("expected ErrInvalidInstallationID, got %v", err)
	}
	if issuer.calls != 0 {
		t.Errorf("malformed id must not reach the issuer, got %d calls", issuer.calls)
	}
	if len(store.created) != 1 {
		t.Fatalf("rejection must still leave a request row, got %d", len(store.created))
	}
	if _, ok := store.invalid[store.created[0].ID]; !ok {
		t.Error("expected request marked invalid")
	}
}

func TestRequestRejectsImplausibleZeros(t *testing.T) {
	issuer := &issuerStub{id: "CONF-1"}
	svc := NewService(&storeStub{}, issuer, &usersStub{cid: 5}, nil, Options{})

	id := "000000" + strings.Repeat("1", InstallationIDLength-6)
	if _, err := svc.Request(context.Background(), 10, id); !errors.Is(err, ErrInvalidInstallationID) {
		t.Fatalf("expected ErrInvalidInstallationID, got %v", err)
	}
	if issuer.calls != 0 {
		t.Errorf("expected zero issuer calls, got %d", issuer.calls)
	}
}

func TestRequestNormalizesBeforeIssuance(t *testing.T) {
	store := &storeStub{}
	issuer := &issuerStub{id: strings.Repeat("123456", 8)}
	svc := NewService(store, issuer, &usersStub{cid: 3}, nil, Options{})

	result, err := svc.Request(context.Background(), 10, FormatInstallationID(validIID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if issuer.got != validIID {
		t.Errorf("issuer must receive the undashed id, got %q", issuer.got)
	}
	if result.ConfirmationID != issuer.id {
		t.Errorf("unexpected confirmation id: %q", result.ConfirmationID)
	}
	if result.Request.Status != StatusCompleted {
		t.Errorf("expected completed request, got %s", result.Request.Status)
	}
	if got := store.completed[result.Request.ID]; got != issuer.id {
		t.Errorf("expected settlement with confirmation id, got %q", got)
	}
}

func TestRequestIssuerRejectionMarksInvalid(t *testing.T) {
	for _, cause := range []error{pidkey.ErrInvalidInstallationID, pidkey.ErrExecutionFailed} {
		store := &storeStub{}
		svc := NewService(store, &issuerStub{err: cause}, &usersStub{cid: 3}, nil, Options{})

		_, err := svc.Request(context.Background(), 10, validIID)
		if !errors.Is(err, cause) {
			t.Fatalf("expected %v, got %v", cause, err)
		}
		if len(store.created) != 1 {
			t.Fatalf("expected one request row, got %d", len(store.created))
		}
		if _, ok := store.invalid[store.created[0].ID]; !ok {
			t.Errorf("expected invalid status for %v", cause)
		}
		if len(store.completed) != 0 {
			t.Error("rejection must not settle the request")
		}
	}
}

func TestRequestIssuerOutageMarksFailed(t *testing.T) {
	store := &storeStub{}
	svc := NewService(store, &issuerStub{err: pidkey.ErrUnavailable}, &usersStub{cid: 3}, nil, Options{})

	_, err := svc.Request(context.Background(), 10, validIID)
	if !errors.Is(err, pidkey.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, ok := store.failed[store.created[0].ID]; !ok {
		t.Error("expected request marked failed")
	}
	if len(store.kept) != 0 {
		t.Error("no confirmation id exists to keep on an outage")
	}
}

func TestRequestKeepsConfirmationIDWhenDebitFails(t *testing.T) {
	store := &storeStub{completeErr: ledger.ErrInsufficientCID}
	issuer := &issuerStub{id: "CONF-KEEP"}
	svc := NewService(store, issuer, &usersStub{cid: 1}, nil, Options{})

	_, err := svc.Request(context.Background(), 10, validIID)
	if !errors.Is(err, ledger.ErrInsufficientCID) {
		t.Fatalf("expected debit failure to surface, got %v", err)
	}

	reqID := store.created[0].ID
	if got := store.kept[reqID]; got != issuer.id {
		t.Fatalf("issued confirmation id must be kept for reconciliation, got %q", got)
	}
	if _, ok := store.failed[reqID]; !ok {
		t.Error("expected request marked failed")
	}
}

func TestNormalizeInstallationID(t *testing.T) {
	dashed := FormatInstallationID(validIID)
	got, err := NormalizeInstallationID(dashed)
	if err != nil {
		t.Fatalf("dashed form rejected: %v", err)
	}
	if got != validIID {
		t.Errorf("expected %q, got %q", validIID, got)
	}

	spaced := strings.ReplaceAll(dashed, "-", " ")
	if got, err := NormalizeInstallationID(spaced); err != nil || got != validIID {
		t.Errorf("spaced form rejected: %v", err)
	}

	for _, bad := range []string{
		"12345",
		validIID + "9",
		"000000" + strings.Repeat("7", InstallationIDLength-6),
		"",
	} {
		if _, err := NormalizeInstallationID(bad); !errors.Is(err, ErrInvalidInstallationID) {
			t.Errorf("expected rejection for %q, got %v", bad, err)
		}
	}
}

func TestFormatInstallationID(t *testing.T) {
	formatted := FormatInstallationID(validIID)
	groups := strings.Split(formatted, "-")
	if len(groups) != 9 {
		t.Fatalf("expected 9 groups, got %d", len(groups))
	}
	for i, g := range groups {
		if len(g) != 7 {
			t.Errorf("group %d: expected 7 digits, got %q", i, g)
		}
	}

	// Anything else passes through untouched.
	if got := FormatInstallationID("1234"); got != "1234" {
		t.Errorf("short input must be untouched, got %q", got)
	}
}
