package tronscan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetTransaction_Found(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction-info" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("hash"); got != "abc123" {
			t.Errorf("expected hash=abc123, got %s", got)
		}
		if got := r.Header.Get("TRON-PRO-API-KEY"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"hash": "abc123",
			"confirmed": true,
			"blockNumber": 62000000,
			"timestamp": 1716400000000,
			"trc20TransferInfo": [
				{
					"contract_address": "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
					"from_address": "TSender111111111111111111111111111",
					"to_address": "TDeposit11111111111111111111111111",
					"quant": "25000000"
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "test-key", Timeout: 5 * time.Second})

	info, err := client.GetTransaction(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Confirmed {
		t.Error("expected confirmed transaction")
	}
	if info.BlockNumber != 62000000 {
		t.Errorf("expected block 62000000, got %d", info.BlockNumber)
	}
	if len(info.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(info.Transfers))
	}
	if info.Transfers[0].AmountRaw != "25000000" {
		t.Errorf("expected quant 25000000, got %s", info.Transfers[0].AmountRaw)
	}
}

func TestGetTransaction_EmptyBodyMeansNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.GetTransaction(context.Background(), "unknown-txid")
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestGetTransaction_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.GetTransaction(context.Background(), "abc123")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestLatestBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/system/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"database": {"block": 62000019, "confirmedBlock": 62000000}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	block, err := client.LatestBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block != 62000019 {
		t.Errorf("expected block 62000019, got %d", block)
	}
}

func TestRecentTransfers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token_trc20/transfers" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("relatedAddress"); got != "TDeposit11111111111111111111111111" {
			t.Errorf("unexpected relatedAddress: %s", got)
		}
		if got := q.Get("limit"); got != "10" {
			t.Errorf("expected limit=10, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"token_transfers": [
				{
					"transaction_id": "tx-1",
					"from_address": "TSender111111111111111111111111111",
					"to_address": "TDeposit11111111111111111111111111",
					"quant": "10000000",
					"block_ts": 1716400000000,
					"confirmed": true
				},
				{
					"transaction_id": "tx-2",
					"from_address": "TSender222222222222222222222222222",
					"to_address": "TDeposit11111111111111111111111111",
					"quant": "5000000",
					"block_ts": 1716390000000,
					"confirmed": false
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	transfers, err := client.RecentTransfers(context.Background(), "TDeposit11111111111111111111111111", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}
	if transfers[0].TransactionID != "tx-1" {
		t.Errorf("expected tx-1 first, got %s", transfers[0].TransactionID)
	}
}

func TestGetTransaction_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"hash":"abc123"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.GetTransaction(ctx, "abc123")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
