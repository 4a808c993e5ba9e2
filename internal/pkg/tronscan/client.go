package tronscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUnavailable         = errors.New("tronscan api unavailable")
)

// Config holds Tronscan API configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a read-only Tronscan API client. It only answers questions;
// deposit crediting decisions stay with the caller.
type Client struct {
	httpClient *http.Client
	config     Config
}

// TransactionInfo is the subset of /transaction-info the deposit
// verifier needs.
type TransactionInfo struct {
	Hash        string          `json:"hash"`
	Confirmed   bool            `json:"confirmed"`
	BlockNumber int64           `json:"blockNumber"`
	Timestamp   int64           `json:"timestamp"`
	Transfers   []TokenTransfer `json:"trc20TransferInfo"`
}

// TokenTransfer is one TRC20 transfer inside a transaction. AmountRaw is
// the integer token quantity before decimal shifting.
type TokenTransfer struct {
	ContractAddress string `json:"contract_address"`
	FromAddress     string `json:"from_address"`
	ToAddress       string `json:"to_address"`
	AmountRaw       string `json:"quant"`
}

// TransferEvent is one row of the wallet transfer listing.
type TransferEvent struct {
	TransactionID string `json:"transaction_id"`
	FromAddress   string `json:"from_address"`
	ToAddress     string `json:"to_address"`
	AmountRaw     string `json:"quant"`
	BlockTs       int64  `json:"block_ts"`
	Confirmed     bool   `json:"confirmed"`
}

type systemStatus struct {
	Database struct {
		Block int64 `json:"block"`
	} `json:"database"`
}

type transferPage struct {
	TokenTransfers []TransferEvent `json:"token_transfers"`
}

// NewClient creates a Tronscan API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// GetTransaction fetches transaction detail by hash. A 200 response
// without a hash field means the explorer does not know the transaction.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*TransactionInfo, error) {
	if strings.TrimSpace(txid) == "" {
		return nil, ErrTransactionNotFound
	}

	body, err := c.get(ctx, "/transaction-info", url.Values{"hash": {txid}})
	if err != nil {
		return nil, err
	}

	var info TransactionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("tronscan response parse error: %w", err)
	}
	if info.Hash == "" {
		return nil, ErrTransactionNotFound
	}
	return &info, nil
}

// LatestBlock returns the explorer's current block height.
func (c *Client) LatestBlock(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/system/status", nil)
	if err != nil {
		return 0, err
	}

	var status systemStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return 0, fmt.Errorf("tronscan response parse error: %w", err)
	}
	return status.Database.Block, nil
}

// RecentTransfers lists the newest TRC20 transfers of the given token that
// touch the given wallet. Used by the admin reconciliation view.
func (c *Client) RecentTransfers(ctx context.Context, wallet, contract string, limit int) ([]TransferEvent, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	params := url.Values{
		"limit":            {strconv.Itoa(limit)},
		"start":            {"0"},
		"sort":             {"-timestamp"},
		"count":            {"true"},
		"filterTokenValue": {"1"},
		"relatedAddress":   {wallet},
		"contractAddress":  {contract},
	}
	body, err := c.get(ctx, "/token_trc20/transfers", params)
	if err != nil {
		return nil, err
	}

	var page transferPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("tronscan response parse error: %w", err)
	}
	return page.TokenTransfers, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("tronscan client is not initialized")
	}
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return nil, fmt.Errorf("tronscan config error: base_url is empty")
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("tronscan request error: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, resp.StatusCode, string(body))
	}
	return body, nil
}
