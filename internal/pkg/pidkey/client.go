package pidkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 120 * time.Second
	userAgent      = "Advanced-CID-Bot/1.0"

	// Anything shorter cannot be a confirmation id.
	minConfirmationLen = 10
)

var (
	// ErrInvalidInstallationID means the issuer rejected the installation
	// id itself. The request must not be retried with the same id.
	ErrInvalidInstallationID = errors.New("installation id rejected by issuer")

	ErrUnauthorized       = errors.New("pidkey api key rejected")
	ErrRateLimited        = errors.New("pidkey rate limit exceeded")
	ErrUnavailable        = errors.New("pidkey service unavailable")
	ErrExecutionFailed    = errors.New("pidkey execution error")
	ErrUnexpectedResponse = errors.New("pidkey returned an unexpected response")
)

// Config holds CIDMS API configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the CIDMS endpoint on pidkey.com. Issuing a
// confirmation id can take well over a minute, so the timeout default
// is generous.
type Client struct {
	httpClient *http.Client
	config     Config
}

// The endpoint replies with JSON on some paths and raw text on others,
// and spells its error fields two different ways.
type apiResponse struct {
	Result            string `json:"result"`
	ConfirmationID    string `json:"confirmationid"`
	ErrorExecuting    string `json:"errorexecuting"`
	ErrorExecutingAlt string `json:"error_executing"`
	HadOccurred       int    `json:"hadoccurred"`
	HadOccurredAlt    int    `json:"had_occurred"`
}

func (r *apiResponse) executionError() string {
	if r.ErrorExecuting != "" {
		return r.ErrorExecuting
	}
	if r.ErrorExecutingAlt != "" {
		return r.ErrorExecutingAlt
	}
	if r.HadOccurred != 0 || r.HadOccurredAlt != 0 {
		return "unknown error occurred"
	}
	return ""
}

// NewClient creates a CIDMS API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// IssueConfirmationID exchanges a normalized 63-digit installation id for
// a confirmation id. Callers decide what to charge; this method only
// performs and classifies the exchange.
func (c *Client) IssueConfirmationID(ctx context.Context, installationID string) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", fmt.Errorf("pidkey client is not initialized")
	}
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return "", fmt.Errorf("pidkey config error: base_url is empty")
	}

	params := url.Values{
		"iids":         {installationID},
		"justforcheck": {"0"},
		"apikey":       {c.config.APIKey},
	}
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/ajax/cidms_api?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("pidkey request error: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	body := strings.TrimSpace(string(raw))

	switch resp.StatusCode {
	case http.StatusOK:
		return parseBody(body)
	case http.StatusBadRequest, http.StatusForbidden:
		return "", fmt.Errorf("%w: status=%d", ErrInvalidInstallationID, resp.StatusCode)
	case http.StatusUnauthorized:
		return "", ErrUnauthorized
	case http.StatusTooManyRequests:
		return "", ErrRateLimited
	case http.StatusServiceUnavailable:
		return "", fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status=%d body=%s", ErrUnexpectedResponse, resp.StatusCode, truncate(body, 200))
	}
}

// parseBody handles the three shapes a 200 can take: a JSON object, an
// error message in plain text, or the bare confirmation id.
func parseBody(body string) (string, error) {
	if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") {
		var parsed apiResponse
		if err := json.Unmarshal([]byte(body), &parsed); err == nil {
			if parsed.Result == "Successfully" && parsed.ConfirmationID != "" {
				return parsed.ConfirmationID, nil
			}
			if msg := parsed.executionError(); msg != "" {
				return "", fmt.Errorf("%w: %s", ErrExecutionFailed, msg)
			}
			return "", fmt.Errorf("%w: %s", ErrUnexpectedResponse, truncate(body, 200))
		}
		// Looked like JSON but did not parse; fall through to text handling.
	}
	return classifyText(body)
}

func classifyText(body string) (string, error) {
	lower := strings.ToLower(body)
	for _, marker := range []string{"invalid", "failed", "blocked", "banned"} {
		if strings.Contains(lower, marker) {
			return "", fmt.Errorf("%w: %s", ErrInvalidInstallationID, truncate(body, 200))
		}
	}
	if len(body) < minConfirmationLen {
		return "", fmt.Errorf("%w: short body %q", ErrUnexpectedResponse, body)
	}
	return body, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
