package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RelayClient submits signed transactions to the settlement relay and
// normalizes its responses. It is a thin HTTP wrapper: every policy decision
// lives in the verifier that calls it.
type RelayClient struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// SettleRequest is the relay's wire format for a settlement submission.
type SettleRequest struct {
	Transaction string `json:"transaction"`
	Sponsored   bool   `json:"sponsored"`
	Network     string `json:"network"`
	Asset       string `json:"asset"`
	PayTo       string `json:"payTo"`
	Amount      string `json:"amount"`
}

// SettleResponse is the relay's normalized settlement result.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Txid        string `json:"txid,omitempty"`
}

type RelayConfig struct {
	// URL is the base URL of the relay service.
	URL string
	// Timeout bounds a single settlement call. A settlement that exceeds it
	// must not be resubmitted blindly; callers fall back to recovery.
	Timeout time.Duration
	// MaxSettlesPerSecond caps outbound submissions.
	MaxSettlesPerSecond float64
	// HTTPClient overrides the default client (used in tests).
	HTTPClient *http.Client
}

func NewRelayClient(cfg RelayConfig) *RelayClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := cfg.MaxSettlesPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &RelayClient{
		url:        cfg.URL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Settle submits the transaction and returns the relay's verdict. A non-2xx
// relay status or an undecodable body is an error distinct from a decoded
// "success: false" verdict, which is returned to the caller to classify.
func (c *RelayClient) Settle(ctx context.Context, req SettleRequest) (*SettleResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create settle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("settle request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read settle response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay settle failed (%d): %s", resp.StatusCode, string(responseBody))
	}

	var settleResponse SettleResponse
	if err := json.Unmarshal(responseBody, &settleResponse); err != nil {
		return nil, fmt.Errorf("failed to decode settle response: %w", err)
	}
	return &settleResponse, nil
}
