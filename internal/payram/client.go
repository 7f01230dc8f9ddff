// Package payram is a client for PayRam payment verification. Its answers
// are advisory: callers treat any failure as "no opinion".
package payram

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/vaultpay/backend/internal/config"
)

const verifyPath = "/api/v1/payments/verify"

var ErrNotConfigured = errors.New("payram client not configured")

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type VerifyRequest struct {
	MerchantID string `json:"merchantId"`
	TxHash     string `json:"txHash"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Network    string `json:"network"`
}

type Verification struct {
	Verified bool   `json:"verified"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewClient(cfg config.PayRamConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// VerifyPayment asks PayRam whether txHash settles the given merchant payment.
func (c *Client) VerifyPayment(ctx context.Context, req VerifyRequest) (*Verification, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if req.Network == "" {
		req.Network = "solana"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+verifyPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("API-Key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "payram request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && (apiErr.Error != "" || apiErr.Message != "") {
			return nil, errors.Errorf("payram API error (%d): %s%s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return nil, errors.Errorf("payram API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var v Verification
	if err := json.Unmarshal(respBody, &v); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &v, nil
}
