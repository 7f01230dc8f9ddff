package onmeta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/vaultpay/backend/internal/config"
)

var (
	ErrNotConfigured  = errors.New("onmeta client not configured")
	ErrOrderNotFound  = errors.New("onmeta order not found")
	errEmptyOrderData = errors.New("onmeta response has no order data")
)

// Client talks to a single configured OnMeta base URL.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type orderResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func NewClient(cfg config.OnMetaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
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

// FetchOrder returns the current state of orderID as an Event. Orders whose
// response carries only status use it as the event type.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Event, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "onmeta request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}

	var out orderResponse
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && (out.Error != "" || out.Message != "") {
			return nil, errors.Errorf("onmeta API error (%d): %s%s", resp.StatusCode, out.Error, out.Message)
		}
		return nil, errors.Errorf("onmeta API error (%d): %s", resp.StatusCode, string(body))
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "decode response")
	}
	if len(out.Data) == 0 || string(out.Data) == "null" {
		return nil, errEmptyOrderData
	}

	var shape struct {
		OrderID   Text      `json:"orderId"`
		EventType EventType `json:"eventType"`
		Status    Text      `json:"status"`
	}
	if err := json.Unmarshal(out.Data, &shape); err != nil {
		return nil, errors.Wrap(err, "decode order data")
	}

	data := out.Data
	if shape.EventType == "" || shape.OrderID == "" {
		var fields map[string]any
		if err := json.Unmarshal(out.Data, &fields); err != nil {
			return nil, errors.Wrap(err, "decode order data")
		}
		if shape.EventType == "" {
			fields["eventType"] = shape.Status.String()
		}
		if shape.OrderID == "" {
			fields["orderId"] = orderID
		}
		if data, err = json.Marshal(fields); err != nil {
			return nil, errors.Wrap(err, "encode order data")
		}
	}
	return ParseEvent(data)
}
