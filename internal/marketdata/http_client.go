package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/observability"
)

// DefaultTimeout bounds one HTTP request.
const DefaultTimeout = 30 * time.Second

// HTTPClient implements Provider against a REST bars endpoint:
//
//	GET {base}/bars?symbol=AAPL&interval=1h&from=...&to=...&continuous=true
//
// returning {"bars": [{"date": [2024,3,4,14,30], "open": "1.0", ...}]}.
// Retries are left to RetryingProvider.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new market data HTTP client.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Provider = (*HTTPClient)(nil)

type barsResponse struct {
	Bars  []domain.PriceBar `json:"bars"`
	Error string            `json:"error,omitempty"`
}

// FetchBars implements Provider.
func (c *HTTPClient) FetchBars(ctx context.Context, symbol string, from, to time.Time, interval domain.BarInterval, continuous bool) ([]domain.PriceBar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	q.Set("continuous", strconv.FormatBool(continuous))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bars?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	observability.RecordProviderLatency(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, err
		}
		return nil, &domain.TransientProviderError{Symbol: symbol, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransientProviderError{Symbol: symbol, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", symbol, interval, ErrNoData)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &domain.TransientProviderError{
			Symbol: symbol,
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out barsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("provider error: %s", out.Error)
	}
	if len(out.Bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, interval, ErrNoData)
	}
	return out.Bars, nil
}
