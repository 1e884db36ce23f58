package cmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"coinchart-api/pkg/market"
)

const (
	defaultBaseURL          = "https://pro-api.coinmarketcap.com/v3/cryptocurrency/quotes/historical"
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxRetries       = 2
	defaultRetryBackoffBase = 200 * time.Millisecond
	defaultCount            = 500
	quoteCurrency           = "USD"
)

// Client wraps access to the CoinMarketCap historical quotes endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default endpoint URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithAPIKey sets the X-CMC_PRO_API_KEY header value.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a CoinMarketCap API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// HistoricalQuotes fetches USD quotes for one asset over a window. Points
// come back sorted ascending by timestamp. Rate limiting, transport errors
// and malformed payloads map to the market error taxonomy so callers can
// fall back without inspecting provider internals.
func (c *Client) HistoricalQuotes(ctx context.Context, req market.QuoteRequest) ([]market.Quote, error) {
	if req.ID == "" {
		return nil, market.ErrAssetNotFound
	}
	count := req.Count
	if count <= 0 {
		count = defaultCount
	}

	params := url.Values{}
	params.Set("id", req.ID)
	params.Set("time_start", strconv.FormatInt(req.TimeStart.Unix(), 10))
	params.Set("time_end", strconv.FormatInt(req.TimeEnd.Unix(), 10))
	params.Set("interval", req.Interval)
	params.Set("count", strconv.Itoa(count))

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload historicalResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", market.ErrUnavailable, err)
	}
	if payload.Status.ErrorCode != 0 {
		return nil, statusError(payload.Status)
	}
	asset, ok := payload.Data[req.ID]
	if !ok {
		return nil, fmt.Errorf("%w: response missing id %s", market.ErrUnavailable, req.ID)
	}

	quotes := make([]market.Quote, 0, len(asset.Quotes))
	for _, q := range asset.Quotes {
		usd := q.Quote[quoteCurrency]
		quotes = append(quotes, market.Quote{
			TimestampMs:      q.Timestamp.UnixMilli(),
			Price:            usd.Price,
			Volume24h:        usd.Volume24h,
			MarketCap:        usd.MarketCap,
			PercentChange24h: usd.PercentChange24h,
		})
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].TimestampMs < quotes[j].TimestampMs
	})
	return quotes, nil
}

func (c *Client) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + "?" + params.Encode()
	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("cmc: build request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", market.ErrUnavailable, ctx.Err())
			}
			lastErr = fmt.Errorf("%w: %v", market.ErrUnavailable, err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response: %v", market.ErrUnavailable, readErr)
			case resp.StatusCode == http.StatusTooManyRequests:
				// Quota errors never improve within one request; surface
				// immediately so the caller can fall back.
				return nil, market.ErrRateLimited
			case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
				return nil, fmt.Errorf("%w: http status %d", market.ErrAssetNotFound, resp.StatusCode)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				lastErr = fmt.Errorf("%w: http status %d", market.ErrUnavailable, resp.StatusCode)
			default:
				return body, nil
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", market.ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, market.ErrUnavailable
}

func statusError(status statusPayload) error {
	switch status.ErrorCode {
	case 1008, 1009, 1010, 1011:
		return fmt.Errorf("%w: %s", market.ErrRateLimited, status.ErrorMessage)
	case 400, 404:
		return fmt.Errorf("%w: %s", market.ErrAssetNotFound, status.ErrorMessage)
	default:
		return fmt.Errorf("%w: api error %d: %s", market.ErrUnavailable, status.ErrorCode, status.ErrorMessage)
	}
}
