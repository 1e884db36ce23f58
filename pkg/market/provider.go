package market

import (
	"context"
	"errors"
	"time"
)

// Quote is one historical observation returned by a market-data provider,
// already normalised to USD fields. Missing upstream fields come back as
// zero values.
type Quote struct {
	TimestampMs      int64
	Price            float64
	Volume24h        float64
	MarketCap        float64
	PercentChange24h float64
}

// QuoteRequest describes one historical-quotes call.
type QuoteRequest struct {
	// ID is the provider-native asset identifier (e.g. a CoinMarketCap id).
	ID string
	// TimeStart and TimeEnd bound the window, inclusive.
	TimeStart time.Time
	TimeEnd   time.Time
	// Interval is one of the provider's closed interval vocabulary
	// (5m, 15m, 1h, 4h, 1d).
	Interval string
	// Count caps the number of returned points; zero uses the provider
	// default.
	Count int
}

// QuoteProvider fetches historical quotes from an external market-data API.
// Implementations must return points sorted ascending by timestamp and honor
// ctx cancellation.
type QuoteProvider interface {
	HistoricalQuotes(ctx context.Context, req QuoteRequest) ([]Quote, error)
}

// Provider error taxonomy. Callers branch on these to decide between
// fallback and surfacing the failure.
var (
	// ErrRateLimited indicates the provider rejected the call for quota
	// reasons; retrying within the same request is pointless.
	ErrRateLimited = errors.New("market: rate limited")
	// ErrUnavailable covers timeouts, transport failures and malformed
	// payloads.
	ErrUnavailable = errors.New("market: provider unavailable")
	// ErrAssetNotFound indicates the provider does not know the asset id.
	ErrAssetNotFound = errors.New("market: asset not found")
)
