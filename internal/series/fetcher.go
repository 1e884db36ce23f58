package series

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"coinchart-api/internal/cache"
	"coinchart-api/internal/chart"
	"coinchart-api/internal/model"
	"coinchart-api/internal/store"
	"coinchart-api/pkg/market"
)

const (
	defaultUpstreamTimeout = 30 * time.Second
	persistTimeout         = 30 * time.Second
)

// FetcherParams collects the dependencies of a Fetcher.
type FetcherParams struct {
	Store    store.Store
	Tokens   model.TokensModel
	Points   model.PricePointsModel
	Provider market.QuoteProvider
	Writer   *Writer
	Policy   *chart.Policy
	TTL      cache.TTLSet
	// UpstreamTimeout bounds one provider call; zero uses the default.
	UpstreamTimeout time.Duration
}

// Fetcher serves chart series: fresh cache hits are returned directly,
// stale or missing entries trigger a single-flight upstream refresh, and
// upstream failures degrade through stale cache and the durable store
// before an error reaches the caller.
type Fetcher struct {
	store           store.Store
	tokens          model.TokensModel
	points          model.PricePointsModel
	provider        market.QuoteProvider
	writer          *Writer
	policy          *chart.Policy
	ttl             cache.TTLSet
	upstreamTimeout time.Duration

	now      func() time.Time
	dispatch func(fn func())
}

func NewFetcher(p FetcherParams) *Fetcher {
	timeout := p.UpstreamTimeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &Fetcher{
		store:           p.Store,
		tokens:          p.Tokens,
		points:          p.Points,
		provider:        p.Provider,
		writer:          p.Writer,
		policy:          p.Policy,
		ttl:             p.TTL,
		upstreamTimeout: timeout,
		now:             time.Now,
		dispatch:        func(fn func()) { threading.GoSafe(fn) },
	}
}

// GetSeries returns the chart series for one asset/range/interval. A
// forceRefresh bypasses the staleness check and refetches upstream.
//
// If another request is already refreshing the same series, the current
// cached value is returned as-is, even when empty; callers never block
// behind a peer's upstream call.
func (f *Fetcher) GetSeries(ctx context.Context, assetID string, timeRange chart.TimeRange, interval chart.Interval, forceRefresh bool) ([]chart.PricePoint, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, ErrInvalidAsset
	}
	interval = f.policy.ResolveInterval(timeRange, interval)
	key := cache.SeriesKey{AssetID: assetID, Range: timeRange, Interval: interval}
	now := f.now()

	if forceRefresh {
		if err := f.store.Delete(ctx, key.LastUpdateKey()); err != nil {
			logx.WithContext(ctx).Errorf("series: clear last_update %s: %v", key.LastUpdateKey(), err)
		}
	}

	cached, haveCached, err := f.store.GetSeries(ctx, key.Key())
	if err != nil {
		logx.WithContext(ctx).Errorf("series: cache read %s: %v", key.Key(), err)
		haveCached = false
	}
	if haveCached && len(cached) > 0 && !forceRefresh && f.isFresh(ctx, key, timeRange, interval, now) {
		return cached, nil
	}

	// Single flight: exactly one request refreshes a given series at a
	// time. Losing the race returns whatever the cache holds right now.
	won, err := f.store.SetStringNX(ctx, key.BusyKey(), formatMillis(now), f.ttl.Busy)
	if err != nil {
		logx.WithContext(ctx).Errorf("series: busy marker %s: %v", key.BusyKey(), err)
		won = true
	}
	if !won {
		return cached, nil
	}
	defer func() {
		if err := f.store.Delete(ctx, key.BusyKey()); err != nil {
			logx.WithContext(ctx).Errorf("series: clear busy %s: %v", key.BusyKey(), err)
		}
	}()

	points, upstreamErr := f.fetchUpstream(ctx, assetID, timeRange, interval, now)
	if upstreamErr == nil && len(points) > 0 {
		if err := f.store.SetSeries(ctx, key.Key(), points, f.ttl.Series); err != nil {
			logx.WithContext(ctx).Errorf("series: cache write %s: %v", key.Key(), err)
		} else if err := f.store.SetString(ctx, key.LastUpdateKey(), formatMillis(now), 0); err != nil {
			logx.WithContext(ctx).Errorf("series: stamp last_update %s: %v", key.LastUpdateKey(), err)
		}
		f.dispatchPersist(assetID, points)
		return points, nil
	}
	if upstreamErr != nil {
		logx.WithContext(ctx).Errorf("series: upstream fetch asset=%s range=%s interval=%s: %v", assetID, timeRange, interval, upstreamErr)
	}

	// Fallback 1: stale cache beats no data.
	if haveCached && len(cached) > 0 {
		return cached, nil
	}

	// Fallback 2: durable store. The entry it produces gets a short TTL
	// and no last_update stamp, so the next request retries upstream.
	if points := f.fromDurableFallback(ctx, key, timeRange, now); len(points) > 0 {
		return points, nil
	}

	if errors.Is(upstreamErr, market.ErrAssetNotFound) {
		return nil, ErrInvalidAsset
	}
	return nil, ErrUpstreamUnavailable
}

// FromDurable serves a series straight from the durable store, skipping
// cache and upstream. Long ranges queried at fine intervals are decimated
// so the payload stays chart-sized.
func (f *Fetcher) FromDurable(ctx context.Context, assetID string, timeRange chart.TimeRange, interval chart.Interval) ([]chart.PricePoint, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, ErrInvalidAsset
	}
	token, err := f.tokens.FindOneByCmcId(ctx, assetID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrInvalidAsset
		}
		return nil, err
	}
	now := f.now()
	start := f.policy.LookbackStart(timeRange, now)
	rows, err := f.points.RangeByAsset(ctx, token.Id, start.UnixMilli(), now.UnixMilli(), 0, true)
	if err != nil {
		return nil, err
	}
	points := rowsToPoints(rows)
	interval = f.policy.ResolveInterval(timeRange, interval)
	if stride := f.policy.SampleStride(timeRange, interval); stride > 1 {
		points = samplePoints(points, stride)
	}
	return points, nil
}

func (f *Fetcher) isFresh(ctx context.Context, key cache.SeriesKey, timeRange chart.TimeRange, interval chart.Interval, now time.Time) bool {
	raw, ok, err := f.store.GetString(ctx, key.LastUpdateKey())
	if err != nil {
		logx.WithContext(ctx).Errorf("series: read last_update %s: %v", key.LastUpdateKey(), err)
		return false
	}
	if !ok {
		return false
	}
	lastMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.UnixMilli(lastMs))
	return age >= 0 && age < f.policy.RefreshInterval(timeRange, interval)
}

func (f *Fetcher) fetchUpstream(ctx context.Context, assetID string, timeRange chart.TimeRange, interval chart.Interval, now time.Time) ([]chart.PricePoint, error) {
	ctx, cancel := context.WithTimeout(ctx, f.upstreamTimeout)
	defer cancel()
	quotes, err := f.provider.HistoricalQuotes(ctx, market.QuoteRequest{
		ID:        assetID,
		TimeStart: f.policy.LookbackStart(timeRange, now),
		TimeEnd:   now,
		Interval:  string(interval),
		Count:     chart.MaxSeriesPoints(),
	})
	if err != nil {
		return nil, err
	}
	points := make([]chart.PricePoint, 0, len(quotes))
	for _, q := range quotes {
		points = append(points, chart.PricePoint{
			TimestampMs:      q.TimestampMs,
			Price:            q.Price,
			Volume:           q.Volume24h,
			MarketCap:        q.MarketCap,
			PercentChange24h: q.PercentChange24h,
		})
	}
	return chart.SortPoints(points), nil
}

func (f *Fetcher) fromDurableFallback(ctx context.Context, key cache.SeriesKey, timeRange chart.TimeRange, now time.Time) []chart.PricePoint {
	token, err := f.tokens.FindOneByCmcId(ctx, key.AssetID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			logx.WithContext(ctx).Errorf("series: fallback token lookup %s: %v", key.AssetID, err)
		}
		return nil
	}
	// Most recent points first, then flipped back to ascending.
	rows, err := f.points.RangeByAsset(ctx, token.Id, f.policy.LookbackStart(timeRange, now).UnixMilli(), now.UnixMilli(), f.policy.FallbackLimit(timeRange), false)
	if err != nil {
		logx.WithContext(ctx).Errorf("series: fallback durable read asset=%s: %v", token.Id, err)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	points := chart.SortPoints(rowsToPoints(rows))
	if err := f.store.SetSeries(ctx, key.Key(), points, f.ttl.Fallback); err != nil {
		logx.WithContext(ctx).Errorf("series: fallback cache write %s: %v", key.Key(), err)
	}
	return points
}

func (f *Fetcher) dispatchPersist(assetID string, points []chart.PricePoint) {
	if f.writer == nil {
		return
	}
	f.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		token, err := f.tokens.FindOneByCmcId(ctx, assetID)
		if err != nil {
			logx.Errorf("series: persist token lookup %s: %v", assetID, err)
			return
		}
		f.writer.Persist(ctx, token.Id, assetID, points)
	})
}

func rowsToPoints(rows []*model.PricePoints) []chart.PricePoint {
	points := make([]chart.PricePoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, chart.PricePoint{
			TimestampMs:      r.TsMs,
			Price:            r.Price,
			Volume:           r.Volume,
			MarketCap:        r.MarketCap,
			PercentChange24h: r.PercentChange24h,
		})
	}
	return points
}

// samplePoints keeps every stride-th point plus the final one, so the most
// recent observation always survives decimation.
func samplePoints(points []chart.PricePoint, stride int) []chart.PricePoint {
	if stride <= 1 || len(points) == 0 {
		return points
	}
	out := make([]chart.PricePoint, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}
	if last := points[len(points)-1]; out[len(out)-1].TimestampMs != last.TimestampMs {
		out = append(out, last)
	}
	return out
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
