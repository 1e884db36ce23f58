package series

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coinchart-api/internal/cache"
	"coinchart-api/internal/chart"
	"coinchart-api/internal/model"
	"coinchart-api/internal/store"
	"coinchart-api/pkg/market"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func catalogToken() *model.Tokens {
	return &model.Tokens{Id: "tok-btc", Name: "Bitcoin", Symbol: "BTC", CmcId: sql.NullString{String: "1", Valid: true}}
}

type fetcherEnv struct {
	store    *store.MemoryStore
	provider *fakeProvider
	points   *fakePointsModel
	tokens   *fakeTokensModel
	fetcher  *Fetcher
}

func newFetcherEnv() *fetcherEnv {
	env := &fetcherEnv{
		store:    store.NewMemoryStore(),
		provider: &fakeProvider{},
		points:   newFakePointsModel(),
		tokens:   &fakeTokensModel{tokens: []*model.Tokens{catalogToken()}},
	}
	env.fetcher = NewFetcher(FetcherParams{
		Store:    env.store,
		Tokens:   env.tokens,
		Points:   env.points,
		Provider: env.provider,
		Writer:   NewWriter(env.points),
		Policy:   chart.NewPolicy(chart.PolicyOverrides{}),
		TTL:      cache.NewTTLSet(0, 45, 0),
	})
	env.fetcher.now = func() time.Time { return testNow }
	env.fetcher.dispatch = runInline
	return env
}

func (env *fetcherEnv) seedCache(t *testing.T, key cache.SeriesKey, points []chart.PricePoint, stampedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.store.SetSeries(ctx, key.Key(), points, 0))
	if !stampedAt.IsZero() {
		require.NoError(t, env.store.SetString(ctx, key.LastUpdateKey(), strconv.FormatInt(stampedAt.UnixMilli(), 10), 0))
	}
}

func weekKey() cache.SeriesKey {
	return cache.SeriesKey{AssetID: "1", Range: chart.RangeWeek, Interval: chart.Interval1h}
}

func quoteAt(offset time.Duration, price float64) market.Quote {
	return market.Quote{TimestampMs: testNow.Add(offset).UnixMilli(), Price: price}
}

func TestGetSeriesFreshCacheHit(t *testing.T) {
	env := newFetcherEnv()
	key := weekKey()
	cached := []chart.PricePoint{{TimestampMs: 1, Price: 10}}
	env.seedCache(t, key, cached, testNow.Add(-time.Minute))

	got, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, chart.Interval1h, false)
	require.NoError(t, err)
	require.Equal(t, cached, got)
	require.Zero(t, env.provider.callCount(), "fresh hit must not reach upstream")
}

func TestGetSeriesStaleTriggersRefresh(t *testing.T) {
	env := newFetcherEnv()
	key := weekKey()
	env.seedCache(t, key, []chart.PricePoint{{TimestampMs: 1, Price: 10}}, testNow.Add(-2*time.Hour))
	env.provider.quotes = []market.Quote{quoteAt(-2*time.Hour, 101), quoteAt(-time.Hour, 102)}

	got, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, chart.Interval1h, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, env.provider.callCount())

	// cache replaced and stamp bumped
	stored, ok, err := env.store.GetSeries(context.Background(), key.Key())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, got, stored)

	raw, ok, err := env.store.GetString(context.Background(), key.LastUpdateKey())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, strconv.FormatInt(testNow.UnixMilli(), 10), raw)

	// persisted under the catalog id, not the upstream id
	require.Equal(t, 2, env.points.storedCount("tok-btc"))

	// busy marker released
	_, ok, err = env.store.GetString(context.Background(), key.BusyKey())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetSeriesUpstreamRequestShape(t *testing.T) {
	env := newFetcherEnv()
	env.provider.quotes = []market.Quote{quoteAt(-time.Hour, 1)}

	_, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, "", false)
	require.NoError(t, err)

	req := env.provider.last
	require.Equal(t, "1", req.ID)
	require.Equal(t, "1h", req.Interval, "week range defaults to 1h")
	require.Equal(t, chart.MaxSeriesPoints(), req.Count)
	require.Equal(t, testNow.AddDate(0, 0, -7), req.TimeStart)
	require.Equal(t, testNow, req.TimeEnd)
}

func TestGetSeriesBusyReturnsCurrentCache(t *testing.T) {
	env := newFetcherEnv()
	key := weekKey()
	cached := []chart.PricePoint{{TimestampMs: 1, Price: 10}}
	// stale stamp so the request wants a refresh, but a peer holds the marker
	env.seedCache(t, key, cached, testNow.Add(-2*time.Hour))
	require.NoError(t, env.store.SetString(context.Background(), key.BusyKey(), "1", 0))

	got, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, chart.Interval1h, false)
	require.NoError(t, err)
	require.Equal(t, cached, got)
	require.Zero(t, env.provider.callCount())

	// the peer's marker survives
	_, ok, err := env.store.GetString(context.Background(), key.BusyKey())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGetSeriesBusyWithEmptyCache(t *testing.T) {
	env := newFetcherEnv()
	key := weekKey()
	require.NoError(t, env.store.SetString(context.Background(), key.BusyKey(), "1", 0))

	got, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, chart.Interval1h, false)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, env.provider.callCount())
}

func TestGetSeriesForceRefresh(t *testing.T) {
	env := newFetcherEnv()
	key := weekKey()
	env.seedCache(t, key, []chart.PricePoint{{TimestampMs: 1, Price: 10}}, testNow.Add(-time.Minute))
	env.provider.quotes = []market.Quote{quoteAt(-time.Hour, 55)}

	got, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, chart.Interval1h, true)
	require.NoError(t, err)
	require.Equal(t, 1, env.provider.callCount(), "force refresh bypasses a fresh stamp")
	require.Equal(t, float64(55), got[0].Price)
}

func TestGetSeriesFallsBackToStaleCache(t *testing.T) {
	env := newFetcherEnv()
	key := weekKey()
	cached := []chart.PricePoint{{TimestampMs: 1, Price: 10}}
	env.seedCache(t, key, cached, testNow.Add(-2*time.Hour))
	env.provider.err = market.ErrUnavailable

	got, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, chart.Interval1h, false)
	require.NoError(t, err)
	require.Equal(t, cached, got)
}

func TestGetSeriesFallsBackToDurable(t *testing.T) {
	env := newFetcherEnv()
	env.provider.err = market.ErrRateLimited
	ts := testNow.Add(-time.Hour).UnixMilli()
	require.NoError(t, env.points.Upsert(context.Background(), &model.PricePoints{
		AssetId: "tok-btc", CmcId: "1", TsMs: ts, Price: 42,
	}))

	got, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, chart.Interval1h, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, float64(42), got[0].Price)

	// fallback populates the cache entry but not the freshness stamp,
	// so the next request retries upstream
	key := weekKey()
	_, ok, err := env.store.GetSeries(context.Background(), key.Key())
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = env.store.GetString(context.Background(), key.LastUpdateKey())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetSeriesAllSourcesExhausted(t *testing.T) {
	env := newFetcherEnv()
	env.provider.err = market.ErrUnavailable

	_, err := env.fetcher.GetSeries(context.Background(), "1", chart.RangeWeek, chart.Interval1h, false)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)

	// busy marker released on the error path too
	_, ok, getErr := env.store.GetString(context.Background(), weekKey().BusyKey())
	require.NoError(t, getErr)
	require.False(t, ok)
}

func TestGetSeriesUnknownAsset(t *testing.T) {
	env := newFetcherEnv()
	env.provider.err = market.ErrAssetNotFound

	_, err := env.fetcher.GetSeries(context.Background(), "999", chart.RangeWeek, chart.Interval1h, false)
	require.ErrorIs(t, err, ErrInvalidAsset)
}

func TestGetSeriesEmptyAssetID(t *testing.T) {
	env := newFetcherEnv()
	_, err := env.fetcher.GetSeries(context.Background(), "  ", chart.RangeWeek, chart.Interval1h, false)
	require.ErrorIs(t, err, ErrInvalidAsset)
	require.Zero(t, env.provider.callCount())
}

func TestFromDurable(t *testing.T) {
	env := newFetcherEnv()
	ctx := context.Background()
	for i := 0; i < 48; i++ {
		require.NoError(t, env.points.Upsert(ctx, &model.PricePoints{
			AssetId: "tok-btc", CmcId: "1",
			TsMs:  testNow.Add(-time.Duration(i) * time.Hour).UnixMilli(),
			Price: float64(i),
		}))
	}

	t.Run("returns window ascending", func(t *testing.T) {
		got, err := env.fetcher.FromDurable(ctx, "1", chart.RangeDay, chart.Interval1d)
		require.NoError(t, err)
		require.Len(t, got, 25)
		require.Less(t, got[0].TimestampMs, got[len(got)-1].TimestampMs)
	})

	t.Run("samples long ranges at fine intervals", func(t *testing.T) {
		got, err := env.fetcher.FromDurable(ctx, "1", chart.RangeAll, chart.Interval1h)
		require.NoError(t, err)
		// stride 24 over 48 hourly rows keeps 2 strided points plus the
		// final observation
		require.Len(t, got, 3)
		require.Equal(t, testNow.UnixMilli(), got[len(got)-1].TimestampMs)
	})

	t.Run("unknown asset", func(t *testing.T) {
		_, err := env.fetcher.FromDurable(ctx, "999", chart.RangeDay, chart.Interval5m)
		require.ErrorIs(t, err, ErrInvalidAsset)
	})
}
