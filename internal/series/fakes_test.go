package series

import (
	"context"
	"sort"
	"sync"

	"coinchart-api/internal/model"
	"coinchart-api/pkg/market"
)

// fakeProvider returns a canned response or error and records calls.
type fakeProvider struct {
	mu     sync.Mutex
	quotes []market.Quote
	err    error
	calls  int
	last   market.QuoteRequest
}

func (f *fakeProvider) HistoricalQuotes(_ context.Context, req market.QuoteRequest) ([]market.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	out := make([]market.Quote, len(f.quotes))
	copy(out, f.quotes)
	return out, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePointsModel keeps rows in memory keyed by (asset, timestamp).
type fakePointsModel struct {
	mu        sync.Mutex
	rows      map[string]map[int64]*model.PricePoints
	batchErr  error
	batches   [][]*model.PricePoints
	rangeErr  error
	upsertLog int
}

func newFakePointsModel() *fakePointsModel {
	return &fakePointsModel{rows: make(map[string]map[int64]*model.PricePoints)}
}

func (f *fakePointsModel) Upsert(ctx context.Context, row *model.PricePoints) error {
	return f.UpsertBatch(ctx, []*model.PricePoints{row})
}

func (f *fakePointsModel) UpsertBatch(_ context.Context, rows []*model.PricePoints) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, rows)
	if f.batchErr != nil {
		return f.batchErr
	}
	for _, row := range rows {
		byTs, ok := f.rows[row.AssetId]
		if !ok {
			byTs = make(map[int64]*model.PricePoints)
			f.rows[row.AssetId] = byTs
		}
		clone := *row
		byTs[row.TsMs] = &clone
		f.upsertLog++
	}
	return nil
}

func (f *fakePointsModel) RangeByAsset(_ context.Context, assetID string, startMs, endMs int64, limit int, ascending bool) ([]*model.PricePoints, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rangeErr != nil {
		return nil, f.rangeErr
	}
	var out []*model.PricePoints
	for ts, row := range f.rows[assetID] {
		if ts >= startMs && ts <= endMs {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].TsMs < out[j].TsMs
		}
		return out[i].TsMs > out[j].TsMs
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePointsModel) CountByAsset(_ context.Context, assetID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows[assetID])), nil
}

func (f *fakePointsModel) storedCount(assetID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[assetID])
}

func (f *fakePointsModel) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

// fakeTokensModel serves a fixed catalog.
type fakeTokensModel struct {
	tokens []*model.Tokens
	err    error
}

func (f *fakeTokensModel) FindOneByCmcId(_ context.Context, cmcID string) (*model.Tokens, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, token := range f.tokens {
		if token.CmcId.String == cmcID {
			return token, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeTokensModel) ListWithCmcId(_ context.Context) ([]*model.Tokens, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

// runInline replaces the async dispatch hook so background work finishes
// before assertions run.
func runInline(fn func()) { fn() }
