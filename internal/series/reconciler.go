package series

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"coinchart-api/internal/cache"
	"coinchart-api/internal/chart"
	"coinchart-api/internal/model"
	"coinchart-api/internal/store"
)

// ReconcileResult summarises one bidirectional reconciliation pass.
type ReconcileResult struct {
	// Pushed is how many cached points were upserted into the durable
	// store (pre-dedup; the upsert makes re-pushes harmless).
	Pushed int
	// Pulled is how many durable points were added into cache entries.
	Pulled int
	// Series is how many cached series were examined.
	Series int
}

// Reconciler repairs divergence between the cache and the durable store
// for one asset: cached points missing from the database are pushed down,
// durable points missing from cache entries are merged up. Both directions
// are strictly additive; reconciliation never deletes or overwrites an
// existing point on either side.
type Reconciler struct {
	store  store.Store
	points model.PricePointsModel
	writer *Writer
	policy *chart.Policy
	ttl    cache.TTLSet

	now func() time.Time
}

func NewReconciler(st store.Store, points model.PricePointsModel, writer *Writer, policy *chart.Policy, ttl cache.TTLSet) *Reconciler {
	return &Reconciler{
		store:  st,
		points: points,
		writer: writer,
		policy: policy,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Reconcile runs both directions for one asset. assetID is the catalog
// primary key; cmcID is the upstream id the cache keys are built from.
func (r *Reconciler) Reconcile(ctx context.Context, assetID, cmcID string) (ReconcileResult, error) {
	var res ReconcileResult
	keys, err := r.store.Keys(ctx, cache.SeriesPrefix(cmcID))
	if err != nil {
		return res, err
	}

	type entry struct {
		key    cache.SeriesKey
		points []chart.PricePoint
	}
	entries := make([]entry, 0, len(keys))
	for _, raw := range keys {
		if cache.IsSidecarKey(raw) {
			continue
		}
		key, err := cache.ParseSeriesKey(raw)
		if err != nil {
			logx.WithContext(ctx).Errorf("reconcile: skip key %q: %v", raw, err)
			continue
		}
		points, ok, err := r.store.GetSeries(ctx, raw)
		if err != nil {
			logx.WithContext(ctx).Errorf("reconcile: cache read %q: %v", raw, err)
			continue
		}
		if !ok {
			continue
		}
		entries = append(entries, entry{key: key, points: points})
	}
	res.Series = len(entries)

	// Cache -> durable: push every cached series down. The upsert keys on
	// (asset, timestamp), so overlap across ranges costs nothing.
	for _, e := range entries {
		if len(e.points) == 0 {
			continue
		}
		res.Pushed += r.writer.Persist(ctx, assetID, cmcID, e.points)
	}

	// Durable -> cache: for each cached series, merge in durable points
	// inside its window that the cache entry is missing.
	now := r.now()
	for _, e := range entries {
		start := r.policy.LookbackStart(e.key.Range, now)
		rows, err := r.points.RangeByAsset(ctx, assetID, start.UnixMilli(), now.UnixMilli(), 0, true)
		if err != nil {
			logx.WithContext(ctx).Errorf("reconcile: durable read asset=%s range=%s: %v", assetID, e.key.Range, err)
			continue
		}
		merged, added := chart.MergeMissing(e.points, rowsToPoints(rows))
		if added == 0 {
			continue
		}
		if err := r.store.SetSeries(ctx, e.key.Key(), merged, r.ttl.Series); err != nil {
			logx.WithContext(ctx).Errorf("reconcile: cache write %q: %v", e.key.Key(), err)
			continue
		}
		res.Pulled += added
	}
	return res, nil
}
