package series

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"coinchart-api/internal/chart"
	"coinchart-api/internal/model"
)

const defaultBatchSize = 100

// Writer persists chart points to the durable store in fixed-size
// idempotent batches. A failed batch is logged and skipped; later
// batches still run, so a partial outage degrades to partial
// persistence instead of an error on the read path.
type Writer struct {
	points    model.PricePointsModel
	batchSize int
}

func NewWriter(points model.PricePointsModel) *Writer {
	return &Writer{points: points, batchSize: defaultBatchSize}
}

// Persist upserts pts for the given asset and returns how many rows were
// handed to the store. It never returns an error; persistence is a side
// effect of serving reads and must not break them.
func (w *Writer) Persist(ctx context.Context, assetID, cmcID string, pts []chart.PricePoint) int {
	if w == nil || len(pts) == 0 {
		return 0
	}
	now := time.Now()
	written := 0
	for start := 0; start < len(pts); start += w.batchSize {
		end := start + w.batchSize
		if end > len(pts) {
			end = len(pts)
		}
		batch := make([]*model.PricePoints, 0, end-start)
		for _, p := range pts[start:end] {
			batch = append(batch, &model.PricePoints{
				AssetId:          assetID,
				CmcId:            cmcID,
				TsMs:             p.TimestampMs,
				Price:            p.Price,
				Volume:           p.Volume,
				MarketCap:        p.MarketCap,
				PercentChange24h: p.PercentChange24h,
				CreatedAt:        now,
				UpdatedAt:        now,
			})
		}
		if err := w.points.UpsertBatch(ctx, batch); err != nil {
			logx.WithContext(ctx).Errorf("series: persist batch failed asset=%s rows=%d: %v", assetID, len(batch), err)
			continue
		}
		written += len(batch)
	}
	return written
}
