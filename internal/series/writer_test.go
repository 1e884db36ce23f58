package series

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"coinchart-api/internal/chart"
)

func makePoints(n int) []chart.PricePoint {
	points := make([]chart.PricePoint, n)
	for i := range points {
		points[i] = chart.PricePoint{TimestampMs: int64(i) * 1000, Price: float64(i)}
	}
	return points
}

func TestWriterPersist(t *testing.T) {
	ctx := context.Background()

	t.Run("splits into batches of 100", func(t *testing.T) {
		points := newFakePointsModel()
		w := NewWriter(points)

		written := w.Persist(ctx, "tok-1", "1", makePoints(250))
		require.Equal(t, 250, written)
		require.Equal(t, []int{100, 100, 50}, points.batchSizes())
		require.Equal(t, 250, points.storedCount("tok-1"))
	})

	t.Run("carries asset identity onto rows", func(t *testing.T) {
		points := newFakePointsModel()
		w := NewWriter(points)

		w.Persist(ctx, "tok-1", "1027", makePoints(1))
		require.Len(t, points.batches, 1)
		row := points.batches[0][0]
		require.Equal(t, "tok-1", row.AssetId)
		require.Equal(t, "1027", row.CmcId)
	})

	t.Run("re-persisting the same points is idempotent", func(t *testing.T) {
		points := newFakePointsModel()
		w := NewWriter(points)

		w.Persist(ctx, "tok-1", "1", makePoints(10))
		w.Persist(ctx, "tok-1", "1", makePoints(10))
		require.Equal(t, 10, points.storedCount("tok-1"))
	})

	t.Run("does not raise on store failure", func(t *testing.T) {
		points := newFakePointsModel()
		points.batchErr = context.DeadlineExceeded
		w := NewWriter(points)

		written := w.Persist(ctx, "tok-1", "1", makePoints(150))
		require.Zero(t, written)
		// both batches were still attempted
		require.Equal(t, []int{100, 50}, points.batchSizes())
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		points := newFakePointsModel()
		require.Zero(t, NewWriter(points).Persist(ctx, "tok-1", "1", nil))
		require.Empty(t, points.batches)
	})
}
