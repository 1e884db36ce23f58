package chart

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortPoints(t *testing.T) {
	t.Run("orders ascending", func(t *testing.T) {
		points := []PricePoint{
			{TimestampMs: 300, Price: 3},
			{TimestampMs: 100, Price: 1},
			{TimestampMs: 200, Price: 2},
		}
		sorted := SortPoints(points)
		require.Len(t, sorted, 3)
		require.Equal(t, int64(100), sorted[0].TimestampMs)
		require.Equal(t, int64(200), sorted[1].TimestampMs)
		require.Equal(t, int64(300), sorted[2].TimestampMs)
	})

	t.Run("dedupes keeping the last occurrence", func(t *testing.T) {
		points := []PricePoint{
			{TimestampMs: 100, Price: 1},
			{TimestampMs: 100, Price: 9},
			{TimestampMs: 200, Price: 2},
		}
		sorted := SortPoints(points)
		require.Len(t, sorted, 2)
		require.Equal(t, float64(9), sorted[0].Price)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		points := []PricePoint{
			{TimestampMs: 200},
			{TimestampMs: 100},
		}
		_ = SortPoints(points)
		require.Equal(t, int64(200), points[0].TimestampMs)
	})

	t.Run("empty input", func(t *testing.T) {
		require.Empty(t, SortPoints(nil))
	})
}

func TestMergeMissing(t *testing.T) {
	t.Run("adds only absent timestamps", func(t *testing.T) {
		existing := []PricePoint{
			{TimestampMs: 100, Price: 1},
			{TimestampMs: 300, Price: 3},
		}
		candidates := []PricePoint{
			{TimestampMs: 100, Price: 99}, // collision, must not replace
			{TimestampMs: 200, Price: 2},
		}
		merged, added := MergeMissing(existing, candidates)
		require.Equal(t, 1, added)
		require.Len(t, merged, 3)
		require.Equal(t, float64(1), merged[0].Price)
		require.Equal(t, int64(200), merged[1].TimestampMs)
	})

	t.Run("no candidates returns existing unchanged", func(t *testing.T) {
		existing := []PricePoint{{TimestampMs: 100}}
		merged, added := MergeMissing(existing, nil)
		require.Zero(t, added)
		require.Equal(t, existing, merged)
	})

	t.Run("all duplicates adds nothing", func(t *testing.T) {
		existing := []PricePoint{{TimestampMs: 100}, {TimestampMs: 200}}
		merged, added := MergeMissing(existing, []PricePoint{{TimestampMs: 200}})
		require.Zero(t, added)
		require.Len(t, merged, 2)
	})

	t.Run("merge into empty series", func(t *testing.T) {
		merged, added := MergeMissing(nil, []PricePoint{{TimestampMs: 200}, {TimestampMs: 100}})
		require.Equal(t, 2, added)
		require.Equal(t, int64(100), merged[0].TimestampMs)
	})
}
