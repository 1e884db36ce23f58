package chart

import "sort"

// PricePoint is a single chart observation. Zero values are legitimate
// observations, not missing-field sentinels; the upstream provider omits
// fields for thin markets and we store whatever it reported.
type PricePoint struct {
	TimestampMs      int64   `json:"timestamp" msgpack:"ts"`
	Price            float64 `json:"price" msgpack:"p"`
	Volume           float64 `json:"volume" msgpack:"v"`
	MarketCap        float64 `json:"market_cap" msgpack:"mc"`
	PercentChange24h float64 `json:"percent_change_24h" msgpack:"pc"`
}

// SortPoints orders points ascending by timestamp and drops duplicate
// timestamps, keeping the last occurrence. Every series handed to callers
// goes through here so the ascending-unique invariant holds at the edges.
func SortPoints(points []PricePoint) []PricePoint {
	if len(points) == 0 {
		return points
	}
	sorted := make([]PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})
	out := sorted[:0]
	for _, p := range sorted {
		if n := len(out); n > 0 && out[n-1].TimestampMs == p.TimestampMs {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// Timestamps returns the set of timestamps present in the series.
func Timestamps(points []PricePoint) map[int64]struct{} {
	set := make(map[int64]struct{}, len(points))
	for _, p := range points {
		set[p.TimestampMs] = struct{}{}
	}
	return set
}

// MergeMissing adds candidate points whose timestamps are absent from the
// existing series and returns the merged, re-sorted series together with the
// number of points actually added. Existing points are never replaced; the
// merge is strictly additive.
func MergeMissing(existing, candidates []PricePoint) ([]PricePoint, int) {
	if len(candidates) == 0 {
		return existing, 0
	}
	seen := Timestamps(existing)
	merged := existing
	added := 0
	for _, p := range candidates {
		if _, ok := seen[p.TimestampMs]; ok {
			continue
		}
		seen[p.TimestampMs] = struct{}{}
		merged = append(merged, p)
		added++
	}
	if added == 0 {
		return existing, 0
	}
	return SortPoints(merged), added
}
