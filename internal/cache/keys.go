package cache

import (
	"fmt"
	"strings"
	"time"

	"coinchart-api/internal/chart"
)

// Namespace is the Redis key prefix for the coinchart application.
const Namespace = "coinchart"

// SeriesKey is the composite identity of a cached chart series. Two requests
// that differ only in explicit interval are distinct series and are cached
// independently.
type SeriesKey struct {
	AssetID  string
	Range    chart.TimeRange
	Interval chart.Interval
}

// Key serialises the identity to its Redis key. All series key construction
// goes through here; ad hoc concatenation at call sites is what caused the
// key-collision bugs this type replaces.
func (k SeriesKey) Key() string {
	return formatKey("chart", k.AssetID, string(k.Range), string(k.Interval))
}

// LastUpdateKey is the sidecar holding the unix-millisecond wall clock of the
// last successful refresh.
func (k SeriesKey) LastUpdateKey() string {
	return k.Key() + lastUpdateSuffix
}

// BusyKey is the transient marker set while an upstream fetch for this series
// is in flight.
func (k SeriesKey) BusyKey() string {
	return k.Key() + busySuffix
}

const (
	lastUpdateSuffix = ":last_update"
	busySuffix       = ":busy"
)

// SeriesPrefix returns the enumeration prefix for every cache key belonging
// to an asset, sidecars included.
func SeriesPrefix(assetID string) string {
	return formatKey("chart", assetID) + ":"
}

// IsSidecarKey reports whether an enumerated key is series metadata rather
// than series data.
func IsSidecarKey(key string) bool {
	return strings.HasSuffix(key, lastUpdateSuffix) || strings.HasSuffix(key, busySuffix)
}

// ParseSeriesKey recovers the series identity from an enumerated data key.
func ParseSeriesKey(key string) (SeriesKey, error) {
	parts := strings.Split(key, ":")
	// coinchart:chart:<asset>:<range>:<interval>
	if len(parts) != 5 || parts[0] != Namespace || parts[1] != "chart" {
		return SeriesKey{}, fmt.Errorf("cache: not a series key: %q", key)
	}
	timeRange, err := chart.ParseTimeRange(parts[3])
	if err != nil {
		return SeriesKey{}, fmt.Errorf("cache: bad range in key %q: %w", key, err)
	}
	interval, err := chart.ParseInterval(parts[4])
	if err != nil || interval == "" {
		return SeriesKey{}, fmt.Errorf("cache: bad interval in key %q", key)
	}
	return SeriesKey{AssetID: parts[2], Range: timeRange, Interval: interval}, nil
}

// --- Auto-sync state --------------------------------------------------------

// SyncLastRunKey stores the unix-millisecond timestamp of the last completed
// full reconciliation. Kept in Redis so the check coordinates across process
// instances.
func SyncLastRunKey() string {
	return formatKey("sync", "last_run")
}

// SyncRunningKey marks an in-flight full reconciliation. Its value is the
// unix-millisecond start time, used for orphaned-lock detection.
func SyncRunningKey() string {
	return formatKey("sync", "running")
}

// --- TTLs -------------------------------------------------------------------

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	// Series is the expiry on chart series entries; zero keeps them until
	// replaced, relying on reconciliation to repair evictions.
	Series time.Duration
	// Busy bounds the single-flight marker so a crashed fetch cannot block a
	// series forever.
	Busy time.Duration
	// Fallback is the expiry on entries populated from the durable store.
	Fallback time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations, applying
// defaults for unset values.
func NewTTLSet(seriesSec, busySec, fallbackSec int) TTLSet {
	return TTLSet{
		Series:   durationOrDefault(seriesSec, 0),
		Busy:     durationOrDefault(busySec, 45*time.Second),
		Fallback: durationOrDefault(fallbackSec, 0),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}
