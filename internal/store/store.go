package store

import (
	"context"
	"time"

	"coinchart-api/internal/chart"
)

// Store is the fast-tier key/value abstraction backing chart series entries
// and their sidecar markers. Entries are advisory: losing one causes a cache
// miss, never data loss. A zero TTL means no expiry.
type Store interface {
	// GetSeries loads a cached point series. The second return reports
	// whether the key existed.
	GetSeries(ctx context.Context, key string) ([]chart.PricePoint, bool, error)
	// SetSeries replaces a cached point series.
	SetSeries(ctx context.Context, key string, points []chart.PricePoint, ttl time.Duration) error
	// GetString loads a sidecar value.
	GetString(ctx context.Context, key string) (string, bool, error)
	// SetString writes a sidecar value.
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	// SetStringNX writes a sidecar value only when the key is absent and
	// reports whether this caller won the write.
	SetStringNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Keys enumerates keys sharing a prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
