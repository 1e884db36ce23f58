package chart

import (
	"fmt"
	"strings"
	"time"
)

// TimeRange is the closed set of chart windows exposed by the API.
type TimeRange string

const (
	RangeDay   TimeRange = "1d"
	RangeWeek  TimeRange = "7d"
	RangeMonth TimeRange = "1m"
	RangeAll   TimeRange = "all"
)

// Interval is the closed sampling-interval vocabulary accepted by the
// upstream quotes endpoint.
type Interval string

const (
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// ParseTimeRange validates a requested range. The empty string defaults to
// the all-time window, matching the public chart endpoint contract.
func ParseTimeRange(raw string) (TimeRange, error) {
	switch TimeRange(strings.TrimSpace(strings.ToLower(raw))) {
	case "":
		return RangeAll, nil
	case RangeDay:
		return RangeDay, nil
	case RangeWeek:
		return RangeWeek, nil
	case RangeMonth:
		return RangeMonth, nil
	case RangeAll:
		return RangeAll, nil
	default:
		return "", fmt.Errorf("chart: unknown time range %q", raw)
	}
}

// ParseInterval validates an explicit interval override. Empty means "use
// the range default".
func ParseInterval(raw string) (Interval, error) {
	switch Interval(strings.TrimSpace(strings.ToLower(raw))) {
	case "":
		return "", nil
	case Interval5m:
		return Interval5m, nil
	case Interval15m:
		return Interval15m, nil
	case Interval1h:
		return Interval1h, nil
	case Interval4h:
		return Interval4h, nil
	case Interval1d:
		return Interval1d, nil
	default:
		return "", fmt.Errorf("chart: unknown interval %q", raw)
	}
}

// PolicyOverrides allows operators to tune refresh cadence per range without
// a rebuild. Zero fields keep the built-in defaults.
type PolicyOverrides struct {
	DayRefresh   time.Duration
	WeekRefresh  time.Duration
	MonthRefresh time.Duration
	AllRefresh   time.Duration
}

// Policy maps a requested time range to its sampling interval, lookback
// window and cache refresh cadence. It is pure: all methods are deterministic
// in their arguments.
type Policy struct {
	overrides PolicyOverrides
}

// NewPolicy builds a policy with the supplied overrides.
func NewPolicy(overrides PolicyOverrides) *Policy {
	return &Policy{overrides: overrides}
}

// ResolveInterval picks the effective interval: the explicit override when
// present, otherwise the range default.
func (p *Policy) ResolveInterval(timeRange TimeRange, explicit Interval) Interval {
	if explicit != "" {
		return explicit
	}
	switch timeRange {
	case RangeDay:
		return Interval5m
	case RangeWeek:
		return Interval1h
	default:
		return Interval1d
	}
}

// LookbackStart computes the inclusive start of the upstream fetch window.
// The all-time range is bounded to three months; the provider bills per
// point and older history is served from the durable store.
func (p *Policy) LookbackStart(timeRange TimeRange, now time.Time) time.Time {
	switch timeRange {
	case RangeDay:
		return now.AddDate(0, 0, -1)
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(0, -3, 0)
	}
}

// RefreshInterval returns how long a cached series stays fresh. Finer
// intervals on short ranges refresh faster because those charts are the
// actively watched ones.
func (p *Policy) RefreshInterval(timeRange TimeRange, interval Interval) time.Duration {
	switch timeRange {
	case RangeDay:
		if d := p.overrides.DayRefresh; d > 0 {
			return d
		}
		if interval == Interval5m || interval == Interval15m {
			return 5 * time.Minute
		}
		return 15 * time.Minute
	case RangeWeek:
		if d := p.overrides.WeekRefresh; d > 0 {
			return d
		}
		switch interval {
		case Interval5m, Interval15m:
			return 15 * time.Minute
		case Interval1h, Interval4h:
			return time.Hour
		default:
			return 3 * time.Hour
		}
	case RangeMonth:
		if d := p.overrides.MonthRefresh; d > 0 {
			return d
		}
		return 12 * time.Hour
	default:
		if d := p.overrides.AllRefresh; d > 0 {
			return d
		}
		return 12 * time.Hour
	}
}

// FallbackLimit bounds durable-store reads when the upstream is down:
// roughly the point count the range would hold at its default interval,
// capped to the provider's own page size.
func (p *Policy) FallbackLimit(timeRange TimeRange) int {
	switch timeRange {
	case RangeDay:
		return 288
	case RangeWeek:
		return 168
	case RangeMonth:
		return 150
	default:
		return maxSeriesPoints
	}
}

// SampleStride returns the durable-read decimation factor for long ranges
// queried at fine intervals. One point per day for all-time, four per day
// for one month; zero means no sampling.
func (p *Policy) SampleStride(timeRange TimeRange, interval Interval) int {
	if timeRange != RangeAll && timeRange != RangeMonth {
		return 0
	}
	switch interval {
	case Interval5m, Interval15m, Interval1h:
		if timeRange == RangeAll {
			return 24
		}
		return 6
	default:
		return 0
	}
}

// maxSeriesPoints mirrors the upstream request page size.
const maxSeriesPoints = 500

// MaxSeriesPoints is the upper bound on points requested upstream or read
// back from the durable store in one call.
func MaxSeriesPoints() int { return maxSeriesPoints }
