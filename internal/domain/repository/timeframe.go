package repository

import (
	"strings"
	"time"

	"SignalHub/pkg/util"
)

// Timeframe is the horizon a signal applies to.
type Timeframe string

const (
	TF1H Timeframe = "1H"
	TF4H Timeframe = "4H"
	TF1D Timeframe = "1D"
	TF1W Timeframe = "1W"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1H, TF4H, TF1D, TF1W:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1W }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Interval maps a signal timeframe onto the matching candle interval.
func (tf Timeframe) Interval() Interval {
	return Interval(strings.ToLower(string(tf)))
}

// Interval is a candle width as named by the exchange.
type Interval string

const (
	Interval1h Interval = "1h"
	Interval4h Interval = "4h"
	Interval1d Interval = "1d"
	Interval1w Interval = "1w"
)

func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1h, Interval4h, Interval1d, Interval1w:
		return true
	default:
		return false
	}
}

// Duration returns the width of one bucket.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval1w:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// BucketStart truncates t to the start of its bucket in UTC. Weekly buckets
// start on Monday 00:00 UTC.
func (iv Interval) BucketStart(t time.Time) time.Time {
	if iv == Interval1w {
		return util.StartOfWeek(t)
	}
	return t.UTC().Truncate(iv.Duration())
}

// IsStale reports whether stored candles need refreshing: the newest bucket
// is two or more widths old, or the open bucket was last written more than one
// width ago.
func (iv Interval) IsStale(lastBucket, lastUpdated, now time.Time) bool {
	width := iv.Duration()
	if now.Sub(lastBucket) >= 2*width {
		return true
	}
	return now.Sub(lastUpdated) > width
}
