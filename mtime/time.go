// Package mtime contains a millisecond representation of time used
// throughout the engine for event time, processing time, and
// synchronized-processing-time instants. The range is deliberately wider
// than time.Time's practical range so that sentinel "-infinity"/"+infinity"
// watermark values can be represented exactly and compared with ordinary
// integer comparison.
package mtime

import (
	"fmt"
	"math"
	"time"
)

const (
	// MinTimestamp is "-infinity": the smallest representable instant.
	MinTimestamp Time = math.MinInt64 / 1000

	// MaxTimestamp is "+infinity": the largest representable instant.
	MaxTimestamp Time = math.MaxInt64 / 1000

	// EndOfGlobalWindowTime is the maxTimestamp of the global window: one
	// day before MaxTimestamp, so that GC timers scheduled past it (plus an
	// allowed lateness and a GC delay) never overflow into MaxTimestamp.
	EndOfGlobalWindowTime = MaxTimestamp - 24*60*60*1000

	// ZeroTimestamp corresponds to the Unix epoch.
	ZeroTimestamp Time = 0
)

// Time is milliseconds since the Unix epoch.
type Time int64

// Now returns the current wall-clock time, truncated to milliseconds.
func Now() Time {
	return FromTime(time.Now())
}

// FromMilliseconds builds a Time from a raw milliseconds-since-epoch value,
// clamped to [MinTimestamp, MaxTimestamp].
func FromMilliseconds(ms int64) Time {
	return Normalize(Time(ms))
}

// FromDuration returns a Time that is the given duration past the epoch.
func FromDuration(d time.Duration) Time {
	return ZeroTimestamp.Add(d)
}

// FromTime converts a time.Time to a millisecond-precision Time.
func FromTime(t time.Time) Time {
	return Normalize(Time(t.UnixNano() / int64(time.Millisecond)))
}

// ToTime converts back to a time.Time in UTC.
func (t Time) ToTime() time.Time {
	return time.Unix(0, int64(t)*int64(time.Millisecond)).UTC()
}

// Milliseconds returns the raw milliseconds-since-epoch value.
func (t Time) Milliseconds() int64 {
	return int64(t)
}

// Add returns t+d, clamped to the representable range.
func (t Time) Add(d time.Duration) Time {
	return Normalize(Time(int64(t) + int64(d/time.Millisecond)))
}

// Subtract returns t-d, clamped to the representable range.
func (t Time) Subtract(d time.Duration) Time {
	return Normalize(Time(int64(t) - int64(d/time.Millisecond)))
}

func (t Time) String() string {
	switch t {
	case MinTimestamp:
		return "-inf"
	case MaxTimestamp:
		return "+inf"
	case EndOfGlobalWindowTime:
		return "glo"
	default:
		return fmt.Sprintf("%d", t.Milliseconds())
	}
}

// Min returns the earlier of a, b.
func Min(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

// Max returns the later of a, b.
func Max(a, b Time) Time {
	if a < b {
		return b
	}
	return a
}

// Normalize clamps t to [MinTimestamp, MaxTimestamp].
func Normalize(t Time) Time {
	return Min(Max(t, MinTimestamp), MaxTimestamp)
}
