package engine

import (
	"errors"
	"time"
)

// Options configures a StatefulRunner/BatchDriver invocation. The zero
// value is a usable default: no metrics suppression, no allowed-lateness
// override, ordering disabled.
type Options struct {
	DisableMetrics          bool
	AllowedLatenessOverride *time.Duration
	OrderingRequested       bool
	GCDelay                 time.Duration
}

// Option configures an Options value.
type Option func(*Options) error

// WithMetricsDisabled turns off droppedDueToLateness / processedElements
// counters, for callers that don't want the bookkeeping overhead.
func WithMetricsDisabled() Option {
	return func(o *Options) error {
		o.DisableMetrics = true
		return nil
	}
}

// WithAllowedLatenessOverride forces every window's allowed lateness to d,
// regardless of what its Strategy specifies. d must not be negative.
func WithAllowedLatenessOverride(d time.Duration) Option {
	return func(o *Options) error {
		if d < 0 {
			return errors.New("allowed lateness override must not be negative")
		}
		o.AllowedLatenessOverride = &d
		return nil
	}
}

// WithOrderingRequested asks a StatefulRunner to deliver elements to user
// state and timers in strict event-time order per key and window,
// buffering and emitting a sort-flush timer as needed, even if the user
// function itself didn't declare that requirement.
func WithOrderingRequested() Option {
	return func(o *Options) error {
		o.OrderingRequested = true
		return nil
	}
}

// GCDelay is the fixed interval added after a window's maxTimestamp plus
// allowed lateness before its state is garbage collected, giving any timer
// firing exactly at expiration room to run first.
const GCDelay = time.Millisecond

// NewOptions builds an Options from the given functional options,
// defaulting GCDelay to the package constant.
func NewOptions(opts ...Option) (Options, error) {
	o := Options{GCDelay: GCDelay}
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return Options{}, err
		}
	}
	return o, nil
}
