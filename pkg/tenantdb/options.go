package tenantdb

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Defaults for the registry.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultMaxPools       = 500
	DefaultIdleTTL        = 30 * time.Minute
	DefaultSweepInterval  = time.Minute
)

type options struct {
	connectTimeout time.Duration
	maxPools       int
	idleTTL        time.Duration
	sweepInterval  time.Duration
	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	now            func() time.Time
}

// Option configures a Registry.
type Option func(*options)

// WithConnectTimeout bounds pool construction.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithMaxPools caps the number of live pools. Zero or less means unlimited.
func WithMaxPools(n int) Option {
	return func(o *options) { o.maxPools = n }
}

// WithIdleTTL sets how long an unleased pool may stay unused before the
// janitor closes it. Zero or less disables idle eviction.
func WithIdleTTL(d time.Duration) Option {
	return func(o *options) { o.idleTTL = d }
}

// WithSweepInterval sets how often the janitor runs.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
