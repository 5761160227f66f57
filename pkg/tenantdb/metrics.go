package tenantdb

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/weeklype/tenantrouter/pkg/tenantdb"

type instruments struct {
	constructed metric.Int64Counter
	failures    metric.Int64Counter
	evicted     metric.Int64Counter
	open        metric.Int64ObservableGauge
}

func newInstruments(mp metric.MeterProvider, openPools func() int64) (*instruments, error) {
	meter := mp.Meter(meterName)

	constructed, err := meter.Int64Counter("tenantdb.pools.constructed",
		metric.WithDescription("Tenant pools constructed"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("tenantdb.pools.construction_failures",
		metric.WithDescription("Tenant pool constructions that failed"))
	if err != nil {
		return nil, err
	}
	evicted, err := meter.Int64Counter("tenantdb.pools.evicted",
		metric.WithDescription("Tenant pools closed, by reason"))
	if err != nil {
		return nil, err
	}
	open, err := meter.Int64ObservableGauge("tenantdb.pools.open",
		metric.WithDescription("Tenant pools currently open"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(openPools())
			return nil
		}))
	if err != nil {
		return nil, err
	}

	return &instruments{constructed: constructed, failures: failures, evicted: evicted, open: open}, nil
}

func (m *instruments) evict(ctx context.Context, reason string) {
	m.evicted.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
