package renewal

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the renewal engine's OpenTelemetry counters. With no meter
// provider configured these are no-ops.
type metrics struct {
	proposalsCreated metric.Int64Counter
	autoRenewals     metric.Int64Counter
	notifications    metric.Int64Counter
	sweepFailures    metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("contractd.renewal")
	m := &metrics{}
	m.proposalsCreated, _ = meter.Int64Counter("renewal.proposals.created",
		metric.WithDescription("Renewal proposals created by the sweep"),
		metric.WithUnit("{proposal}"))
	m.autoRenewals, _ = meter.Int64Counter("renewal.proposals.auto_renewed",
		metric.WithDescription("Proposals auto-approved and executed by the sweep"),
		metric.WithUnit("{proposal}"))
	m.notifications, _ = meter.Int64Counter("renewal.notifications.dispatched",
		metric.WithDescription("Renewal notifications dispatched by the sweep"),
		metric.WithUnit("{notification}"))
	m.sweepFailures, _ = meter.Int64Counter("renewal.sweep.failures",
		metric.WithDescription("Per-contract failures during the renewal sweep"),
		metric.WithUnit("{failure}"))
	return m
}

func (m *metrics) add(ctx context.Context, c metric.Int64Counter, tenantID string) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
	}
}
