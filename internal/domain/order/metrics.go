package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service's domain instruments. A nil *Metrics is valid
// and records nothing, which keeps unit tests free of telemetry setup.
type Metrics struct {
	ordersCreated  metric.Int64Counter
	stockConflicts metric.Int64Counter
	notifyFailures metric.Int64Counter
}

// NewMetrics registers the order instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	ordersCreated, err := meter.Int64Counter("orders_created_total",
		metric.WithDescription("Orders successfully created"))
	if err != nil {
		return nil, errors.Wrap(err, "orders_created_total")
	}
	stockConflicts, err := meter.Int64Counter("stock_conflicts_total",
		metric.WithDescription("Checkouts rejected for insufficient stock"))
	if err != nil {
		return nil, errors.Wrap(err, "stock_conflicts_total")
	}
	notifyFailures, err := meter.Int64Counter("notification_failures_total",
		metric.WithDescription("Best-effort notification dispatches that failed"))
	if err != nil {
		return nil, errors.Wrap(err, "notification_failures_total")
	}
	return &Metrics{
		ordersCreated:  ordersCreated,
		stockConflicts: stockConflicts,
		notifyFailures: notifyFailures,
	}, nil
}

func (m *Metrics) orderCreated(ctx context.Context) {
	if m != nil {
		m.ordersCreated.Add(ctx, 1)
	}
}

func (m *Metrics) stockConflict(ctx context.Context) {
	if m != nil {
		m.stockConflicts.Add(ctx, 1)
	}
}

func (m *Metrics) notifyFailed(ctx context.Context) {
	if m != nil {
		m.notifyFailures.Add(ctx, 1)
	}
}
