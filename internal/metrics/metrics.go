// Package metrics holds the OpenTelemetry instruments of the order engine.
package metrics

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/kiwari-pos/ordering/internal/enum"
)

const meterName = "github.com/kiwari-pos/ordering"

// Metrics records engine counters.
type Metrics struct {
	ordersCreated     metric.Int64Counter
	transitions       metric.Int64Counter
	conflicts         metric.Int64Counter
	paymentsApplied   metric.Int64Counter
	degradedNumbers   metric.Int64Counter
	signatureFailures metric.Int64Counter
	totalMismatches   metric.Int64Counter
}

// New creates the instruments on the given provider's meter.
func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)
	if m.ordersCreated, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created, by channel")); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.transitions, err = meter.Int64Counter("orders.transitions",
		metric.WithDescription("Committed status transitions")); err != nil {
		return nil, errors.Wrap(err, "orders.transitions")
	}
	if m.conflicts, err = meter.Int64Counter("orders.cas_conflicts",
		metric.WithDescription("Compare-and-swap writes that lost a race")); err != nil {
		return nil, errors.Wrap(err, "orders.cas_conflicts")
	}
	if m.paymentsApplied, err = meter.Int64Counter("payments.applied",
		metric.WithDescription("Payment entries appended, by method")); err != nil {
		return nil, errors.Wrap(err, "payments.applied")
	}
	if m.degradedNumbers, err = meter.Int64Counter("orders.degraded_numbers",
		metric.WithDescription("Order numbers issued without the daily counter")); err != nil {
		return nil, errors.Wrap(err, "orders.degraded_numbers")
	}
	if m.signatureFailures, err = meter.Int64Counter("payments.signature_failures",
		metric.WithDescription("Gateway payment assertions rejected")); err != nil {
		return nil, errors.Wrap(err, "payments.signature_failures")
	}
	if m.totalMismatches, err = meter.Int64Counter("orders.total_mismatches",
		metric.WithDescription("Client supplied totals that disagreed with the server")); err != nil {
		return nil, errors.Wrap(err, "orders.total_mismatches")
	}
	return &m, nil
}

// Nop returns metrics backed by a no-op provider.
func Nop() *Metrics {
	m, err := New(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) OrderCreated(ctx context.Context, ch enum.Channel) {
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", string(ch))))
}

func (m *Metrics) Transition(ctx context.Context, from, to enum.OrderStatus) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *Metrics) Conflict(ctx context.Context, op string) {
	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) PaymentApplied(ctx context.Context, method enum.PaymentMethod) {
	m.paymentsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(method))))
}

func (m *Metrics) DegradedNumber(ctx context.Context) {
	m.degradedNumbers.Add(ctx, 1)
}

func (m *Metrics) SignatureFailure(ctx context.Context, reason string) {
	m.signatureFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) TotalMismatch(ctx context.Context) {
	m.totalMismatches.Add(ctx, 1)
}
