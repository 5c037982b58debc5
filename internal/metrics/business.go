package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics records token lifecycle and authentication metrics.
type BusinessMetrics interface {
	// RecordOperation counts one lifecycle operation ("token_issue", "token_revoke",
	// "authenticate", ...) with its status ("success" or "error").
	RecordOperation(ctx context.Context, operation, status string)

	// RecordDuration records how long a lifecycle operation took, in seconds.
	RecordDuration(ctx context.Context, operation string, duration time.Duration, status string)

	// RecordAuthenticationFailure counts one rejected authentication by reason
	// ("revoked", "expired", "ip_blocked", ...). Reasons never reach clients.
	RecordAuthenticationFailure(ctx context.Context, reason string)
}

type businessMetrics struct {
	operationCounter metric.Int64Counter
	durationHisto    metric.Float64Histogram
	failureCounter   metric.Int64Counter
}

// NewBusinessMetrics creates the OpenTelemetry backed BusinessMetrics.
// Metric names are prefixed with namespace, e.g. "apikeys_token_operations_total".
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operationCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_token_operations_total", namespace),
		metric.WithDescription("Total number of token lifecycle operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_token_operation_duration_seconds", namespace),
		metric.WithDescription("Duration of token lifecycle operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	failureCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_authentication_failures_total", namespace),
		metric.WithDescription("Total number of rejected authentications by reason"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authentication failure counter: %w", err)
	}

	return &businessMetrics{
		operationCounter: operationCounter,
		durationHisto:    durationHisto,
		failureCounter:   failureCounter,
	}, nil
}

func (b *businessMetrics) RecordOperation(ctx context.Context, operation, status string) {
	b.operationCounter.Add(ctx, 1, operationAttributes(operation, status))
}

func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	operation string,
	duration time.Duration,
	status string,
) {
	b.durationHisto.Record(ctx, duration.Seconds(), operationAttributes(operation, status))
}

func (b *businessMetrics) RecordAuthenticationFailure(ctx context.Context, reason string) {
	b.failureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func operationAttributes(operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

// NoOpBusinessMetrics discards everything. Used when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a no-op BusinessMetrics implementation.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return NoOpBusinessMetrics{}
}

func (NoOpBusinessMetrics) RecordOperation(context.Context, string, string) {}

func (NoOpBusinessMetrics) RecordDuration(context.Context, string, time.Duration, string) {}

func (NoOpBusinessMetrics) RecordAuthenticationFailure(context.Context, string) {}
