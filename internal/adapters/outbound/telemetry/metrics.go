package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

var _ outbound.MetricsRecorder = (*Metrics)(nil)

const meterName = "github.com/archon-research/stl/vault-engine"

// Metrics implements outbound.MetricsRecorder using OpenTelemetry.
type Metrics struct {
	transitions      metric.Int64Counter
	fetchDuration    metric.Float64Histogram
	positionsFetched metric.Int64Counter
}

// NewMetrics creates a recorder on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider creates a recorder on mp.
func NewMetricsWithProvider(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	transitions, err := meter.Int64Counter(
		"vault_tx.transitions.total",
		metric.WithDescription("Vault transaction orchestrator state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault_tx.transitions.total counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"positions.fetch.duration",
		metric.WithDescription("Time taken to aggregate an owner's positions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create positions.fetch.duration histogram: %w", err)
	}

	fetched, err := meter.Int64Counter(
		"positions.fetched.total",
		metric.WithDescription("Positions materialised by the aggregator"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create positions.fetched.total counter: %w", err)
	}

	return &Metrics{
		transitions:      transitions,
		fetchDuration:    duration,
		positionsFetched: fetched,
	}, nil
}

// RecordTransition counts one orchestrator state change.
func (m *Metrics) RecordTransition(ctx context.Context, op entity.OperationKind, phase entity.TransactionPhase) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("phase", phase.String()),
	))
}

// RecordPositionsFetched records one aggregation pass.
func (m *Metrics) RecordPositionsFetched(ctx context.Context, count int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.fetchDuration.Record(ctx, duration.Seconds(), attrs)
	m.positionsFetched.Add(ctx, int64(count), attrs)
}
