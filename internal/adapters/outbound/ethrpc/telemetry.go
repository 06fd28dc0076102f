// telemetry.go provides OpenTelemetry instrumentation for the JSON-RPC client.
//
// Metrics:
//   - ethrpc.client.request.duration: Histogram of round-trip latencies
//   - ethrpc.client.requests.total: Counter of requests by method/endpoint/outcome
//   - ethrpc.client.fallbacks.total: Counter of switches to the fallback endpoint
package ethrpc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// instrumentationName is the name used for OpenTelemetry instrumentation.
	instrumentationName = "github.com/archon-research/stl/vault-engine/internal/adapters/outbound/ethrpc"
)

// disabledTracer backs spans of a nil *Telemetry. Its spans carry the
// parent's span context but never end or annotate the caller's span.
var disabledTracer = noop.NewTracerProvider().Tracer(instrumentationName)

// Request outcomes.
const (
	outcomeSuccess        = "success"
	outcomeRPCError       = "rpc_error"
	outcomeTransportError = "transport_error"
)

// Telemetry provides OpenTelemetry metrics and tracing for the client.
// A nil *Telemetry records nothing.
type Telemetry struct {
	tracer trace.Tracer

	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	fallbacksTotal  metric.Int64Counter
}

// NewTelemetry uses the global tracer and meter providers.
func NewTelemetry() (*Telemetry, error) {
	return NewTelemetryWithProviders(
		otel.GetTracerProvider(),
		otel.GetMeterProvider(),
	)
}

// NewTelemetryWithProviders creates a Telemetry with custom providers.
func NewTelemetryWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error

	t.requestDuration, err = meter.Float64Histogram(
		"ethrpc.client.request.duration",
		metric.WithDescription("Duration of JSON-RPC round trips in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	t.requestsTotal, err = meter.Int64Counter(
		"ethrpc.client.requests.total",
		metric.WithDescription("Total number of JSON-RPC requests"),
	)
	if err != nil {
		return nil, err
	}

	t.fallbacksTotal, err = meter.Int64Counter(
		"ethrpc.client.fallbacks.total",
		metric.WithDescription("Total number of requests retried on the fallback endpoint"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// StartSpan starts a client span for an RPC method.
func (t *Telemetry) StartSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	if t == nil {
		return disabledTracer.Start(ctx, "ethrpc."+method)
	}
	return t.tracer.Start(ctx, "ethrpc."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
		),
	)
}

// RecordRequest records one round trip.
func (t *Telemetry) RecordRequest(ctx context.Context, method, endpoint string, duration time.Duration, outcome string) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	)
	t.requestDuration.Record(ctx, duration.Seconds(), attrs)
	t.requestsTotal.Add(ctx, 1, attrs)
}

// RecordFallback records a switch to the fallback endpoint.
func (t *Telemetry) RecordFallback(ctx context.Context, method string) {
	if t == nil {
		return
	}
	t.fallbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("rpc.method", method)))
}
