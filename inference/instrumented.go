package inference

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedProvider decorates a Provider with a span per call plus request,
// failure and latency metrics.
type InstrumentedProvider struct {
	next   Provider
	tracer trace.Tracer

	requests     metric.Int64Counter
	failures     metric.Int64Counter
	latency      metric.Float64Histogram
	responseSize metric.Int64Gauge
}

func NewInstrumentedProvider(next Provider, tracer trace.Tracer, meter metric.Meter) *InstrumentedProvider {
	requests, _ := meter.Int64Counter("inference_requests_total",
		metric.WithDescription("Total number of inference requests sent to the provider"))
	failures, _ := meter.Int64Counter("inference_failures_total",
		metric.WithDescription("Total number of inference requests that failed at the provider"))
	latency, _ := meter.Float64Histogram("inference_latency_seconds",
		metric.WithDescription("Time taken to receive a response from the provider in seconds"))
	responseSize, _ := meter.Int64Gauge("inference_response_bytes",
		metric.WithDescription("Size of the latest raw provider response in bytes"))

	return &InstrumentedProvider{
		next:         next,
		tracer:       tracer,
		requests:     requests,
		failures:     failures,
		latency:      latency,
		responseSize: responseSize,
	}
}

func (p *InstrumentedProvider) Generate(ctx context.Context, req Request) (string, error) {
	attrs := []attribute.KeyValue{
		attribute.String("inference.operation", req.Operation),
		attribute.Bool("inference.has_image", req.Image != nil),
		attribute.Int("inference.text_len", len(req.Text)),
	}

	ctx, span := p.tracer.Start(ctx, "inference.Generate", trace.WithAttributes(attrs...))
	defer span.End()

	op := metric.WithAttributes(attribute.String("operation", req.Operation))
	p.requests.Add(ctx, 1, op)

	start := time.Now()
	out, err := p.next.Generate(ctx, req)
	p.latency.Record(ctx, time.Since(start).Seconds(), op)

	if err != nil {
		p.failures.Add(ctx, 1, op)
		span.SetStatus(codes.Error, "provider call failed")
		span.RecordError(err)
		return "", err
	}

	p.responseSize.Record(ctx, int64(len(out)), op)
	span.SetAttributes(attribute.Int("inference.response_len", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}
