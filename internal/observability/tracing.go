package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartDBSpan starts a span for database operations
func StartDBSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("DB %s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SyncMetrics holds sync engine metrics
type SyncMetrics struct {
	cycleCount    metric.Int64Counter
	cycleDuration metric.Float64Histogram
	itemsReplayed metric.Int64Counter
	itemsDropped  metric.Int64Counter
	failureCount  metric.Int64Counter
	pendingItems  metric.Int64UpDownCounter
}

// NewSyncMetrics creates sync engine metric instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	cycleCount, err := meter.Int64Counter(
		"sync.cycle.count",
		metric.WithDescription("Total number of sync cycles attempted"),
		metric.WithUnit("{cycles}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"sync.cycle.duration",
		metric.WithDescription("Sync cycle duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	itemsReplayed, err := meter.Int64Counter(
		"sync.queue.replayed",
		metric.WithDescription("Total number of queue items successfully replayed"),
		metric.WithUnit("{items}"),
	)
	if err != nil {
		return nil, err
	}

	itemsDropped, err := meter.Int64Counter(
		"sync.queue.dropped",
		metric.WithDescription("Total number of queue items dropped after exhausting retries"),
		metric.WithUnit("{items}"),
	)
	if err != nil {
		return nil, err
	}

	failureCount, err := meter.Int64Counter(
		"sync.failure.count",
		metric.WithDescription("Total number of failed sync cycles"),
		metric.WithUnit("{failures}"),
	)
	if err != nil {
		return nil, err
	}

	pendingItems, err := meter.Int64UpDownCounter(
		"sync.queue.pending",
		metric.WithDescription("Number of queue items awaiting replay"),
		metric.WithUnit("{items}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		cycleCount:    cycleCount,
		cycleDuration: cycleDuration,
		itemsReplayed: itemsReplayed,
		itemsDropped:  itemsDropped,
		failureCount:  failureCount,
		pendingItems:  pendingItems,
	}, nil
}

// RecordCycle records one completed sync cycle
func (m *SyncMetrics) RecordCycle(ctx context.Context, durationMs float64, full bool, succeeded bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Bool("sync.full", full),
		attribute.Bool("sync.succeeded", succeeded),
	}
	m.cycleCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.cycleDuration.Record(ctx, durationMs, metric.WithAttributes(attrs...))
	if !succeeded {
		m.failureCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordReplayed records a successfully replayed queue item
func (m *SyncMetrics) RecordReplayed(ctx context.Context, entityType, action string) {
	if m == nil {
		return
	}
	m.itemsReplayed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync.entity_type", entityType),
		attribute.String("sync.action", action),
	))
}

// RecordDropped records a queue item dropped at the retry ceiling
func (m *SyncMetrics) RecordDropped(ctx context.Context, entityType, action string) {
	if m == nil {
		return
	}
	m.itemsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync.entity_type", entityType),
		attribute.String("sync.action", action),
	))
}

// AddPending adjusts the pending queue gauge
func (m *SyncMetrics) AddPending(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.pendingItems.Add(ctx, delta)
}
