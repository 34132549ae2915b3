// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

// Package rbridgeotel provides OpenTelemetry instrumentation for the runtime
// bridge. It implements the [rbridge.DispatchHook] interface to add tracing
// and metrics to payload dispatch.
//
// Usage:
//
//	d, _ := rbridge.New(rt)
//	rbridgeotel.InstrumentDispatcher(d, rbridgeotel.DefaultConfig())
package rbridgeotel

import (
	"context"
	"fmt"
	"time"

	"github.com/RGenomicsETL/RBCFTools-sub002/rbridge"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "rbridge"

// OtelConfig configures OpenTelemetry instrumentation for a dispatcher.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed dispatches.
	// Default true.
	RecordExceptions bool
	// ServiceName is the rpc.service attribute value.
	// Defaults to Dispatcher.Name() or "rbridge".
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with sensible defaults.
// TracerProvider and MeterProvider are resolved from the global OTel SDK at
// instrumentation time.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentDispatcher attaches OpenTelemetry instrumentation to a
// dispatcher. The hook is installed via [rbridge.Dispatcher.SetDispatchHook];
// install before producers start submitting.
func InstrumentDispatcher(d *rbridge.Dispatcher, cfg OtelConfig) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.ServiceName == "" {
		if n := d.Name(); n != "" {
			cfg.ServiceName = n
		} else {
			cfg.ServiceName = "rbridge"
		}
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.dispatchCounter, _ = meter.Int64Counter("rbridge.dispatches",
			metric.WithUnit("{dispatch}"),
			metric.WithDescription("Number of dispatched payloads"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("rbridge.exec.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Payload execution duration"),
		)
		hook.queueWaitHistogram, _ = meter.Float64Histogram("rbridge.queue.wait",
			metric.WithUnit("s"),
			metric.WithDescription("Time requests spend queued before execution"),
		)
	}

	d.SetDispatchHook(hook)
}

// otelHook implements rbridge.DispatchHook with OpenTelemetry tracing and metrics.
type otelHook struct {
	cfg                OtelConfig
	tracer             trace.Tracer
	dispatchCounter    metric.Int64Counter
	durationHistogram  metric.Float64Histogram
	queueWaitHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnDispatchStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnDispatchStart starts an internal span for the payload execution.
func (h *otelHook) OnDispatchStart(ctx context.Context, info rbridge.DispatchInfo) (context.Context, rbridge.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	spanName := fmt.Sprintf("rbridge/%s", info.Origin)

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "rbridge"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rbridge.origin", info.Origin),
		attribute.String("rbridge.request_id", info.RequestID),
		attribute.String("rbridge.expect", info.Expect.String()),
		attribute.Int("rbridge.source_len", info.SourceLen),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnDispatchEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnDispatchEnd(ctx context.Context, token rbridge.HookToken, info rbridge.DispatchInfo, stats *rbridge.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "rbridge"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rbridge.origin", info.Origin),
			attribute.String("status", status),
		)
		if h.dispatchCounter != nil {
			h.dispatchCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
		if h.queueWaitHistogram != nil && stats != nil && info.Origin == rbridge.DispatchQueued {
			h.queueWaitHistogram.Record(ctx, stats.QueueWait.Seconds(), metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int("rbridge.queue_depth", stats.QueueDepth),
				attribute.Int64("rbridge.queue_wait_us", stats.QueueWait.Microseconds()),
				attribute.String("rbridge.result_kind", stats.ResultKind.String()),
				attribute.Int("rbridge.result_len", stats.ResultLen),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			errType := fmt.Sprintf("%T", err)
			if evalErr, ok := err.(*rbridge.EvalError); ok {
				errType = string(evalErr.Code)
			}
			st.span.SetAttributes(attribute.String("rbridge.error_type", errType))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}
