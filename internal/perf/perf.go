// Package perf records lightweight tracing spans for diagnostics. Spans are
// collected in-process through the OpenTelemetry SDK and are never shipped
// anywhere; they exist so debug runs can explain where the time went.
package perf

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/laerinok/vs-mods-updater"

var (
	initOnce sync.Once
	exporter *spanExporter
	provider *sdktrace.TracerProvider
)

func ensureProvider() *sdktrace.TracerProvider {
	initOnce.Do(func() {
		exporter = newSpanExporter()
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		)
	})
	return provider
}

type Span struct {
	span oteltrace.Span
}

func (s *Span) SetAttributes(attributes ...attribute.KeyValue) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(attributes...)
}

func (s *Span) End() {
	if s == nil || s.span == nil {
		return
	}
	s.span.End()
}

type startOption func(*startConfig)

type startConfig struct {
	attributes []attribute.KeyValue
}

func WithAttributes(attributes ...attribute.KeyValue) startOption {
	return func(cfg *startConfig) {
		cfg.attributes = append(cfg.attributes, attributes...)
	}
}

// StartSpan opens a named span as a child of whatever span lives in ctx.
// A nil context is tolerated for callers running before command setup.
func StartSpan(ctx context.Context, name string, opts ...startOption) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := startConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	tracer := ensureProvider().Tracer(tracerName)
	ctx, span := tracer.Start(ctx, name, oteltrace.WithAttributes(cfg.attributes...))
	return ctx, &Span{span: span}
}

// SnapshotSpans returns every span finished so far.
func SnapshotSpans() []sdktrace.ReadOnlySpan {
	ensureProvider()
	return exporter.Snapshot()
}

// ResetForTesting drops all collected spans.
func ResetForTesting() {
	ensureProvider()
	exporter.Reset()
}
