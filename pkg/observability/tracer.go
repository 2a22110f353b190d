// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Tracer wraps an OpenTelemetry tracer with the write-path span helpers the
// generation pipeline and librarian scheduler call at their instrumentation
// points.
type Tracer struct {
	provider       *sdktrace.TracerProvider
	tracer         trace.Tracer
	debugExporter  *DebugExporter
	capturePayload bool
	serviceName    string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithDebugExporter attaches an in-memory span exporter for local inspection.
func WithDebugExporter(exporter *DebugExporter) TracerOption {
	return func(t *Tracer) {
		t.debugExporter = exporter
	}
}

// WithCapturePayloads enables capturing generation event ids on spans, for
// cross-referencing against the debug exporter.
func WithCapturePayloads(capture bool) TracerOption {
	return func(t *Tracer) {
		t.capturePayload = capture
	}
}

// NewTracer builds a Tracer from configuration. It returns (nil, nil) when
// tracing is disabled, so callers can pass the result straight to a Manager
// without a nil-conditional.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracer{
		provider:    provider,
		tracer:      provider.Tracer(cfg.ServiceName),
		serviceName: cfg.ServiceName,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.debugExporter != nil {
		provider.RegisterSpanProcessor(sdktrace.NewSimpleSpanProcessor(t.debugExporter))
	}

	return t, nil
}

func createExporter(ctx context.Context, cfg *TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		return createOTLPExporter(ctx, cfg)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "jaeger", "zipkin":
		// Modern collectors for both accept OTLP directly.
		return createOTLPExporter(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

func createOTLPExporter(ctx context.Context, cfg *TracingConfig) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}

	if cfg.IsInsecure() {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	return otlptracegrpc.New(ctx, opts...)
}

// Start begins a bare span with the given name.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartGeneration begins a span covering one pipeline.Generate call.
func (t *Tracer) StartGeneration(ctx context.Context, storyID, branchID, mode, providerID, model string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanGeneration,
		trace.WithAttributes(
			attribute.String(AttrStoryID, storyID),
			attribute.String(AttrBranchID, branchID),
			attribute.String(AttrGenerationMode, mode),
			attribute.String(AttrProviderID, providerID),
			attribute.String(AttrLLMModel, model),
		),
	)
}

// StartToolExecution begins a span for one fragment-tool dispatch.
func (t *Tracer) StartToolExecution(ctx context.Context, toolName, callID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanToolExecution,
		trace.WithAttributes(
			attribute.String(AttrToolName, toolName),
			attribute.String(AttrToolCallID, callID),
		),
	)
}

// StartLibrarianRun begins a span for one librarian analysis pass.
func (t *Tracer) StartLibrarianRun(ctx context.Context, storyID string, chainLength int) (context.Context, trace.Span) {
	return t.Start(ctx, SpanLibrarianRun,
		trace.WithAttributes(
			attribute.String(AttrStoryID, storyID),
			attribute.Int(AttrChainLength, chainLength),
		),
	)
}

// StartFragmentWrite begins a span for a fragment store mutation.
func (t *Tracer) StartFragmentWrite(ctx context.Context, storyID, fragmentID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanFragmentWrite,
		trace.WithAttributes(
			attribute.String(AttrStoryID, storyID),
			attribute.String(AttrFragmentID, fragmentID),
		),
	)
}

// AddLLMUsage records input/output token counts on a span.
func (t *Tracer) AddLLMUsage(span trace.Span, inputTokens, outputTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int(AttrLLMTokensInput, inputTokens),
		attribute.Int(AttrLLMTokensOutput, outputTokens),
	)
}

// AddLLMFinishReason records the stream's finish reason on a span.
func (t *Tracer) AddLLMFinishReason(span trace.Span, reason string) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrLLMFinishReason, reason))
}

// AddPayload attaches the event id a span should be retrievable by in the
// debug exporter, when payload capture is enabled.
func (t *Tracer) AddPayload(span trace.Span, eventID string) {
	if span == nil || !t.capturePayload || eventID == "" {
		return
	}
	span.SetAttributes(attribute.String(AttrEventID, eventID))
}

// RecordError records an error on a span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorType, fmt.Sprintf("%T", err)))
}

// DebugExporter returns the debug exporter if one was configured.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown gracefully drains and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// noopSpan returns a span that satisfies trace.Span but records nothing.
func noopSpan() trace.Span {
	_, span := trace.NewNoopTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}
