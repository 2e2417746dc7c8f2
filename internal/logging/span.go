package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the OpenTelemetry tracer core operations report to.
const TracerName = "github.com/vidtube/backend"

// Span times one core operation (login, refresh, toggle) and tags its log lines with
// trace and span identifiers. It also drives an OpenTelemetry span, which is a no-op until
// a tracer provider is installed.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	failed error
	otel   trace.Span
}

// StartSpan derives a child span from ctx. The trace id is inherited from the request when
// present, then from an incoming W3C trace context.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	parentOTel := trace.SpanContextFromContext(ctx)
	ctx, otelSpan := otel.Tracer(TracerName).Start(ctx, name)
	otelCtx := otelSpan.SpanContext()

	logger := FromContext(ctx)

	traceID := TraceIDFromContext(ctx)
	if traceID == "" && otelCtx.HasTraceID() {
		traceID = otelCtx.TraceID().String()
	}
	if traceID == "" {
		traceID = RequestIDFromContext(ctx)
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	if TraceIDFromContext(ctx) == "" {
		ctx = WithTraceID(ctx, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	if otelCtx.HasSpanID() && otelCtx.SpanID() != parentOTel.SpanID() {
		spanID = otelCtx.SpanID().String()
	}
	attrs := []any{slog.String("span_id", spanID), slog.String("span", name)}
	if parent := stringFrom(ctx, spanIDKey); parent != "" {
		attrs = append(attrs, slog.String("parent_span_id", parent))
	}
	logger = logger.With(attrs...)

	ctx = withString(ctx, spanIDKey, spanID)
	ctx = WithLogger(ctx, logger)

	return ctx, &Span{name: name, logger: logger, start: time.Now(), otel: otelSpan}
}

// Fail marks the span as failed; End then logs at warn with the error attached.
func (s *Span) Fail(err error) {
	if s != nil && err != nil {
		s.failed = err
	}
}

// End emits the completion entry for the span.
func (s *Span) End() {
	if s == nil {
		return
	}
	defer s.otel.End()

	elapsed := slog.Duration("duration", time.Since(s.start))
	if s.failed != nil {
		s.otel.RecordError(s.failed)
		s.otel.SetStatus(codes.Error, s.failed.Error())
		s.logger.Warn("span failed", elapsed, Err(s.failed))
		return
	}
	s.logger.Debug("span completed", elapsed)
}
