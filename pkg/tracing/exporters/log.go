package exporters

import (
	"context"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter writes finished spans to the logger at debug level. It is used when no collector
// is configured so phase timings still show up in the run log. A nil logger drops spans.
type LogExporter struct {
	Logger ectologger.Logger
}

func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.Logger == nil {
		return nil
	}
	for _, span := range spans {
		fields := map[string]any{
			"trace_id":    span.SpanContext().TraceID().String(),
			"span_id":     span.SpanContext().SpanID().String(),
			"duration_ms": span.EndTime().Sub(span.StartTime()).Milliseconds(),
		}
		for _, attr := range span.Attributes() {
			fields[string(attr.Key)] = attr.Value.Emit()
		}
		log := e.Logger.WithContext(ctx).WithFields(fields)
		if span.Status().Code == codes.Error {
			log.Debugf("Span %s failed: %s", span.Name(), span.Status().Description)
			continue
		}
		log.Debugf("Span %s finished", span.Name())
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error {
	return nil
}
