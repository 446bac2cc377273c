package log

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook stamps trace_id and span_id onto every event whose context
// carries a recording span, so log lines can be joined with traces.
type TracingHook struct{}

func (TracingHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	span := trace.SpanFromContext(e.GetCtx())
	if !span.SpanContext().IsValid() {
		return
	}
	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())
}
