package tracing

import (
	"context"
	"strings"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"kcexplore/pkg/logx"
)

// logExporter writes each finished span as one log line.
type logExporter struct {
	logger *logx.Logger
}

func (e logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		var attrs strings.Builder
		for _, kv := range s.Attributes() {
			attrs.WriteString(" ")
			attrs.WriteString(string(kv.Key))
			attrs.WriteString("=")
			attrs.WriteString(kv.Value.Emit())
		}
		e.logger.Info("🔭 %s %s %v%s", s.Name(), s.Status().Code,
			s.EndTime().Sub(s.StartTime()).Round(time.Millisecond), attrs.String())
	}
	return nil
}

func (logExporter) Shutdown(context.Context) error { return nil }

// NewLogProvider returns a tracer provider that logs every span through
// logger as soon as it ends. Callers must Shutdown it.
func NewLogProvider(logger *logx.Logger) *sdktrace.TracerProvider {
	if logger == nil {
		logger = logx.NewLogger("trace")
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(logExporter{logger: logger}))
}
