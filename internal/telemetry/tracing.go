// Package telemetry sets up OpenTelemetry tracing. Finished spans are written to the log.
package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used across gokino
const InstrumentationName = "github.com/amaumene/gokino"

// NewTracerProvider creates a provider that logs every finished span at debug level
func NewTracerProvider(logger *logrus.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(&logProcessor{logger: logger}),
	)
}

// Tracer returns the gokino tracer of a provider
func Tracer(provider trace.TracerProvider) trace.Tracer {
	return provider.Tracer(InstrumentationName)
}

// logProcessor writes finished spans through logrus
type logProcessor struct {
	logger *logrus.Logger
}

func (p *logProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {}

func (p *logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if !p.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	fields := logrus.Fields{
		"span":        s.Name(),
		"trace_id":    s.SpanContext().TraceID().String(),
		"duration_ms": s.EndTime().Sub(s.StartTime()).Milliseconds(),
		"status":      s.Status().Code.String(),
	}
	for _, attr := range s.Attributes() {
		fields[string(attr.Key)] = attr.Value.Emit()
	}
	if desc := s.Status().Description; desc != "" {
		fields["error"] = desc
	}
	p.logger.WithFields(fields).Debug("Span finished")
}

func (p *logProcessor) Shutdown(ctx context.Context) error { return nil }

func (p *logProcessor) ForceFlush(ctx context.Context) error { return nil }
