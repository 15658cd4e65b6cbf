package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
)

type Tracer interface {
	Start()
	WithAttributes(attrs SpanAttributes) Tracer
	AddEvent(name string, attrs EventAttributes)
	SetStatus(code codes.Code, message string)
	Spawn(spanName string) Tracer
	Export() string
	End()
}

// TracerKey stores and retrieves the active tracer from a context.
type TracerKey struct{}

// FromContext returns the tracer carried by ctx, or a no-op tracer.
func FromContext(ctx context.Context) Tracer {
	if t, ok := ctx.Value(TracerKey{}).(Tracer); ok {
		return t
	}
	return &DummyTracer{}
}

type TracerFactory struct {
	telemetry Telemetry
}

type TracerFactoryParams struct {
	fx.In
	Telemetry Telemetry `optional:"true"`
}

func NewTracerFactory(p TracerFactoryParams) *TracerFactory {
	return &TracerFactory{telemetry: p.Telemetry}
}

// NewTracer returns a tracer rooted at a fresh span, or a no-op tracer when
// telemetry is disabled.
func (t *TracerFactory) NewTracer(ctx context.Context, spanName string) Tracer {
	if t.telemetry == nil || t.telemetry.GetTracer() == nil {
		return &DummyTracer{}
	}
	return newSpanTracer(ctx, t.telemetry.GetTracer(), spanName)
}

// A dummy tracer that does nothing when telemetry is not enabled
type DummyTracer struct{}

func (t *DummyTracer) Start()                                    {}
func (t *DummyTracer) WithAttributes(attrs SpanAttributes) Tracer { return t }
func (t *DummyTracer) AddEvent(name string, attrs EventAttributes) {}
func (t *DummyTracer) SetStatus(code codes.Code, message string) {}
func (t *DummyTracer) Spawn(spanName string) Tracer              { return t }
func (t *DummyTracer) Export() string                            { return "" }
func (t *DummyTracer) End()                                      {}
