package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// SpanAttributes is a bag of attributes attached to a span when it starts
// or merged in afterwards.
type SpanAttributes map[string]any

func (s SpanAttributes) attributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(s))
	for k, v := range s {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(kv map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(kv))
	for k, v := range kv {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type spanTracer struct {
	tracer    trace.Tracer
	span      trace.Span
	tracerCtx context.Context // child spans are created from this context
	spanName  string
	attrs     SpanAttributes

	started bool
}

func newSpanTracer(ctx context.Context, tracer trace.Tracer, spanName string) *spanTracer {
	return &spanTracer{
		tracer:    tracer,
		tracerCtx: ctx,
		spanName:  spanName,
		attrs:     make(SpanAttributes),
	}
}

func (t *spanTracer) Start() {
	t.tracerCtx, t.span = t.tracer.Start(t.tracerCtx, t.spanName,
		trace.WithAttributes(t.attrs.attributes()...))
	t.started = true
}

func (t *spanTracer) WithAttributes(attrs SpanAttributes) Tracer {
	for k, v := range attrs {
		t.attrs[k] = v
	}
	if t.started {
		t.span.SetAttributes(t.attrs.attributes()...)
	}
	return t
}

func (t *spanTracer) AddEvent(name string, attrs EventAttributes) {
	if !t.started {
		return
	}
	t.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (t *spanTracer) SetStatus(code codes.Code, message string) {
	if !t.started {
		return
	}
	t.span.SetStatus(code, message)
}

func (t *spanTracer) Spawn(spanName string) Tracer {
	child := newSpanTracer(t.tracerCtx, t.tracer, spanName)
	return child.WithAttributes(t.attrs)
}

// Export serializes the tracing context to a JSON carrier so another
// process can continue the trace.
func (t *spanTracer) Export() string {
	carrier := make(map[string]string)
	otel.GetTextMapPropagator().Inject(t.tracerCtx, propagation.MapCarrier(carrier))
	payload, _ := json.Marshal(carrier)
	return string(payload)
}

func (t *spanTracer) End() {
	if !t.started {
		return
	}
	t.span.End()
}
