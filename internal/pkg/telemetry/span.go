package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span is a trace span, which records the returned error when it ends.
type Span interface {
	// End sets the span status from the *errPtr, nil errPtr keeps the status unset.
	End(errPtr *error, opts ...trace.SpanEndOption)
	SetAttributes(kv ...attribute.KeyValue)
	AddEvent(name string, kv ...attribute.KeyValue)
}

type span struct {
	trace.Span
}

func (s span) AddEvent(name string, kv ...attribute.KeyValue) {
	s.Span.AddEvent(name, trace.WithAttributes(kv...))
}

func (s span) End(errPtr *error, opts ...trace.SpanEndOption) {
	switch {
	case errPtr == nil:
	case *errPtr != nil:
		s.RecordError(*errPtr)
		s.SetStatus(codes.Error, (*errPtr).Error())
	default:
		s.SetStatus(codes.Ok, "")
	}
	s.Span.End(opts...)
}
