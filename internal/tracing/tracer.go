// Package tracing wraps an otel tracer for the unified message router's
// T-receive spans (spec §4.1 step 1) and the few other boundaries worth
// tracing (adapter decode failures, T4 projection misses). A Tracer built
// by New or NoOp always has a working tracer (the zero Tracer value does
// not) — spec.md §9 calls out that where a
// dependency looks like it wants a singleton, it should instead be a
// no-op value that is safely shared, and that's the shape here: a nil
// otel tracer falls back to the no-op provider rather than panicking or
// requiring every caller to check.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps an otel trace.Tracer.
type Tracer struct {
	tracer trace.Tracer
}

// New wraps t, falling back to a no-op tracer if t is nil.
func New(t trace.Tracer) *Tracer {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer("sessionbroker")
	}
	return &Tracer{tracer: t}
}

// NoOp returns a Tracer that records nothing, for tests and for any
// component that never had a TracerProvider configured.
func NoOp() *Tracer {
	return New(nil)
}

// Recv starts a span for one T1-T4 translation-boundary event, tagging
// it with the unified message type and session id (spec §4.1: "Record
// T-receive trace").
func (t *Tracer) Recv(ctx context.Context, messageType, sessionID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "unifiedmsg.recv",
		trace.WithAttributes(
			attribute.String("unifiedmsg.type", messageType),
			attribute.String("session.id", sessionID),
		),
	)
}

// Unhandled starts a span recording that a unified message type had no
// registered handler (spec §4.1: "Unknown/unmapped: tracer.recv(\"unhandled:<type>\")").
func (t *Tracer) Unhandled(ctx context.Context, messageType, sessionID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "unifiedmsg.recv.unhandled",
		trace.WithAttributes(
			attribute.String("unifiedmsg.type", messageType),
			attribute.String("session.id", sessionID),
		),
	)
}

// Start is a general-purpose passthrough for spans outside the router's
// named boundaries (adapter connect/close, spawn, MCP probe).
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
