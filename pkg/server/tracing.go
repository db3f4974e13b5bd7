package server

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/c2w-dev/c2w/pkg/protocol"
)

// Default tracer name for the protocol server.
const defaultTracerName = "c2w"

// startFrameSpan starts the span covering the handling of one received frame.
func (p *Peer) startFrameSpan() trace.Span {
	_, span := p.srv.tracer.Start(context.Background(), "c2w.frame",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("c2w.peer", p.identity),
			attribute.String("c2w.transport", p.transport),
		),
	)
	return span
}

func annotateFrame(span trace.Span, m *protocol.Message) {
	span.SetAttributes(
		attribute.String("c2w.msg_type", m.Type.String()),
		attribute.Int("c2w.seq", int(m.Seq)),
	)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
