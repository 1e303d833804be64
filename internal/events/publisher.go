// Package events connects the tracking core to NATS so that location updates
// reach subscribers attached to other gateway instances.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// DefaultSubject carries every location event for the fleet.
const DefaultSubject = "school.vehicles.location"

const (
	headerEventType = "x-event-type"
	headerOrigin    = "x-origin"
	headerTraceID   = "x-trace-id"
)

// Publisher writes location events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher builds a Publisher. An empty subject selects DefaultSubject.
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

// Publish satisfies domain.EventPublisher. A nil receiver or connection is a
// no-op so single-instance deployments can run without NATS.
func (p *Publisher) Publish(ctx context.Context, event domain.LocationEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal location event: %w", err)
	}

	return p.conn.PublishMsg(&nats.Msg{Subject: p.subject, Data: payload, Header: nats.Header{
		headerEventType: {event.Type},
		headerOrigin:    {event.Origin},
		headerTraceID:   {traceIDFromContext(ctx)},
	}})
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
