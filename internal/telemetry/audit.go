package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Publisher delivers audit events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes websocket lifecycle events for observability
// pipelines. Emission is best-effort; failures never affect the caller.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         zerolog.Logger
}

// AuditEnvelope is the versioned event wrapper on the bus.
type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	UserEmail     string       `json:"user_email,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

// AuditPayload carries the event specifics.
type AuditPayload struct {
	Event          string `json:"event"`
	ConversationID string `json:"conversation_id,omitempty"`
	ConnID         string `json:"conn_id,omitempty"`
	DurationMS     int64  `json:"duration_ms,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// NewAuditEmitter builds an AuditEmitter. A nil publisher yields a
// logging-only emitter.
func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes one websocket lifecycle event.
func (e *AuditEmitter) Emit(ctx context.Context, userEmail string, payload AuditPayload) {
	if e == nil {
		return
	}

	e.log.Debug().Str("event", payload.Event).Str("user", userEmail).Str("conn_id", payload.ConnID).Msg("audit emit")
	if e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "ws_events",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		UserEmail:     userEmail,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn().Err(err).Msg("audit publish failed")
	}
}
