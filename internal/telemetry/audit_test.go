package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "messaging.ws", "candidate-messaging", "test", zerolog.Nop())

	var captured AuditEnvelope
	publisher.On("Publish", mock.Anything, "messaging.ws", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(AuditEnvelope)
		if ok {
			captured = envelope
		}
		return ok
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "candidate@example.com", AuditPayload{
		Event:  "ws_connect",
		ConnID: "conn-1",
	})

	publisher.AssertExpectations(t)
	assert.Equal(t, 1, captured.SchemaVersion)
	assert.Equal(t, "ws_events", captured.EventType)
	assert.Equal(t, "candidate-messaging", captured.Service)
	assert.Equal(t, "candidate@example.com", captured.UserEmail)
	assert.Equal(t, "ws_connect", captured.Payload.Event)
	require.NotEmpty(t, captured.OccurredAt)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "messaging.ws", "candidate-messaging", "test", zerolog.Nop())

	publisher.On("Publish", mock.Anything, "messaging.ws", mock.Anything).Return(assert.AnError).Once()

	emitter.Emit(context.Background(), "candidate@example.com", AuditPayload{Event: "ws_disconnect"})
	publisher.AssertExpectations(t)
}

func TestEmitWithoutPublisherOnlyLogs(t *testing.T) {
	emitter := NewAuditEmitter(nil, "messaging.ws", "candidate-messaging", "test", zerolog.Nop())
	emitter.Emit(context.Background(), "candidate@example.com", AuditPayload{Event: "ws_connect"})
}
