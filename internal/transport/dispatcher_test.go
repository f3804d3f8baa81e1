package transport

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

func TestDispatchInvokesAllHandlersForType(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	var first, second, other int
	d.Subscribe(models.FrameNewMessage, func(json.RawMessage) { first++ })
	d.Subscribe(models.FrameNewMessage, func(json.RawMessage) { second++ })
	d.Subscribe(models.FrameUserOnline, func(json.RawMessage) { other++ })

	d.Dispatch(models.Frame{Type: models.FrameNewMessage})

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 0, other)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	var calls int
	unsub := d.Subscribe(models.FrameNewMessage, func(json.RawMessage) { calls++ })

	d.Dispatch(models.Frame{Type: models.FrameNewMessage})
	unsub()
	d.Dispatch(models.Frame{Type: models.FrameNewMessage})

	assert.Equal(t, 1, calls)
}

func TestDispatchUnknownTypeIsNoop(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	d.Dispatch(models.Frame{Type: models.FrameUserOffline})
}

func TestOnDecodesPayload(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	var got models.NewMessagePayload
	On(d, models.FrameNewMessage, func(p models.NewMessagePayload) { got = p })

	frame, err := models.NewFrame(models.FrameNewMessage, models.NewMessagePayload{
		Message: models.Message{ID: "m1", Content: "hi"},
	})
	require.NoError(t, err)
	d.Dispatch(frame)

	assert.Equal(t, "m1", got.Message.ID)
	assert.Equal(t, "hi", got.Message.Content)
}

func TestOnSkipsUndecodablePayload(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	var calls int
	On(d, models.FrameNewMessage, func(models.NewMessagePayload) { calls++ })

	d.Dispatch(models.Frame{Type: models.FrameNewMessage, Payload: json.RawMessage(`{broken`)})
	assert.Equal(t, 0, calls)

	frame, err := models.NewFrame(models.FrameNewMessage, models.NewMessagePayload{})
	require.NoError(t, err)
	d.Dispatch(frame)
	assert.Equal(t, 1, calls)
}

func TestOnHandlesEmptyPayload(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	var calls int
	On(d, models.FrameConnectionEstablished, func(struct{}) { calls++ })

	d.Dispatch(models.Frame{Type: models.FrameConnectionEstablished})
	assert.Equal(t, 1, calls)
}
