package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationStatusCanSend(t *testing.T) {
	assert.True(t, ConversationActive.CanSend())
	assert.False(t, ConversationArchived.CanSend())
	assert.False(t, ConversationClosed.CanSend())
	assert.False(t, ConversationStatus("UNKNOWN").CanSend())
}

func TestMessageUnreadFor(t *testing.T) {
	msg := Message{SenderEmail: "employer@example.com", ReadBy: []string{"employer@example.com"}}

	assert.True(t, msg.UnreadFor("candidate@example.com"))
	assert.False(t, msg.UnreadFor("employer@example.com"), "own messages never count as unread")

	msg.ReadBy = append(msg.ReadBy, "candidate@example.com")
	assert.False(t, msg.UnreadFor("candidate@example.com"))
}

func TestHasParticipant(t *testing.T) {
	conv := Conversation{Participants: []Participant{
		{Type: ParticipantCandidate, Email: "candidate@example.com"},
	}}

	assert.True(t, conv.HasParticipant("candidate@example.com"))
	assert.False(t, conv.HasParticipant("stranger@example.com"))
}

func TestIsAuthErrorCode(t *testing.T) {
	assert.True(t, IsAuthErrorCode(ErrCodeAuthFailed))
	assert.True(t, IsAuthErrorCode(ErrCodeAuthTimeout))
	assert.True(t, IsAuthErrorCode(ErrCodeAuthRequired))
	assert.False(t, IsAuthErrorCode(ErrCodeNotParticipant))
	assert.False(t, IsAuthErrorCode(ErrCodeInternal))
}

func TestFrameRoundTrip(t *testing.T) {
	frame, err := NewFrame(FrameSendMessage, SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "hello",
		ContentType:    ContentText,
		ClientID:       "c1",
	})
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded Frame
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, FrameSendMessage, decoded.Type)

	var payload SendMessagePayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "conv-1", payload.ConversationID)
	assert.Equal(t, "c1", payload.ClientID)
}

func TestFrameWithoutPayload(t *testing.T) {
	frame, err := NewFrame(FrameConnectionEstablished, nil)
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection_established"}`, string(data))
}
