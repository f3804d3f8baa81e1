package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/config"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/mocks"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/auth"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/telemetry"
)

const (
	candidateToken = "candidate-token"
	employerToken  = "employer-token"
	candidateEmail = "candidate@example.com"
	employerEmail  = "employer@example.com"
)

func testVerifier() auth.Verifier {
	return auth.NewStaticVerifier(map[string]config.Identity{
		candidateToken: {Email: candidateEmail, Name: "Candidate"},
		employerToken:  {Email: employerEmail, Name: "Employer"},
	})
}

func startServer(t *testing.T, convRepo *mocks.ConversationRepositoryMock, msgRepo *mocks.MessageRepositoryMock) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(zerolog.Nop())
	emitter := telemetry.NewAuditEmitter(nil, "messaging.ws", "test", "test", zerolog.Nop())
	handler := NewSessionHandler(hub, convRepo, msgRepo, testVerifier(), emitter, zerolog.Nop())

	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType models.FrameType, payload any) {
	t.Helper()
	frame, err := models.NewFrame(frameType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame models.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// readFrameOfType skips unrelated frames (presence broadcasts and the
// like) until one of the wanted type arrives.
func readFrameOfType(t *testing.T, conn *websocket.Conn, want models.FrameType) models.Frame {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame := readFrame(t, conn)
		if frame.Type == want {
			return frame
		}
	}
	t.Fatalf("frame of type %s never arrived", want)
	return models.Frame{}
}

func authenticate(t *testing.T, conn *websocket.Conn, token string) models.AuthenticationSuccessPayload {
	t.Helper()
	sendFrame(t, conn, models.FrameAuthenticate, models.AuthenticatePayload{Token: token})

	frame := readFrame(t, conn)
	require.Equal(t, models.FrameAuthenticationSuccess, frame.Type)
	var payload models.AuthenticationSuccessPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))

	frame = readFrame(t, conn)
	require.Equal(t, models.FrameConnectionEstablished, frame.Type)
	frame = readFrame(t, conn)
	require.Equal(t, models.FrameOnlineUsersList, frame.Type)
	return payload
}

func participantConv(id string, status models.ConversationStatus) models.Conversation {
	return models.Conversation{
		ID:     id,
		Status: status,
		Participants: []models.Participant{
			{Type: models.ParticipantCandidate, ID: "cand-1", Email: candidateEmail},
			{Type: models.ParticipantEmployer, ID: "emp-1", Email: employerEmail},
		},
	}
}

func TestHandshakeSuccess(t *testing.T) {
	url := startServer(t, new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))
	conn := dial(t, url)

	identity := authenticate(t, conn, candidateToken)
	assert.Equal(t, candidateEmail, identity.UserEmail)
	assert.Equal(t, "Candidate", identity.UserName)
}

func TestHandshakeInvalidToken(t *testing.T) {
	url := startServer(t, new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))
	conn := dial(t, url)

	sendFrame(t, conn, models.FrameAuthenticate, models.AuthenticatePayload{Token: "wrong"})

	frame := readFrame(t, conn)
	require.Equal(t, models.FrameError, frame.Type)
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, models.ErrCodeAuthFailed, payload.Code)
}

func TestHandshakeWrongFirstFrame(t *testing.T) {
	url := startServer(t, new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))
	conn := dial(t, url)

	sendFrame(t, conn, models.FrameJoinConversation, models.JoinConversationPayload{ConversationID: "conv-1"})

	frame := readFrame(t, conn)
	require.Equal(t, models.FrameError, frame.Type)
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, models.ErrCodeAuthRequired, payload.Code)
}

func TestJoinConversationLoadsHistory(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	url := startServer(t, convRepo, msgRepo)

	history := []models.Message{
		{ID: "m1", ConversationID: "conv-1", SenderEmail: employerEmail, Content: "hello", CreatedAt: time.Now().Add(-time.Minute)},
	}
	convRepo.On("IsParticipant", mock.Anything, "conv-1", candidateEmail).Return(true, nil).Once()
	msgRepo.On("ListForConversation", mock.Anything, "conv-1").Return(history, nil).Once()

	conn := dial(t, url)
	authenticate(t, conn, candidateToken)

	sendFrame(t, conn, models.FrameJoinConversation, models.JoinConversationPayload{ConversationID: "conv-1"})
	frame := readFrameOfType(t, conn, models.FrameMessagesLoaded)

	var payload models.MessagesLoadedPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "conv-1", payload.ConversationID)
	require.Len(t, payload.Messages, 1)
	assert.Equal(t, "m1", payload.Messages[0].ID)

	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestJoinConversationRejectsNonParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	url := startServer(t, convRepo, new(mocks.MessageRepositoryMock))

	convRepo.On("IsParticipant", mock.Anything, "conv-9", candidateEmail).Return(false, nil).Once()

	conn := dial(t, url)
	authenticate(t, conn, candidateToken)

	sendFrame(t, conn, models.FrameJoinConversation, models.JoinConversationPayload{ConversationID: "conv-9"})
	frame := readFrameOfType(t, conn, models.FrameError)

	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, models.ErrCodeNotParticipant, payload.Code)
	convRepo.AssertExpectations(t)
}

func TestSendMessageEchoAndBroadcast(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	url := startServer(t, convRepo, msgRepo)

	conv := participantConv("conv-1", models.ConversationActive)
	convRepo.On("IsParticipant", mock.Anything, "conv-1", mock.Anything).Return(true, nil).Twice()
	msgRepo.On("ListForConversation", mock.Anything, "conv-1").Return([]models.Message{}, nil).Twice()
	convRepo.On("Get", mock.Anything, "conv-1").Return(conv, nil).Once()

	stored := models.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderEmail:    candidateEmail,
		SenderType:     models.ParticipantCandidate,
		Content:        "hi there",
		ContentType:    models.ContentText,
		ReadBy:         []string{candidateEmail},
		CreatedAt:      time.Now(),
	}
	msgRepo.On("Create", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ConversationID == "conv-1" && m.Content == "hi there" && m.SenderEmail == candidateEmail
	})).Return(stored, nil).Once()

	sender := dial(t, url)
	authenticate(t, sender, candidateToken)
	receiver := dial(t, url)
	authenticate(t, receiver, employerToken)

	sendFrame(t, sender, models.FrameJoinConversation, models.JoinConversationPayload{ConversationID: "conv-1"})
	readFrameOfType(t, sender, models.FrameMessagesLoaded)
	sendFrame(t, receiver, models.FrameJoinConversation, models.JoinConversationPayload{ConversationID: "conv-1"})
	readFrameOfType(t, receiver, models.FrameMessagesLoaded)

	sendFrame(t, sender, models.FrameSendMessage, models.SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "hi there",
		ContentType:    models.ContentText,
		ClientID:       "client-123",
	})

	echo := readFrameOfType(t, sender, models.FrameMessageSent)
	var echoPayload models.MessageSentPayload
	require.NoError(t, json.Unmarshal(echo.Payload, &echoPayload))
	assert.Equal(t, "m1", echoPayload.Message.ID)
	assert.Equal(t, "client-123", echoPayload.ClientID, "client correlation id must round-trip")

	broadcast := readFrameOfType(t, receiver, models.FrameNewMessage)
	var newPayload models.NewMessagePayload
	require.NoError(t, json.Unmarshal(broadcast.Payload, &newPayload))
	assert.Equal(t, "m1", newPayload.Message.ID)

	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	url := startServer(t, new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))
	conn := dial(t, url)
	authenticate(t, conn, candidateToken)

	sendFrame(t, conn, models.FrameSendMessage, models.SendMessagePayload{ConversationID: "conv-1", Content: "   "})
	frame := readFrameOfType(t, conn, models.FrameError)

	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, models.ErrCodeEmptyContent, payload.Code)
}

func TestSendMessageRejectsArchivedConversation(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	url := startServer(t, convRepo, new(mocks.MessageRepositoryMock))

	convRepo.On("Get", mock.Anything, "conv-1").
		Return(participantConv("conv-1", models.ConversationArchived), nil).Once()

	conn := dial(t, url)
	authenticate(t, conn, candidateToken)

	sendFrame(t, conn, models.FrameSendMessage, models.SendMessagePayload{ConversationID: "conv-1", Content: "hi"})
	frame := readFrameOfType(t, conn, models.FrameError)

	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, models.ErrCodeConversationState, payload.Code)
	convRepo.AssertExpectations(t)
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	url := startServer(t, convRepo, new(mocks.MessageRepositoryMock))

	conv := participantConv("conv-1", models.ConversationActive)
	conv.Participants = conv.Participants[1:]
	convRepo.On("Get", mock.Anything, "conv-1").Return(conv, nil).Once()

	conn := dial(t, url)
	authenticate(t, conn, candidateToken)

	sendFrame(t, conn, models.FrameSendMessage, models.SendMessagePayload{ConversationID: "conv-1", Content: "hi"})
	frame := readFrameOfType(t, conn, models.FrameError)

	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, models.ErrCodeNotParticipant, payload.Code)
	convRepo.AssertExpectations(t)
}

func TestPresenceBroadcasts(t *testing.T) {
	url := startServer(t, new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))

	first := dial(t, url)
	authenticate(t, first, candidateToken)

	second := dial(t, url)
	authenticate(t, second, employerToken)

	online := readFrameOfType(t, first, models.FrameUserOnline)
	var user models.OnlineUser
	require.NoError(t, json.Unmarshal(online.Payload, &user))
	assert.Equal(t, employerEmail, user.UserEmail)

	second.Close()

	offline := readFrameOfType(t, first, models.FrameUserOffline)
	require.NoError(t, json.Unmarshal(offline.Payload, &user))
	assert.Equal(t, employerEmail, user.UserEmail)
}
