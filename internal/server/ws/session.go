package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/config"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/observability"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/auth"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/repositories"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/telemetry"
)

const authDeadline = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionHandler upgrades websocket connections and speaks the frame
// contract: authenticate, join_conversation, send_message inbound;
// everything the client core consumes outbound.
type SessionHandler struct {
	hub           *Hub
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	verifier      auth.Verifier
	emitter       *telemetry.AuditEmitter
	log           zerolog.Logger
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(hub *Hub, conversations repositories.ConversationRepository, messages repositories.MessageRepository, verifier auth.Verifier, emitter *telemetry.AuditEmitter, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		verifier:      verifier,
		emitter:       emitter,
		log:           log,
	}
}

// Handle upgrades the connection and runs the session until it closes.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("candidate-messaging/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	identity, ok := h.authenticate(conn)
	if !ok {
		conn.Close()
		return
	}

	user := models.OnlineUser{UserEmail: identity.Email, UserName: identity.Name}
	client := h.hub.Register(conn, user)
	connID := newConnID()
	connectedAt := time.Now()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.emitter.Emit(ctx, user.UserEmail, telemetry.AuditPayload{Event: "ws_connect", ConnID: connID})

	h.sendFrame(client, models.FrameConnectionEstablished, nil)
	h.sendFrame(client, models.FrameOnlineUsersList, models.OnlineUsersListPayload{Users: h.hub.OnlineUsers()})

	var closeReason string
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.emitter.Emit(context.Background(), user.UserEmail, telemetry.AuditPayload{
			Event:      "ws_disconnect",
			ConnID:     connID,
			DurationMS: time.Since(connectedAt).Milliseconds(),
			Reason:     closeReason,
		})
	}()

	for {
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.emitter.Emit(context.Background(), user.UserEmail, telemetry.AuditPayload{
					Event:      "ws_error",
					ConnID:     connID,
					DurationMS: time.Since(connectedAt).Milliseconds(),
					Reason:     closeReason,
				})
			}
			return
		}

		observability.IncFrameReceived(string(frame.Type))

		switch frame.Type {
		case models.FrameJoinConversation:
			h.handleJoin(c.Request.Context(), client, conn, frame.Payload)
		case models.FrameSendMessage:
			h.handleSend(c.Request.Context(), client, conn, user, frame.Payload)
		default:
			h.log.Debug().Str("frame_type", string(frame.Type)).Msg("ignoring unexpected frame")
		}
	}
}

// authenticate requires an authenticate frame as the first message
// within the auth deadline.
func (h *SessionHandler) authenticate(conn *websocket.Conn) (identity config.Identity, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(authDeadline))
	defer conn.SetReadDeadline(time.Time{})

	var frame models.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		h.writeError(conn, models.ErrCodeAuthTimeout, "authentication timed out")
		return identity, false
	}
	if frame.Type != models.FrameAuthenticate {
		h.writeError(conn, models.ErrCodeAuthRequired, "authenticate frame required")
		return identity, false
	}

	var payload models.AuthenticatePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		h.writeError(conn, models.ErrCodeAuthFailed, "malformed authenticate payload")
		return identity, false
	}

	identity, err := h.verifier.Verify(payload.Token)
	if err != nil {
		h.writeError(conn, models.ErrCodeAuthFailed, "invalid token")
		return identity, false
	}

	success, err := models.NewFrame(models.FrameAuthenticationSuccess, models.AuthenticationSuccessPayload{
		UserEmail: identity.Email,
		UserName:  identity.Name,
	})
	if err != nil {
		return identity, false
	}
	if err := conn.WriteJSON(success); err != nil {
		return identity, false
	}
	return identity, true
}

func (h *SessionHandler) handleJoin(ctx context.Context, client *Client, conn *websocket.Conn, payload json.RawMessage) {
	var req models.JoinConversationPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == "" {
		h.sendError(client, models.ErrCodeInternal, "malformed join_conversation payload")
		return
	}

	member, err := h.conversations.IsParticipant(ctx, req.ConversationID, client.User().UserEmail)
	if err != nil {
		h.sendError(client, models.ErrCodeInternal, "failed to verify membership")
		return
	}
	if !member {
		h.sendError(client, models.ErrCodeNotParticipant, "not a conversation participant")
		return
	}

	h.hub.JoinRoom(req.ConversationID, conn)

	history, err := h.messages.ListForConversation(ctx, req.ConversationID)
	if err != nil {
		h.sendError(client, models.ErrCodeInternal, "failed to load messages")
		return
	}
	h.sendFrame(client, models.FrameMessagesLoaded, models.MessagesLoadedPayload{
		ConversationID: req.ConversationID,
		Messages:       history,
	})
}

func (h *SessionHandler) handleSend(ctx context.Context, client *Client, conn *websocket.Conn, user models.OnlineUser, payload json.RawMessage) {
	var req models.SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(client, models.ErrCodeInternal, "malformed send_message payload")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		h.sendError(client, models.ErrCodeEmptyContent, "message content is empty")
		return
	}

	conv, err := h.conversations.Get(ctx, req.ConversationID)
	if err != nil {
		h.sendError(client, models.ErrCodeNotParticipant, "conversation not found")
		return
	}
	if !conv.HasParticipant(user.UserEmail) {
		h.sendError(client, models.ErrCodeNotParticipant, "not a conversation participant")
		return
	}
	if !conv.Status.CanSend() {
		h.sendError(client, models.ErrCodeConversationState, "conversation does not accept messages")
		return
	}

	msg := models.Message{
		ConversationID: req.ConversationID,
		SenderEmail:    user.UserEmail,
		Content:        req.Content,
		ContentType:    req.ContentType,
	}
	for _, p := range conv.Participants {
		if p.Email == user.UserEmail {
			msg.SenderType = p.Type
			msg.SenderID = p.ID
			break
		}
	}

	stored, err := h.messages.Create(ctx, msg)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("failed to store message")
		h.sendError(client, models.ErrCodeInternal, "failed to store message")
		return
	}

	h.sendFrame(client, models.FrameMessageSent, models.MessageSentPayload{
		Message:  stored,
		ClientID: req.ClientID,
	})

	broadcast, err := models.NewFrame(models.FrameNewMessage, models.NewMessagePayload{Message: stored})
	if err == nil {
		h.hub.BroadcastRoom(req.ConversationID, broadcast, conn)
	}
}

func (h *SessionHandler) sendFrame(client *Client, t models.FrameType, payload any) {
	frame, err := models.NewFrame(t, payload)
	if err != nil {
		h.log.Error().Err(err).Str("frame_type", string(t)).Msg("failed to build frame")
		return
	}
	if err := client.Send(frame); err != nil {
		h.log.Warn().Err(err).Str("frame_type", string(t)).Msg("websocket write error")
		return
	}
	observability.IncFrameSent(string(t))
}

func (h *SessionHandler) sendError(client *Client, code int, message string) {
	h.sendFrame(client, models.FrameError, models.ErrorPayload{Message: message, Code: code})
}

// writeError is used before the client is registered with the hub.
func (h *SessionHandler) writeError(conn *websocket.Conn, code int, message string) {
	frame, err := models.NewFrame(models.FrameError, models.ErrorPayload{Message: message, Code: code})
	if err != nil {
		return
	}
	_ = conn.WriteJSON(frame)
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
