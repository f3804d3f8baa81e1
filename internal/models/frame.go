package models

import "encoding/json"

// FrameType tags a websocket envelope.
type FrameType string

// Inbound frame types consumed by the client.
const (
	FrameAuthenticationSuccess FrameType = "authentication_success"
	FrameConnectionEstablished FrameType = "connection_established"
	FrameMessagesLoaded        FrameType = "messages_loaded"
	FrameNewMessage            FrameType = "new_message"
	FrameMessageSent           FrameType = "message_sent"
	FrameUserJoined            FrameType = "user_joined"
	FrameUserLeft              FrameType = "user_left"
	FrameOnlineUsersList       FrameType = "online_users_list"
	FrameUserOnline            FrameType = "user_online"
	FrameUserOffline           FrameType = "user_offline"
	FrameError                 FrameType = "error"
)

// Outbound frame types produced by the client.
const (
	FrameAuthenticate     FrameType = "authenticate"
	FrameJoinConversation FrameType = "join_conversation"
	FrameSendMessage      FrameType = "send_message"
)

// Frame is the wire envelope for all websocket traffic.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into an envelope of the given type.
func NewFrame(t FrameType, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Payload: raw}, nil
}

// AuthenticatePayload carries the identity token for the handshake.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// AuthenticationSuccessPayload acknowledges the handshake.
type AuthenticationSuccessPayload struct {
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name,omitempty"`
}

// JoinConversationPayload asks the server to join a conversation room.
type JoinConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

// SendMessagePayload is the outbound message submission. ClientID is a
// client-generated correlation id echoed back in message_sent.
type SendMessagePayload struct {
	ConversationID string      `json:"conversation_id"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type,omitempty"`
	ClientID       string      `json:"client_id,omitempty"`
}

// MessagesLoadedPayload delivers conversation history after a join.
type MessagesLoadedPayload struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// NewMessagePayload broadcasts a freshly persisted message to a room.
type NewMessagePayload struct {
	Message Message `json:"message"`
}

// MessageSentPayload is the sender's echo confirming persistence.
type MessageSentPayload struct {
	Message  Message `json:"message"`
	ClientID string  `json:"client_id,omitempty"`
}

// RoomEventPayload is sent for user_joined / user_left room events.
type RoomEventPayload struct {
	ConversationID string `json:"conversation_id"`
	UserEmail      string `json:"user_email"`
	UserName       string `json:"user_name,omitempty"`
}

// OnlineUser is an entry in the global presence set.
type OnlineUser struct {
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name,omitempty"`
}

// OnlineUsersListPayload is the full presence snapshot sent after auth.
type OnlineUsersListPayload struct {
	Users []OnlineUser `json:"users"`
}

// ErrorPayload is delivered via error frames.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Error frame codes produced by the server contract.
const (
	ErrCodeAuthFailed        = 4001
	ErrCodeAuthTimeout       = 4002
	ErrCodeAuthRequired      = 4003
	ErrCodeNotParticipant    = 4100
	ErrCodeConversationState = 4101
	ErrCodeEmptyContent      = 4102
	ErrCodeInternal          = 5000
)

// IsAuthErrorCode reports whether a server error code means the session's
// credentials are no longer valid and reconnecting is pointless.
func IsAuthErrorCode(code int) bool {
	return code >= ErrCodeAuthFailed && code <= ErrCodeAuthRequired
}
