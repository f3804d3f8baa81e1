// Package client assembles the messaging core: transport channel,
// conversation store, presence tracker, read-state reconciler and
// composer, behind one Session handle that a rendering layer can drive.
package client

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/composer"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/presence"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/readstate"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/rest"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/store"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/transport"
)

// Config holds the endpoints and identity for a messaging session.
type Config struct {
	WSURL  string
	APIURL string
	Token  string
	Logger zerolog.Logger
}

// Session is the live messaging session for one authenticated user.
// All state the UI renders lives in Store and Presence; Session only
// routes events into them.
type Session struct {
	cfg        Config
	log        zerolog.Logger
	channel    *transport.Channel
	store      *store.ConversationStore
	presence   *presence.Tracker
	rest       *rest.Client
	reconciler *readstate.Reconciler
	composer   *composer.Composer

	unsubs []func()
}

// NewSession wires up a disconnected session.
func NewSession(cfg Config) *Session {
	s := &Session{
		cfg:      cfg,
		log:      cfg.Logger,
		store:    store.New(),
		presence: presence.NewTracker(),
		rest:     rest.New(cfg.APIURL, cfg.Token),
	}
	s.channel = transport.NewChannel(transport.Config{
		URL:    cfg.WSURL,
		Token:  cfg.Token,
		Logger: cfg.Logger,
	})
	s.composer = composer.New(s.channel, s.store, s.rest, cfg.Logger)
	return s
}

// Connect establishes the transport, completes the handshake and
// registers all frame routing. It must be called once before anything
// else.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}

	userEmail := s.channel.Identity().UserEmail
	s.reconciler = readstate.New(s.store, s.rest, userEmail, s.log)

	d := s.channel.Dispatcher()
	s.unsubs = append(s.unsubs,
		transport.On(d, models.FrameNewMessage, func(p models.NewMessagePayload) {
			s.store.AddMessage(p.Message.ConversationID, p.Message)
			s.reconciler.HandleIncoming(context.Background(), p.Message)
		}),
		transport.On(d, models.FrameMessageSent, func(p models.MessageSentPayload) {
			// The echo and the room broadcast carry the same server id;
			// store dedup keeps exactly one.
			s.store.AddMessage(p.Message.ConversationID, p.Message)
		}),
		transport.On(d, models.FrameMessagesLoaded, func(p models.MessagesLoadedPayload) {
			s.store.AddMessages(p.ConversationID, p.Messages)
			// History can land after the view opened; its badge must
			// clear the same way live messages do.
			s.reconciler.HandleLoaded(context.Background(), p.ConversationID)
		}),
		transport.On(d, models.FrameOnlineUsersList, func(p models.OnlineUsersListPayload) {
			s.presence.ReplaceAll(p.Users)
		}),
		transport.On(d, models.FrameUserOnline, func(u models.OnlineUser) {
			s.presence.SetOnline(u)
		}),
		transport.On(d, models.FrameUserOffline, func(u models.OnlineUser) {
			s.presence.SetOffline(u.UserEmail)
		}),
		transport.On(d, models.FrameUserJoined, func(p models.RoomEventPayload) {
			s.log.Debug().Str("conversation_id", p.ConversationID).Str("user", p.UserEmail).Msg("user joined conversation")
		}),
		transport.On(d, models.FrameUserLeft, func(p models.RoomEventPayload) {
			s.log.Debug().Str("conversation_id", p.ConversationID).Str("user", p.UserEmail).Msg("user left conversation")
		}),
		transport.On(d, models.FrameError, func(p models.ErrorPayload) {
			s.log.Warn().Int("code", p.Code).Str("message", p.Message).Msg("server rejected an operation")
		}),
		s.channel.OnStateChange(func(st transport.State) {
			if st == transport.StateReconnecting || st == transport.StateDisconnected {
				// Everything we knew about who is online is stale now;
				// a fresh online_users_list arrives after re-auth.
				s.presence.Reset()
			}
		}),
	)

	return nil
}

// Refresh replaces the conversation list from the REST API.
func (s *Session) Refresh(ctx context.Context) error {
	conversations, err := s.rest.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("refresh conversations: %w", err)
	}
	s.store.SetConversations(conversations)
	return nil
}

// OpenConversation enters a conversation view: joins its room, pulls
// participant detail, and clears its unread badge optimistically.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) error {
	s.channel.JoinConversation(conversationID)

	conv, err := s.rest.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	s.store.UpsertConversation(conv)

	s.reconciler.Open(ctx, conversationID)
	return nil
}

// CloseConversation leaves the conversation view; live updates for it
// are no longer reconciled and the room is not re-joined on reconnect.
func (s *Session) CloseConversation() {
	s.channel.LeaveConversation()
	s.reconciler.Close()
}

// Send dispatches a text message to a conversation. See composer.Send
// for the rejection rules.
func (s *Session) Send(conversationID, content string) bool {
	return s.composer.Send(conversationID, content)
}

// SendFile uploads an attachment and sends it as a FILE message.
func (s *Session) SendFile(ctx context.Context, conversationID, filename string, r io.Reader) error {
	return s.composer.SendFile(ctx, conversationID, filename, r)
}

// Store exposes the canonical conversation state for rendering.
func (s *Session) Store() *store.ConversationStore { return s.store }

// Presence exposes the online-counterpart tracker.
func (s *Session) Presence() *presence.Tracker { return s.presence }

// Channel exposes transport state for connection indicators.
func (s *Session) Channel() *transport.Channel { return s.channel }

// UserEmail returns the handshake-confirmed identity.
func (s *Session) UserEmail() string { return s.channel.Identity().UserEmail }

// Close tears down every subscription and the transport.
func (s *Session) Close() error {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	if s.reconciler != nil {
		s.reconciler.Wait()
	}
	return s.channel.Close()
}
