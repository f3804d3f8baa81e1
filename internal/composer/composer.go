// Package composer validates and dispatches outgoing messages.
package composer

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/store"
)

// ErrUploadFailed wraps attachment upload errors; no frame is written and
// the store is untouched when it is returned.
var ErrUploadFailed = errors.New("composer: attachment upload failed")

// FrameSender is the transport surface the composer needs.
type FrameSender interface {
	Send(t models.FrameType, payload any) error
	IsReady() bool
}

// Uploader is the out-of-scope REST upload collaborator; it returns the
// resource URL for a stored attachment.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Composer dispatches send_message frames. It never appends optimistic
// messages locally: the message shows up via the server echo, and the
// client-generated id in the payload lets the echo be correlated.
type Composer struct {
	sender   FrameSender
	store    *store.ConversationStore
	uploader Uploader
	log      zerolog.Logger
}

// New creates a Composer. uploader may be nil when attachments are
// disabled.
func New(sender FrameSender, st *store.ConversationStore, uploader Uploader, log zerolog.Logger) *Composer {
	return &Composer{sender: sender, store: st, uploader: uploader, log: log}
}

// Send validates and dispatches a text message. Returns false, writing
// no frame, when the content is blank, the transport is not connected,
// or the conversation is archived/closed (or unknown).
func (c *Composer) Send(conversationID, content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	if !c.sender.IsReady() {
		c.log.Debug().Str("conversation_id", conversationID).Msg("send rejected, transport not connected")
		return false
	}
	conv, ok := c.store.Conversation(conversationID)
	if !ok || !conv.Status.CanSend() {
		c.log.Debug().Str("conversation_id", conversationID).Str("status", string(conv.Status)).Msg("send rejected by conversation status")
		return false
	}

	err := c.sender.Send(models.FrameSendMessage, models.SendMessagePayload{
		ConversationID: conversationID,
		Content:        content,
		ContentType:    models.ContentText,
		ClientID:       uuid.NewString(),
	})
	return err == nil
}

// SendFile uploads the attachment first and only then dispatches a FILE
// message carrying the returned URL. An upload failure leaves no
// half-sent message anywhere.
func (c *Composer) SendFile(ctx context.Context, conversationID, filename string, r io.Reader) error {
	if c.uploader == nil {
		return errors.New("composer: no uploader configured")
	}
	if !c.sender.IsReady() {
		return errors.New("composer: transport not connected")
	}
	conv, ok := c.store.Conversation(conversationID)
	if !ok || !conv.Status.CanSend() {
		return errors.New("composer: conversation does not accept messages")
	}

	url, err := c.uploader.Upload(ctx, filename, r)
	if err != nil {
		return errors.Join(ErrUploadFailed, err)
	}

	return c.sender.Send(models.FrameSendMessage, models.SendMessagePayload{
		ConversationID: conversationID,
		Content:        url,
		ContentType:    models.ContentFile,
		ClientID:       uuid.NewString(),
	})
}
