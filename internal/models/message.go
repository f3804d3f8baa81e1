package models

import "time"

// ContentType describes what a message body carries.
type ContentType string

const (
	ContentText   ContentType = "TEXT"
	ContentFile   ContentType = "FILE"
	ContentSystem ContentType = "SYSTEM"
)

// Message is a single conversation message. Immutable once created except
// for ReadBy, which only ever grows.
type Message struct {
	ID             string          `db:"id" json:"id"`
	ConversationID string          `db:"conversation_id" json:"conversation_id"`
	SenderEmail    string          `db:"sender_email" json:"sender_email"`
	SenderType     ParticipantType `db:"sender_type" json:"sender_type"`
	SenderID       string          `db:"sender_id" json:"sender_id,omitempty"`
	Content        string          `db:"content" json:"content"`
	ContentType    ContentType     `db:"content_type" json:"content_type"`
	ReadBy         []string        `json:"read_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ReadByUser reports whether email is already in the read set.
func (m Message) ReadByUser(email string) bool {
	for _, e := range m.ReadBy {
		if e == email {
			return true
		}
	}
	return false
}

// UnreadFor reports whether the message counts toward email's unread badge:
// not yet read by them and not authored by them.
func (m Message) UnreadFor(email string) bool {
	return m.SenderEmail != email && !m.ReadByUser(email)
}
