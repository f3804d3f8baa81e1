package models

import "time"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationArchived ConversationStatus = "ARCHIVED"
	ConversationClosed   ConversationStatus = "CLOSED"
)

// CanSend reports whether new messages may be sent to a conversation in
// this status. ARCHIVED and CLOSED are terminal for the client.
func (s ConversationStatus) CanSend() bool {
	return s == ConversationActive
}

// ParticipantType identifies the kind of actor behind a participant.
type ParticipantType string

const (
	ParticipantCandidate  ParticipantType = "CANDIDATE"
	ParticipantEmployer   ParticipantType = "EMPLOYER"
	ParticipantConsultant ParticipantType = "CONSULTANT"
	ParticipantSystem     ParticipantType = "SYSTEM"
)

// Participant is a member of a conversation, unique by (Type, ID).
type Participant struct {
	Type        ParticipantType `db:"participant_type" json:"type"`
	ID          string          `db:"participant_id" json:"id"`
	Email       string          `db:"email" json:"email"`
	DisplayName string          `db:"display_name" json:"display_name,omitempty"`
}

// CandidateSummary is the denormalized candidate header shown in listings.
type CandidateSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Conversation is a message thread between a candidate and one or more
// counterparts, optionally tied to a job posting.
type Conversation struct {
	ID           string             `db:"id" json:"id"`
	Participants []Participant      `json:"participants"`
	Status       ConversationStatus `db:"status" json:"status"`
	JobID        string             `db:"job_id" json:"job_id,omitempty"`
	Candidate    *CandidateSummary  `json:"candidate,omitempty"`
	LastMessage  *Message           `json:"last_message,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether email belongs to one of the participants.
func (c Conversation) HasParticipant(email string) bool {
	for _, p := range c.Participants {
		if p.Email == email {
			return true
		}
	}
	return false
}
