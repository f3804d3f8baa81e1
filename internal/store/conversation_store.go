// Package store holds the canonical client-side state for conversations
// and their messages. All UI reads derive from here; the transport,
// presence tracker and composer mutate it only through the methods below.
package store

import (
	"sync"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

// ConversationStore maps conversation ids to ordered message lists plus
// the conversation summary list. Messages are kept sorted ascending by
// CreatedAt; equal timestamps preserve arrival order. A message may arrive
// before its conversation summary has been fetched; it is cached anyway.
type ConversationStore struct {
	mu            sync.RWMutex
	order         []string
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
	seen          map[string]map[string]struct{}
}

// New creates an empty ConversationStore.
func New() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		seen:          make(map[string]map[string]struct{}),
	}
}

// SetConversations replaces the summary list after a list fetch. Cached
// messages are preserved, and each summary's LastMessage pointer is
// refreshed from the newest cached message when that one is newer.
func (s *ConversationStore) SetConversations(list []models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.conversations = make(map[string]*models.Conversation, len(list))
	for i := range list {
		conv := list[i]
		s.order = append(s.order, conv.ID)
		s.refreshLastMessage(&conv)
		s.conversations[conv.ID] = &conv
	}
}

// UpsertConversation inserts or replaces a single conversation summary
// (used after an on-demand single-conversation fetch).
func (s *ConversationStore) UpsertConversation(conv models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; !ok {
		s.order = append(s.order, conv.ID)
	}
	s.refreshLastMessage(&conv)
	s.conversations[conv.ID] = &conv
}

func (s *ConversationStore) refreshLastMessage(conv *models.Conversation) {
	msgs := s.messages[conv.ID]
	if len(msgs) == 0 {
		return
	}
	newest := msgs[len(msgs)-1]
	if conv.LastMessage == nil || newest.CreatedAt.After(conv.LastMessage.CreatedAt) {
		conv.LastMessage = &newest
	}
}

// Conversations returns the summary list in fetch order.
func (s *ConversationStore) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		if conv, ok := s.conversations[id]; ok {
			out = append(out, *conv)
		}
	}
	return out
}

// Conversation returns one summary by id.
func (s *ConversationStore) Conversation(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return *conv, true
}

// AddMessage appends a message to its conversation keeping CreatedAt
// order. Duplicate ids (echo of a send plus the room broadcast) are
// discarded. Returns true when the message was actually inserted.
func (s *ConversationStore) AddMessage(conversationID string, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(conversationID, msg)
}

// AddMessages bulk-inserts history (messages_loaded) with the same dedup
// and ordering rules as AddMessage.
func (s *ConversationStore) AddMessages(conversationID string, msgs []models.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, m := range msgs {
		if s.insert(conversationID, m) {
			added++
		}
	}
	return added
}

func (s *ConversationStore) insert(conversationID string, msg models.Message) bool {
	ids, ok := s.seen[conversationID]
	if !ok {
		ids = make(map[string]struct{})
		s.seen[conversationID] = ids
	}
	if _, dup := ids[msg.ID]; dup {
		return false
	}
	ids[msg.ID] = struct{}{}

	msgs := s.messages[conversationID]
	// Insert after any existing message with the same timestamp so that
	// arrival order is stable for ties.
	i := len(msgs)
	for i > 0 && msgs[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	msgs = append(msgs, models.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	s.messages[conversationID] = msgs

	if conv, ok := s.conversations[conversationID]; ok {
		if conv.LastMessage == nil || !msg.CreatedAt.Before(conv.LastMessage.CreatedAt) {
			m := msg
			conv.LastMessage = &m
		}
	}
	return true
}

// Messages returns an ordered snapshot of a conversation's messages;
// empty for unknown conversations.
func (s *ConversationStore) Messages(conversationID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// UnreadCount computes the unread badge for a conversation: messages not
// authored by userEmail and not yet read by them. Always derived, never
// stored, so it cannot drift.
func (s *ConversationStore) UnreadCount(conversationID, userEmail string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.messages[conversationID] {
		if m.UnreadFor(userEmail) {
			n++
		}
	}
	return n
}

// MarkRead adds userEmail to the read set of every message currently in
// the conversation and returns how many changed. Messages inserted after
// this call are unaffected; that is what keeps the optimistic read-mark
// pass from swallowing messages that race the mark-read request.
func (s *ConversationStore) MarkRead(conversationID, userEmail string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ReadByUser(userEmail) {
			continue
		}
		msgs[i].ReadBy = append(msgs[i].ReadBy, userEmail)
		changed++
	}
	return changed
}
