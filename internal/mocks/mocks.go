// Package mocks holds testify mocks for the repository and publisher
// interfaces used across handler and websocket tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, email string) ([]models.Conversation, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, id string) (models.Conversation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Conversation), args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, id, email string) (bool, error) {
	args := m.Called(ctx, id, email)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) LastForConversation(ctx context.Context, conversationID string) (models.Message, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) MarkConversationRead(ctx context.Context, conversationID, readerEmail string) error {
	args := m.Called(ctx, conversationID, readerEmail)
	return args.Error(0)
}
