// Package handlers exposes the REST surface backing the messaging
// client: conversation listing, read receipts, and file uploads.
package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/repositories"
)

type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	log           zerolog.Logger
}

func NewConversationHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages, log: log}
}

// ListConversations returns every conversation the caller participates
// in, most recently active first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	email := c.GetString("userEmail")

	conversations, err := h.conversations.ListForUser(c.Request.Context(), email)
	if err != nil {
		h.log.Error().Err(err).Str("user", email).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	for i := range conversations {
		last, err := h.messages.LastForConversation(c.Request.Context(), conversations[i].ID)
		if errors.Is(err, repositories.ErrMessageNotFound) {
			continue
		}
		if err != nil {
			h.log.Error().Err(err).Str("conversation_id", conversations[i].ID).Msg("failed to load last message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
			return
		}
		conversations[i].LastMessage = &last
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetConversation returns a single conversation with its participants.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	email := c.GetString("userEmail")
	id := c.Param("id")

	conv, err := h.conversations.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		h.log.Error().Err(err).Str("conversation_id", id).Msg("failed to get conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get conversation"})
		return
	}
	if !conv.HasParticipant(email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	c.JSON(http.StatusOK, conv)
}

// MarkRead stamps every message in the conversation as read by the
// caller. Idempotent.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	email := c.GetString("userEmail")
	id := c.Param("id")

	member, err := h.conversations.IsParticipant(c.Request.Context(), id, email)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", id).Msg("failed to verify membership")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark conversation read"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	if err := h.messages.MarkConversationRead(c.Request.Context(), id, email); err != nil {
		h.log.Error().Err(err).Str("conversation_id", id).Msg("failed to mark conversation read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark conversation read"})
		return
	}

	c.Status(http.StatusNoContent)
}

// UploadHandler stores attachments on local disk and returns the URL
// clients embed in file messages.
type UploadHandler struct {
	dir     string
	baseURL string
	log     zerolog.Logger
}

func NewUploadHandler(dir, baseURL string, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// Upload accepts a multipart "file" field and saves it under a
// generated name, preserving the original extension.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		h.log.Error().Err(err).Str("dir", h.dir).Msg("failed to create upload dir")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	name := uuid.NewString() + filepath.Ext(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(h.dir, name)); err != nil {
		h.log.Error().Err(err).Str("filename", file.Filename).Msg("failed to store file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": h.baseURL + "/" + name})
}
