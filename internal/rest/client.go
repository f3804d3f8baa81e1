// Package rest wraps the portal's conversation REST endpoints consumed
// by the messaging core.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

// Client calls the conversation REST API. Authentication/session
// management lives elsewhere; the client only carries a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client. If baseURL is empty, HRM8_API_URL is used,
// defaulting to localhost.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("HRM8_API_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8083"
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListConversations fetches the user's conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var result struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, "", &result); err != nil {
		return nil, err
	}
	return result.Conversations, nil
}

// GetConversation fetches one conversation with participant detail.
func (c *Client) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+id, nil, "", &conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// MarkConversationRead persists read state server-side. Idempotent.
func (c *Client) MarkConversationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/conversations/"+id+"/read", nil, "", nil)
}

// Upload stores an attachment and returns its resource URL.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/upload", &buf, mw.FormDataContentType(), &result); err != nil {
		return "", err
	}
	return result.URL, nil
}
