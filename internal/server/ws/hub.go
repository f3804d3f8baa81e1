package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

// Client is one authenticated websocket connection. Writes are
// serialized per connection.
type Client struct {
	conn *websocket.Conn
	user models.OnlineUser

	writeMu sync.Mutex
}

// Send writes a frame to this client.
func (c *Client) Send(frame models.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// User returns the identity bound at handshake time.
func (c *Client) User() models.OnlineUser { return c.user }

// Hub maintains the set of connected clients and the per-conversation
// rooms they have joined.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*Client
	rooms   map[string]map[*websocket.Conn]*Client
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*Client),
		rooms:   make(map[string]map[*websocket.Conn]*Client),
		log:     log,
	}
}

// Register adds an authenticated connection and announces the user to
// everyone else.
func (h *Hub) Register(conn *websocket.Conn, user models.OnlineUser) *Client {
	client := &Client{conn: conn, user: user}

	h.mu.Lock()
	h.clients[conn] = client
	h.mu.Unlock()

	frame, err := models.NewFrame(models.FrameUserOnline, user)
	if err == nil {
		h.broadcastAll(frame, conn)
	}
	return client
}

// Unregister removes a connection from every room and the client set,
// announcing user_left per room and user_offline globally.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, conn)

	var left []string
	for conversationID, members := range h.rooms {
		if _, in := members[conn]; in {
			delete(members, conn)
			left = append(left, conversationID)
			if len(members) == 0 {
				delete(h.rooms, conversationID)
			}
		}
	}
	h.mu.Unlock()

	for _, conversationID := range left {
		frame, err := models.NewFrame(models.FrameUserLeft, models.RoomEventPayload{
			ConversationID: conversationID,
			UserEmail:      client.user.UserEmail,
			UserName:       client.user.UserName,
		})
		if err == nil {
			h.BroadcastRoom(conversationID, frame, nil)
		}
	}

	frame, err := models.NewFrame(models.FrameUserOffline, client.user)
	if err == nil {
		h.broadcastAll(frame, nil)
	}
}

// JoinRoom adds a connection to a conversation room and announces it to
// the other members.
func (h *Hub) JoinRoom(conversationID string, conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := h.rooms[conversationID]; !exists {
		h.rooms[conversationID] = make(map[*websocket.Conn]*Client)
	}
	h.rooms[conversationID][conn] = client
	h.mu.Unlock()

	frame, err := models.NewFrame(models.FrameUserJoined, models.RoomEventPayload{
		ConversationID: conversationID,
		UserEmail:      client.user.UserEmail,
		UserName:       client.user.UserName,
	})
	if err == nil {
		h.BroadcastRoom(conversationID, frame, conn)
	}
}

// BroadcastRoom sends a frame to every member of a conversation room,
// optionally skipping one connection.
func (h *Hub) BroadcastRoom(conversationID string, frame models.Frame, except *websocket.Conn) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[conversationID]))
	for conn, client := range h.rooms[conversationID] {
		if conn == except {
			continue
		}
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if err := client.Send(frame); err != nil {
			h.log.Warn().Err(err).Str("user", client.user.UserEmail).Msg("websocket write error")
		}
	}
}

// OnlineUsers returns a snapshot of everyone currently connected.
func (h *Hub) OnlineUsers() []models.OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]models.OnlineUser, 0, len(h.clients))
	for _, client := range h.clients {
		users = append(users, client.user)
	}
	return users
}

func (h *Hub) broadcastAll(frame models.Frame, except *websocket.Conn) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for conn, client := range h.clients {
		if conn == except {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.Send(frame); err != nil {
			h.log.Warn().Err(err).Str("user", client.user.UserEmail).Msg("websocket write error")
		}
	}
}
