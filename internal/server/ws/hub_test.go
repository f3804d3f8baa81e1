package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

// pairConns returns two ends of a real websocket connection.
func pairConns(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	select {
	case serverConn := <-serverConns:
		t.Cleanup(func() { serverConn.Close() })
		return clientConn, serverConn
	case <-time.After(time.Second):
		t.Fatal("server connection never arrived")
		return nil, nil
	}
}

func readWithin(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var frame models.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHubOnlineUsers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	_, aServer := pairConns(t)
	_, bServer := pairConns(t)

	hub.Register(aServer, models.OnlineUser{UserEmail: "a@example.com"})
	hub.Register(bServer, models.OnlineUser{UserEmail: "b@example.com"})

	users := hub.OnlineUsers()
	assert.Len(t, users, 2)

	hub.Unregister(bServer)
	users = hub.OnlineUsers()
	require.Len(t, users, 1)
	assert.Equal(t, "a@example.com", users[0].UserEmail)
}

func TestHubRegisterAnnouncesToOthers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	aClient, aServer := pairConns(t)
	_, bServer := pairConns(t)

	hub.Register(aServer, models.OnlineUser{UserEmail: "a@example.com"})
	hub.Register(bServer, models.OnlineUser{UserEmail: "b@example.com"})

	frame := readWithin(t, aClient)
	assert.Equal(t, models.FrameUserOnline, frame.Type)
}

func TestHubBroadcastRoomSkipsExcluded(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	aClient, aServer := pairConns(t)
	bClient, bServer := pairConns(t)

	hub.Register(aServer, models.OnlineUser{UserEmail: "a@example.com"})
	hub.Register(bServer, models.OnlineUser{UserEmail: "b@example.com"})
	readWithin(t, aClient) // consume the user_online announcement

	hub.JoinRoom("conv-1", aServer)
	hub.JoinRoom("conv-1", bServer)
	readWithin(t, aClient) // consume the user_joined announcement

	frame, err := models.NewFrame(models.FrameNewMessage, models.NewMessagePayload{
		Message: models.Message{ID: "m1"},
	})
	require.NoError(t, err)
	hub.BroadcastRoom("conv-1", frame, bServer)

	got := readWithin(t, aClient)
	assert.Equal(t, models.FrameNewMessage, got.Type)

	require.NoError(t, bClient.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var unexpected models.Frame
	assert.Error(t, bClient.ReadJSON(&unexpected), "excluded connection must not receive the broadcast")
}

func TestHubUnregisterAnnouncesRoomExit(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	aClient, aServer := pairConns(t)
	_, bServer := pairConns(t)

	hub.Register(aServer, models.OnlineUser{UserEmail: "a@example.com"})
	hub.Register(bServer, models.OnlineUser{UserEmail: "b@example.com"})
	readWithin(t, aClient)

	hub.JoinRoom("conv-1", aServer)
	hub.JoinRoom("conv-1", bServer)
	readWithin(t, aClient)

	hub.Unregister(bServer)

	first := readWithin(t, aClient)
	second := readWithin(t, aClient)
	types := []models.FrameType{first.Type, second.Type}
	assert.Contains(t, types, models.FrameUserLeft)
	assert.Contains(t, types, models.FrameUserOffline)
}
