package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/presence"
)

type wsFixture struct {
	hub      *Hub
	registry *presence.Registry
	auth     *middleware.Authenticator
	server   *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	registry := presence.NewRegistry(hub)
	auth := middleware.NewAuthenticator("test-secret")
	handler := NewHandler(hub, registry, auth, nil)

	router := gin.New()
	router.GET("/ws", handler.Handle)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &wsFixture{hub: hub, registry: registry, auth: auth, server: server}
}

func (f *wsFixture) dial(t *testing.T, userID int) *websocket.Conn {
	t.Helper()
	token, err := f.auth.IssueToken(userID, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestHandshakeRegistersPresence(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t, 7)

	event := readEvent(t, conn)
	assert.Equal(t, models.EventPresenceChanged, event.Type)
	assert.Equal(t, []int{7}, event.UserIDs)

	require.Eventually(t, func() bool {
		_, online := f.registry.Lookup(7)
		return online
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPresenceBroadcastOnSecondConnect(t *testing.T) {
	f := newWSFixture(t)

	first := f.dial(t, 7)
	_ = readEvent(t, first) // own connect announcement

	_ = f.dial(t, 8)

	event := readEvent(t, first)
	assert.Equal(t, models.EventPresenceChanged, event.Type)
	assert.Equal(t, []int{7, 8}, event.UserIDs)
}

func TestTargetedEmitReachesOnlyRecipient(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t, 7)
	_ = readEvent(t, conn)

	handle, online := f.registry.Lookup(7)
	require.True(t, online)

	msg := models.Message{ID: 1, SenderID: 2, ReceiverID: 7, Kind: models.KindText, Text: "hi"}
	handle.SendEvent(models.NewMessageEvent(msg))

	event := readEvent(t, conn)
	require.Equal(t, models.EventNewMessage, event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, "hi", event.Message.Text)
	assert.Equal(t, 2, event.Message.SenderID)
	assert.False(t, event.Message.IsRead)
}

func TestDisconnectUnregistersAndAnnounces(t *testing.T) {
	f := newWSFixture(t)

	stayer := f.dial(t, 7)
	_ = readEvent(t, stayer)

	leaver := f.dial(t, 8)
	_ = readEvent(t, stayer) // announcement for 8 joining

	require.NoError(t, leaver.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	leaver.Close()

	event := readEvent(t, stayer)
	assert.Equal(t, models.EventPresenceChanged, event.Type)
	assert.Equal(t, []int{7}, event.UserIDs)

	require.Eventually(t, func() bool {
		_, online := f.registry.Lookup(8)
		return !online
	}, 2*time.Second, 10*time.Millisecond)
}
