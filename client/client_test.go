package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

// fakeServer is a canned messaging backend: fixed sidebar and history
// responses, a push endpoint the test drives by hand, and counters for
// asserting which calls the session made.
type fakeServer struct {
	server *httptest.Server

	mu          sync.Mutex
	sidebarHits int
	markedRead  []int

	pushMu   sync.Mutex
	pushConn *websocket.Conn
	pushed   chan struct{}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fakeServer{pushed: make(chan struct{}, 1)}
	router := gin.New()

	router.GET("/messages/users", func(c *gin.Context) {
		f.mu.Lock()
		f.sidebarHits++
		hits := f.sidebarHits
		f.mu.Unlock()

		rows := []models.SidebarRow{
			{User: models.User{ID: 2, Username: "bob"}, LastMessageAt: time.Now(), UnreadCount: hits},
			{User: models.User{ID: 3, Username: "carol"}},
		}
		c.JSON(http.StatusOK, gin.H{"users": rows})
	})

	router.GET("/messages/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"messages": []models.Message{
			{ID: 1, SenderID: 2, ReceiverID: 1, Kind: models.KindText, Text: "old", IsRead: true},
		}})
	})

	router.PUT("/messages/mark-as-read/:id", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		f.mu.Lock()
		f.markedRead = append(f.markedRead, id)
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	router.POST("/messages/send/:id", func(c *gin.Context) {
		var req struct {
			Text  string `json:"text"`
			Image string `json:"image"`
		}
		_ = c.ShouldBindJSON(&req)
		c.JSON(http.StatusCreated, models.Message{
			ID: 9, SenderID: 1, ReceiverID: 2, Kind: models.KindText, Text: req.Text,
			CreatedAt: time.Now(),
		})
	})

	router.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		f.pushMu.Lock()
		f.pushConn = conn
		f.pushMu.Unlock()
		select {
		case f.pushed <- struct{}{}:
		default:
		}
	})

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeServer) push(t *testing.T, event models.Event) {
	t.Helper()
	select {
	case <-f.pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("no push connection established")
	}
	f.pushMu.Lock()
	defer f.pushMu.Unlock()
	require.NoError(t, f.pushConn.WriteJSON(event))
	// allow follow-up pushes on the same connection
	select {
	case f.pushed <- struct{}{}:
	default:
	}
}

func (f *fakeServer) sidebarCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sidebarHits
}

func newSession(t *testing.T, f *fakeServer) *Session {
	t.Helper()
	session := New(f.server.URL, "test-token")
	require.NoError(t, session.Connect(context.Background()))
	t.Cleanup(func() { session.Close() })
	return session
}

func TestLoadUsersPopulatesSidebar(t *testing.T) {
	f := newFakeServer(t)
	session := New(f.server.URL, "test-token")

	assert.Equal(t, PhaseIdle, session.UsersPhase())
	require.NoError(t, session.LoadUsers(context.Background()))
	assert.Equal(t, PhaseReady, session.UsersPhase())

	users := session.Users()
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].User.Username)
	assert.Equal(t, 1, session.UnreadCount(2))
	assert.Equal(t, 0, session.UnreadCount(3))
}

func TestSelectUserLoadsHistoryAndMarksRead(t *testing.T) {
	f := newFakeServer(t)
	session := New(f.server.URL, "test-token")
	require.NoError(t, session.LoadUsers(context.Background()))

	require.NoError(t, session.SelectUser(context.Background(), 2))

	assert.Equal(t, PhaseReady, session.MessagesPhase())
	require.Len(t, session.Messages(), 1)
	assert.Equal(t, "old", session.Messages()[0].Text)
	assert.Equal(t, 0, session.UnreadCount(2))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []int{2}, f.markedRead)
}

func TestNewMessagePushAppendsToOpenConversation(t *testing.T) {
	f := newFakeServer(t)
	session := newSession(t, f)
	require.NoError(t, session.SelectUser(context.Background(), 2))

	msg := models.Message{ID: 5, SenderID: 2, ReceiverID: 1, Kind: models.KindText, Text: "fresh"}
	f.push(t, models.NewMessageEvent(msg))

	require.Eventually(t, func() bool {
		msgs := session.Messages()
		return len(msgs) == 2 && msgs[1].Text == "fresh"
	}, 2*time.Second, 10*time.Millisecond)
	// incoming message for the open conversation never bumps unread
	assert.Equal(t, 0, session.UnreadCount(2))
}

func TestNewMessagePushIncrementsUnreadForBackgroundConversation(t *testing.T) {
	f := newFakeServer(t)
	session := newSession(t, f)
	require.NoError(t, session.SelectUser(context.Background(), 2))

	msg := models.Message{ID: 5, SenderID: 3, ReceiverID: 1, Kind: models.KindText, Text: "psst"}
	f.push(t, models.NewMessageEvent(msg))
	f.push(t, models.NewMessageEvent(msg))

	require.Eventually(t, func() bool {
		return session.UnreadCount(3) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, session.Messages(), 1)
}

func TestRefreshUsersPushRefetchesSidebar(t *testing.T) {
	f := newFakeServer(t)
	session := newSession(t, f)
	require.NoError(t, session.LoadUsers(context.Background()))
	require.Equal(t, 1, f.sidebarCount())

	f.push(t, models.RefreshUsersEvent())

	require.Eventually(t, func() bool {
		return f.sidebarCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresenceChangedReplacesOnlineSet(t *testing.T) {
	f := newFakeServer(t)
	session := newSession(t, f)

	f.push(t, models.PresenceChangedEvent([]int{2, 3}))
	require.Eventually(t, func() bool {
		return session.Online(2) && session.Online(3)
	}, 2*time.Second, 10*time.Millisecond)

	f.push(t, models.PresenceChangedEvent([]int{3}))
	require.Eventually(t, func() bool {
		return !session.Online(2) && session.Online(3)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendAppendsPersistedMessage(t *testing.T) {
	f := newFakeServer(t)
	session := New(f.server.URL, "test-token")
	require.NoError(t, session.SelectUser(context.Background(), 2))

	msg, err := session.Send(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, 9, msg.ID)

	msgs := session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[1].Text)
}

func TestSendWithoutSelectionFails(t *testing.T) {
	f := newFakeServer(t)
	session := New(f.server.URL, "test-token")

	_, err := session.Send(context.Background(), "hi", "")
	require.Error(t, err)
}
