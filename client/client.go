// Package client is a Go client for the messaging service. It keeps a
// local session cache (sidebar rows, open conversation, unread counts,
// online set) reconciled from both request/response calls and pushed
// events, so a UI on top of it only ever reads local state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

// Phase tracks one loading state machine: idle until the first fetch,
// loading while a fetch is in flight, ready once populated.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
)

// Session is a connected client. All exported accessors are safe for
// concurrent use with the push listener.
type Session struct {
	baseURL string
	token   string
	http    *http.Client

	conn *websocket.Conn
	done chan struct{}

	mu            sync.Mutex
	users         []models.SidebarRow
	messages      []models.Message
	unread        map[int]int
	online        map[int]struct{}
	selected      int
	usersPhase    Phase
	messagesPhase Phase
}

// New builds a session against the service at baseURL using the given
// bearer token. Connect must be called before pushed events arrive.
func New(baseURL, token string) *Session {
	return &Session{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		http:          &http.Client{Timeout: 10 * time.Second},
		done:          make(chan struct{}),
		unread:        make(map[int]int),
		online:        make(map[int]struct{}),
		usersPhase:    PhaseIdle,
		messagesPhase: PhaseIdle,
	}
}

// Connect opens the push channel and starts reconciling pushed events into
// the local cache.
func (s *Session) Connect(ctx context.Context) error {
	wsURL := "ws" + strings.TrimPrefix(s.baseURL, "http") + "/ws?token=" + s.token
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	s.conn = conn

	go s.listen()
	return nil
}

// Close tears down the push channel.
func (s *Session) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// LoadUsers fetches the sidebar and replaces the local user rows and
// unread counts.
func (s *Session) LoadUsers(ctx context.Context) error {
	s.setUsersPhase(PhaseLoading)

	var resp struct {
		Users []models.SidebarRow `json:"users"`
	}
	if err := s.doJSON(ctx, http.MethodGet, "/messages/users", nil, &resp); err != nil {
		s.setUsersPhase(PhaseIdle)
		return err
	}

	s.mu.Lock()
	s.users = resp.Users
	s.unread = make(map[int]int, len(resp.Users))
	for _, row := range resp.Users {
		s.unread[row.User.ID] = row.UnreadCount
	}
	s.usersPhase = PhaseReady
	s.mu.Unlock()
	return nil
}

// SelectUser opens the conversation with the counterpart: fetches history,
// marks everything from them as read, and zeroes the local unread count.
func (s *Session) SelectUser(ctx context.Context, userID int) error {
	s.mu.Lock()
	s.selected = userID
	s.messagesPhase = PhaseLoading
	s.mu.Unlock()

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := s.doJSON(ctx, http.MethodGet, fmt.Sprintf("/messages/%d", userID), nil, &resp); err != nil {
		s.setMessagesPhase(PhaseIdle)
		return err
	}

	if err := s.doJSON(ctx, http.MethodPut, fmt.Sprintf("/messages/mark-as-read/%d", userID), nil, nil); err != nil {
		s.setMessagesPhase(PhaseIdle)
		return err
	}

	s.mu.Lock()
	s.messages = resp.Messages
	s.unread[userID] = 0
	s.messagesPhase = PhaseReady
	s.mu.Unlock()
	return nil
}

// Send posts a message to the selected counterpart and appends the
// persisted record to the open conversation.
func (s *Session) Send(ctx context.Context, text, image string) (models.Message, error) {
	s.mu.Lock()
	receiver := s.selected
	s.mu.Unlock()
	if receiver == 0 {
		return models.Message{}, fmt.Errorf("no conversation selected")
	}

	req := map[string]string{}
	if text != "" {
		req["text"] = text
	}
	if image != "" {
		req["image"] = image
	}

	var msg models.Message
	if err := s.doJSON(ctx, http.MethodPost, fmt.Sprintf("/messages/send/%d", receiver), req, &msg); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg, nil
}

// Users returns the cached sidebar rows.
func (s *Session) Users() []models.SidebarRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SidebarRow(nil), s.users...)
}

// Messages returns the open conversation.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// UnreadCount returns the cached unread count for the counterpart.
func (s *Session) UnreadCount(userID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[userID]
}

// Online reports whether the user is in the last pushed online set.
func (s *Session) Online(userID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

// UsersPhase returns the sidebar state machine phase.
func (s *Session) UsersPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usersPhase
}

// MessagesPhase returns the conversation state machine phase.
func (s *Session) MessagesPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesPhase
}

func (s *Session) listen() {
	for {
		var event models.Event
		if err := s.conn.ReadJSON(&event); err != nil {
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
		s.handleEvent(event)
	}
}

// handleEvent reconciles one pushed event into the local cache. The
// newMessage path is purely local: the payload already carries the
// persisted record, no store round-trip is needed.
func (s *Session) handleEvent(event models.Event) {
	switch event.Type {
	case models.EventNewMessage:
		if event.Message == nil {
			return
		}
		s.mu.Lock()
		if event.Message.SenderID == s.selected {
			s.messages = append(s.messages, *event.Message)
		} else {
			s.unread[event.Message.SenderID]++
		}
		s.mu.Unlock()

	case models.EventRefreshUsers:
		// sidebar recompute; the server is the source of truth
		_ = s.LoadUsers(context.Background())

	case models.EventPresenceChanged:
		online := make(map[int]struct{}, len(event.UserIDs))
		for _, id := range event.UserIDs {
			online[id] = struct{}{}
		}
		s.mu.Lock()
		s.online = online
		s.mu.Unlock()
	}
}

func (s *Session) setUsersPhase(p Phase) {
	s.mu.Lock()
	s.usersPhase = p
	s.mu.Unlock()
}

func (s *Session) setMessagesPhase(p Phase) {
	s.mu.Lock()
	s.messagesPhase = p
	s.mu.Unlock()
}

func (s *Session) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
